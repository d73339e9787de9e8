package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-service/internal/auth"
	"github.com/spec-kit/triage-service/internal/config"
	"github.com/spec-kit/triage-service/internal/domain"
	"github.com/spec-kit/triage-service/internal/repository"
	apperrors "github.com/spec-kit/triage-service/pkg/util"
)

// AuthService coordinates account and login flows. Every login attempt and
// account mutation lands in the audit ledger; a login that cannot be
// audited is refused.
type AuthService struct {
	users      repository.UserRepository
	recorder   AuditRecorder
	tokenMgr   *auth.TokenManager
	logger     *zap.Logger
	bcryptCost int
}

// AuthDependencies bundles requirements for auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	Recorder AuditRecorder
	Logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		recorder:   deps.Recorder,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		logger:     deps.Logger,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// RegisterUser creates a clinic user account. Admin action, audited as
// CREATE_USER; the account is removed again if the audit append fails.
func (s *AuthService) RegisterUser(ctx context.Context, actor ActorContext, name, email, password string, role domain.UserRole) (*domain.User, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", nil)
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	draft := actor.draft("CREATE_USER", statusSuccess, resourceRef(domain.ResourceTypeUser, user.ID))
	draft.ChangeDetails = domain.ChangeDetails{
		"name":  {Old: nil, New: name},
		"email": {Old: nil, New: email},
		"role":  {Old: nil, New: string(role)},
	}
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		// Unaudited account creation must not stand.
		user.Status = domain.UserStatusSuspended
		if restoreErr := s.users.Update(ctx, user); restoreErr != nil {
			s.logger.Error("failed to suspend unaudited user", zap.String("user_id", user.ID), zap.Error(restoreErr))
		}
		return nil, err
	}
	return user, nil
}

// Login authenticates a clinic user and issues a token. Success is audited
// fail-closed; failed attempts are recorded best-effort.
func (s *AuthService) Login(ctx context.Context, meta RequestMeta, email, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.recordLoginFailure(ctx, meta, nil)
			return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, "", time.Time{}, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		s.recordLoginFailure(ctx, meta, user)
		return nil, "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	if user.Status != domain.UserStatusActive {
		s.recordLoginFailure(ctx, meta, user)
		return nil, "", time.Time{}, apperrors.NewForbidden("account suspended")
	}

	actor := ActorContext{UserID: user.ID, Role: user.Role, IP: meta.IP}
	draft := actor.draft("LOGIN_SUCCESS", statusSuccess, resourceRef(domain.ResourceTypeUser, user.ID))
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		return nil, "", time.Time{}, err
	}

	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return user, token, exp, nil
}

// ChangePassword verifies the current password before updating the hash.
func (s *AuthService) ChangePassword(ctx context.Context, actor ActorContext, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	oldHash := user.PasswordHash
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	draft := actor.draft("CHANGE_PASSWORD", statusSuccess, resourceRef(domain.ResourceTypeUser, user.ID))
	draft.ChangeDetails = domain.ChangeDetails{
		"password": {Old: "[redacted]", New: "[redacted]"},
	}
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		user.PasswordHash = oldHash
		if restoreErr := s.users.Update(ctx, user); restoreErr != nil {
			s.logger.Error("failed to restore password hash after audit failure",
				zap.String("user_id", user.ID), zap.Error(restoreErr))
		}
		return err
	}
	return nil
}

// UserUpdateInput narrows an admin edit of an account.
type UserUpdateInput struct {
	Name   *string
	Role   *domain.UserRole
	Status *domain.UserStatus
}

// ListUsers pages through accounts, recording the view best-effort.
func (s *AuthService) ListUsers(ctx context.Context, actor ActorContext, limit, offset int) ([]domain.User, error) {
	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	draft := actor.draft("LIST_USERS", statusSuccess, nil)
	draft.ChangeDetails = domain.ChangeDetails{
		"returned_count": {Old: nil, New: len(users)},
	}
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		s.logger.Warn("failed to audit user listing", zap.Error(err))
	}
	return users, nil
}

// GetUser fetches one account, recording the view best-effort.
func (s *AuthService) GetUser(ctx context.Context, actor ActorContext, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	draft := actor.draft("VIEW_USER", statusSuccess, resourceRef(domain.ResourceTypeUser, user.ID))
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		s.logger.Warn("failed to audit user view", zap.String("user_id", user.ID), zap.Error(err))
	}
	return user, nil
}

// UpdateUser applies an admin edit of name, role or status, audited as
// UPDATE_USER with per-field diffs; the edit is rolled back if the audit
// append fails. An admin cannot change their own role or suspend their own
// account.
func (s *AuthService) UpdateUser(ctx context.Context, actor ActorContext, userID string, input UserUpdateInput) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if userID == actor.UserID {
		if input.Role != nil && *input.Role != user.Role {
			return nil, apperrors.NewConflict("cannot change own role", nil)
		}
		if input.Status != nil && *input.Status == domain.UserStatusSuspended {
			return nil, apperrors.NewConflict("cannot suspend own account", nil)
		}
	}
	snapshot := *user

	changes := domain.ChangeDetails{}
	if input.Name != nil && *input.Name != user.Name {
		changes["name"] = domain.FieldChange{Old: user.Name, New: *input.Name}
		user.Name = *input.Name
	}
	if input.Role != nil && *input.Role != user.Role {
		changes["role"] = domain.FieldChange{Old: string(user.Role), New: string(*input.Role)}
		user.Role = *input.Role
	}
	if input.Status != nil && *input.Status != user.Status {
		changes["status"] = domain.FieldChange{Old: string(user.Status), New: string(*input.Status)}
		user.Status = *input.Status
	}
	if len(changes) == 0 {
		return user, nil
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	draft := actor.draft("UPDATE_USER", statusSuccess, resourceRef(domain.ResourceTypeUser, user.ID))
	draft.ChangeDetails = changes
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		if restoreErr := s.users.Update(ctx, &snapshot); restoreErr != nil {
			s.logger.Error("failed to roll back unaudited user update",
				zap.String("user_id", user.ID), zap.Error(restoreErr))
		}
		return nil, err
	}
	return user, nil
}

// DeleteUser removes an account. The DELETE_USER entry is appended before
// the row goes away so the ledger still validates the resource reference;
// a delete that fails afterwards gets a FAIL entry without one. Admins
// cannot delete their own account.
func (s *AuthService) DeleteUser(ctx context.Context, actor ActorContext, userID string) error {
	if userID == actor.UserID {
		return apperrors.NewConflict("cannot delete own account", nil)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	draft := actor.draft("DELETE_USER", statusSuccess, resourceRef(domain.ResourceTypeUser, user.ID))
	draft.ChangeDetails = domain.ChangeDetails{
		"email": {Old: user.Email, New: nil},
		"role":  {Old: string(user.Role), New: nil},
	}
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		return err
	}

	if err := s.users.Delete(ctx, userID); err != nil {
		failed := actor.draft("DELETE_USER", statusFail, nil)
		failed.ChangeDetails = domain.ChangeDetails{
			"userID": {Old: userID, New: nil},
		}
		if _, auditErr := s.recorder.Append(ctx, failed); auditErr != nil {
			s.logger.Error("failed to record aborted user delete", zap.String("user_id", userID), zap.Error(auditErr))
		}
		return err
	}
	return nil
}

func (s *AuthService) recordLoginFailure(ctx context.Context, meta RequestMeta, user *domain.User) {
	draft := domain.AuditDraft{
		Action:    "LOGIN_FAILURE",
		Status:    statusFail,
		IPAddress: meta.IP,
	}
	if user != nil {
		actorID := user.ID
		actorType := string(user.Role)
		draft.ActorID = &actorID
		draft.ActorType = &actorType
		rt := string(domain.ResourceTypeUser)
		draft.ResourceType = &rt
		draft.ResourceID = &actorID
	}
	if _, err := s.recorder.Append(ctx, draft); err != nil {
		s.logger.Warn("failed to record login failure", zap.Error(err))
	}
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
