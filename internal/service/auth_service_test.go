package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-service/internal/audit"
	"github.com/spec-kit/triage-service/internal/config"
	"github.com/spec-kit/triage-service/internal/domain"
)

type fakeUserRepo struct {
	users map[string]*domain.User
	next  int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*domain.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.next++
	user.ID = "user-" + string(rune('0'+r.next))
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.users[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) List(_ context.Context, _, _ int) ([]domain.User, error) {
	var out []domain.User
	for _, user := range r.users {
		out = append(out, *user)
	}
	return out, nil
}

func (r *fakeUserRepo) Exists(_ context.Context, id string) (bool, error) {
	_, ok := r.users[id]
	return ok, nil
}

func testAuthService(t *testing.T) (*AuthService, *fakeUserRepo, *fakeRecorder) {
	t.Helper()
	users := newFakeUserRepo()
	recorder := &fakeRecorder{}
	cfg := config.Config{Auth: config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 15,
		BcryptCost:            4, // MinCost, keeps the test fast
	}}
	svc := NewAuthService(cfg, AuthDependencies{
		UserRepo: users,
		Recorder: recorder,
		Logger:   zap.NewNop(),
	})
	return svc, users, recorder
}

func adminActor() ActorContext {
	return ActorContext{UserID: "admin-1", Role: domain.UserRoleAdmin}
}

func TestRegisterUserAudited(t *testing.T) {
	svc, _, recorder := testAuthService(t)

	user, err := svc.RegisterUser(context.Background(), adminActor(), "Dana", "dana@clinic.example", "s3cret-pw", domain.UserRoleClinician)
	if err != nil {
		t.Fatalf("RegisterUser() error = %v", err)
	}
	if user.Status != domain.UserStatusActive {
		t.Errorf("Status = %s, want ACTIVE", user.Status)
	}
	if user.PasswordHash == "s3cret-pw" {
		t.Error("password must be hashed")
	}
	if recorder.lastAction() != "CREATE_USER" {
		t.Errorf("last audit action = %s, want CREATE_USER", recorder.lastAction())
	}
	if _, ok := recorder.drafts[0].ChangeDetails["password"]; ok {
		t.Error("password must never appear in change details")
	}

	if _, err := svc.RegisterUser(context.Background(), adminActor(), "Dana", "dana@clinic.example", "other", domain.UserRoleClinician); err == nil {
		t.Fatal("duplicate email must be rejected")
	}
}

func TestRegisterUserSuspendedWhenAuditFails(t *testing.T) {
	svc, users, recorder := testAuthService(t)
	recorder.fail = audit.ErrStorageUnavailable

	_, err := svc.RegisterUser(context.Background(), adminActor(), "Dana", "dana@clinic.example", "s3cret-pw", domain.UserRoleClinician)
	if !errors.Is(err, audit.ErrStorageUnavailable) {
		t.Fatalf("RegisterUser() error = %v, want ErrStorageUnavailable", err)
	}
	for _, user := range users.users {
		if user.Status != domain.UserStatusSuspended {
			t.Errorf("unaudited account left %s, want SUSPENDED", user.Status)
		}
	}
}

func TestLoginIssuesToken(t *testing.T) {
	svc, _, recorder := testAuthService(t)
	if _, err := svc.RegisterUser(context.Background(), adminActor(), "Dana", "dana@clinic.example", "s3cret-pw", domain.UserRoleClinician); err != nil {
		t.Fatal(err)
	}

	user, token, expiresAt, err := svc.Login(context.Background(), RequestMeta{IP: strPtr("10.0.0.9")}, "dana@clinic.example", "s3cret-pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if token == "" || expiresAt.IsZero() {
		t.Fatal("Login() must issue a token with an expiry")
	}
	if recorder.lastAction() != "LOGIN_SUCCESS" {
		t.Errorf("last audit action = %s, want LOGIN_SUCCESS", recorder.lastAction())
	}

	claims, err := svc.TokenManager().ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.UserID != user.ID || claims.Role != domain.UserRoleClinician {
		t.Errorf("claims = %s/%s, want %s/clinician", claims.UserID, claims.Role, user.ID)
	}
}

func TestLoginFailureRecordedBestEffort(t *testing.T) {
	svc, _, recorder := testAuthService(t)
	if _, err := svc.RegisterUser(context.Background(), adminActor(), "Dana", "dana@clinic.example", "s3cret-pw", domain.UserRoleClinician); err != nil {
		t.Fatal(err)
	}
	recorder.drafts = nil

	if _, _, _, err := svc.Login(context.Background(), RequestMeta{}, "dana@clinic.example", "wrong"); err == nil {
		t.Fatal("wrong password must fail")
	}
	if recorder.lastAction() != "LOGIN_FAILURE" {
		t.Errorf("last audit action = %s, want LOGIN_FAILURE", recorder.lastAction())
	}
}

func TestLoginBlockedWhenAuditFails(t *testing.T) {
	svc, _, recorder := testAuthService(t)
	if _, err := svc.RegisterUser(context.Background(), adminActor(), "Dana", "dana@clinic.example", "s3cret-pw", domain.UserRoleClinician); err != nil {
		t.Fatal(err)
	}
	recorder.fail = audit.ErrStorageUnavailable

	// A successful login that cannot be audited must not proceed.
	if _, _, _, err := svc.Login(context.Background(), RequestMeta{}, "dana@clinic.example", "s3cret-pw"); !errors.Is(err, audit.ErrStorageUnavailable) {
		t.Fatalf("Login() error = %v, want ErrStorageUnavailable", err)
	}
}

func TestListUsersAudited(t *testing.T) {
	svc, _, recorder := testAuthService(t)
	if _, err := svc.RegisterUser(context.Background(), adminActor(), "Dana", "dana@clinic.example", "s3cret-pw", domain.UserRoleClinician); err != nil {
		t.Fatal(err)
	}

	users, err := svc.ListUsers(context.Background(), adminActor(), 25, 0)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("len = %d, want 1", len(users))
	}
	if recorder.lastAction() != "LIST_USERS" {
		t.Errorf("last audit action = %s, want LIST_USERS", recorder.lastAction())
	}
}

func TestGetUserSurvivesAuditFailure(t *testing.T) {
	svc, _, recorder := testAuthService(t)
	registered, err := svc.RegisterUser(context.Background(), adminActor(), "Dana", "dana@clinic.example", "s3cret-pw", domain.UserRoleClinician)
	if err != nil {
		t.Fatal(err)
	}
	recorder.fail = audit.ErrStorageUnavailable

	user, err := svc.GetUser(context.Background(), adminActor(), registered.ID)
	if err != nil {
		t.Fatalf("GetUser() error = %v, reads must not fail closed", err)
	}
	if user.Email != "dana@clinic.example" {
		t.Errorf("Email = %s, want dana@clinic.example", user.Email)
	}
}

func TestUpdateUserAuditsDiffs(t *testing.T) {
	svc, _, recorder := testAuthService(t)
	registered, err := svc.RegisterUser(context.Background(), adminActor(), "Dana", "dana@clinic.example", "s3cret-pw", domain.UserRoleClinician)
	if err != nil {
		t.Fatal(err)
	}
	recorder.drafts = nil

	role := domain.UserRoleAdmin
	updated, err := svc.UpdateUser(context.Background(), adminActor(), registered.ID, UserUpdateInput{
		Name: strPtr("Dana Reyes"),
		Role: &role,
	})
	if err != nil {
		t.Fatalf("UpdateUser() error = %v", err)
	}
	if updated.Name != "Dana Reyes" || updated.Role != domain.UserRoleAdmin {
		t.Errorf("user = %s/%s, want Dana Reyes/admin", updated.Name, updated.Role)
	}
	if recorder.lastAction() != "UPDATE_USER" {
		t.Fatalf("last audit action = %s, want UPDATE_USER", recorder.lastAction())
	}
	details := recorder.drafts[0].ChangeDetails
	if change := details["role"]; change.Old != "clinician" || change.New != "admin" {
		t.Errorf("role diff = %+v, want clinician -> admin", change)
	}
	if change := details["name"]; change.Old != "Dana" {
		t.Errorf("name diff = %+v, want Old=Dana", change)
	}

	// No-op edits must not reach the ledger.
	before := len(recorder.drafts)
	if _, err := svc.UpdateUser(context.Background(), adminActor(), registered.ID, UserUpdateInput{Name: strPtr("Dana Reyes")}); err != nil {
		t.Fatal(err)
	}
	if len(recorder.drafts) != before {
		t.Error("unchanged update must not append an entry")
	}
}

func TestUpdateUserRollsBackWhenAuditFails(t *testing.T) {
	svc, users, recorder := testAuthService(t)
	registered, err := svc.RegisterUser(context.Background(), adminActor(), "Dana", "dana@clinic.example", "s3cret-pw", domain.UserRoleClinician)
	if err != nil {
		t.Fatal(err)
	}
	recorder.fail = audit.ErrStorageUnavailable

	status := domain.UserStatusSuspended
	if _, err := svc.UpdateUser(context.Background(), adminActor(), registered.ID, UserUpdateInput{Status: &status}); !errors.Is(err, audit.ErrStorageUnavailable) {
		t.Fatalf("UpdateUser() error = %v, want ErrStorageUnavailable", err)
	}
	if users.users[registered.ID].Status != domain.UserStatusActive {
		t.Error("unaudited suspension must be rolled back")
	}
}

func TestUpdateUserGuardsOwnAccount(t *testing.T) {
	svc, users, _ := testAuthService(t)
	self := &domain.User{Name: "Root", Email: "root@clinic.example", Role: domain.UserRoleAdmin, Status: domain.UserStatusActive}
	if err := users.Create(context.Background(), self); err != nil {
		t.Fatal(err)
	}
	actor := ActorContext{UserID: self.ID, Role: domain.UserRoleAdmin}

	role := domain.UserRoleClinician
	if _, err := svc.UpdateUser(context.Background(), actor, self.ID, UserUpdateInput{Role: &role}); err == nil {
		t.Error("admin must not demote their own role")
	}
	status := domain.UserStatusSuspended
	if _, err := svc.UpdateUser(context.Background(), actor, self.ID, UserUpdateInput{Status: &status}); err == nil {
		t.Error("admin must not suspend their own account")
	}
}

func TestDeleteUserAuditsBeforeDelete(t *testing.T) {
	svc, users, recorder := testAuthService(t)
	registered, err := svc.RegisterUser(context.Background(), adminActor(), "Dana", "dana@clinic.example", "s3cret-pw", domain.UserRoleClinician)
	if err != nil {
		t.Fatal(err)
	}
	recorder.drafts = nil

	if err := svc.DeleteUser(context.Background(), adminActor(), registered.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, ok := users.users[registered.ID]; ok {
		t.Error("account must be removed")
	}
	draft := recorder.drafts[0]
	if draft.Action != "DELETE_USER" || draft.Status != "SUCCESS" {
		t.Errorf("recorded %s/%s, want DELETE_USER/SUCCESS", draft.Action, draft.Status)
	}
	if change := draft.ChangeDetails["email"]; change.Old != "dana@clinic.example" {
		t.Errorf("email diff = %+v, want Old=dana@clinic.example", change)
	}
}

func TestDeleteUserBlockedWhenAuditFails(t *testing.T) {
	svc, users, recorder := testAuthService(t)
	registered, err := svc.RegisterUser(context.Background(), adminActor(), "Dana", "dana@clinic.example", "s3cret-pw", domain.UserRoleClinician)
	if err != nil {
		t.Fatal(err)
	}
	recorder.fail = audit.ErrStorageUnavailable

	if err := svc.DeleteUser(context.Background(), adminActor(), registered.ID); !errors.Is(err, audit.ErrStorageUnavailable) {
		t.Fatalf("DeleteUser() error = %v, want ErrStorageUnavailable", err)
	}
	if _, ok := users.users[registered.ID]; !ok {
		t.Error("account must survive when the delete cannot be audited")
	}
}

func TestDeleteUserRejectsSelf(t *testing.T) {
	svc, users, recorder := testAuthService(t)
	self := &domain.User{Name: "Root", Email: "root@clinic.example", Role: domain.UserRoleAdmin, Status: domain.UserStatusActive}
	if err := users.Create(context.Background(), self); err != nil {
		t.Fatal(err)
	}

	actor := ActorContext{UserID: self.ID, Role: domain.UserRoleAdmin}
	if err := svc.DeleteUser(context.Background(), actor, self.ID); err == nil {
		t.Fatal("admin must not delete their own account")
	}
	if len(recorder.drafts) != 0 {
		t.Error("rejected self-delete must not reach the ledger")
	}
}

func TestChangePasswordRollsBackWhenAuditFails(t *testing.T) {
	svc, users, recorder := testAuthService(t)
	registered, err := svc.RegisterUser(context.Background(), adminActor(), "Dana", "dana@clinic.example", "s3cret-pw", domain.UserRoleClinician)
	if err != nil {
		t.Fatal(err)
	}
	before := users.users[registered.ID].PasswordHash
	recorder.fail = audit.ErrStorageUnavailable

	actor := ActorContext{UserID: registered.ID, Role: domain.UserRoleClinician}
	if err := svc.ChangePassword(context.Background(), actor, "s3cret-pw", "new-password-1"); !errors.Is(err, audit.ErrStorageUnavailable) {
		t.Fatalf("ChangePassword() error = %v, want ErrStorageUnavailable", err)
	}
	if users.users[registered.ID].PasswordHash != before {
		t.Error("password hash must be restored when the change cannot be audited")
	}
}

func TestChangePasswordRedactsValues(t *testing.T) {
	svc, _, recorder := testAuthService(t)
	registered, err := svc.RegisterUser(context.Background(), adminActor(), "Dana", "dana@clinic.example", "s3cret-pw", domain.UserRoleClinician)
	if err != nil {
		t.Fatal(err)
	}
	recorder.drafts = nil

	actor := ActorContext{UserID: registered.ID, Role: domain.UserRoleClinician}
	if err := svc.ChangePassword(context.Background(), actor, "s3cret-pw", "new-password-1"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	change, ok := recorder.drafts[0].ChangeDetails["password"]
	if !ok {
		t.Fatal("password change must be recorded")
	}
	if change.Old != "[redacted]" || change.New != "[redacted]" {
		t.Errorf("password values must be redacted, got %+v", change)
	}
}
