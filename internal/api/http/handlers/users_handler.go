package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-service/internal/api/dto"
	"github.com/spec-kit/triage-service/internal/domain"
	"github.com/spec-kit/triage-service/internal/service"
	apperrors "github.com/spec-kit/triage-service/pkg/util"
)

// UsersHandler manages account and login endpoints.
type UsersHandler struct {
	service *service.AuthService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService) *UsersHandler {
	return &UsersHandler{service: authService}
}

// Register POST /auth/register. Admin-only; new accounts are provisioned
// by an existing administrator.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.RegisterUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("name, email, password required", nil)
	}
	role := req.Role
	if role == "" {
		role = domain.UserRoleClinician
	}
	if role != domain.UserRoleAdmin && role != domain.UserRoleClinician {
		return apperrors.NewValidationError("unknown role", map[string]any{"role": string(req.Role)})
	}

	user, err := h.service.RegisterUser(c.Context(), actor, req.Name, req.Email, req.Password, role)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.UserFromDomain(user)})
}

// Login POST /auth/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email, password required", nil)
	}

	user, token, expiresAt, err := h.service.Login(c.Context(), requestMeta(c), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      dto.UserFromDomain(user),
	}})
}

// ListUsers GET /users. Admin-only.
func (h *UsersHandler) ListUsers(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 25)

	users, err := h.service.ListUsers(c.Context(), actor, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	out := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, dto.UserFromDomain(&users[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// GetUser GET /users/:id. Admin-only.
func (h *UsersHandler) GetUser(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	user, err := h.service.GetUser(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UserFromDomain(user)})
}

// UpdateUser PATCH /users/:id. Admin-only.
func (h *UsersHandler) UpdateUser(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.UpdateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Role != nil && *req.Role != domain.UserRoleAdmin && *req.Role != domain.UserRoleClinician {
		return apperrors.NewValidationError("unknown role", map[string]any{"role": string(*req.Role)})
	}
	if req.Status != nil && *req.Status != domain.UserStatusActive && *req.Status != domain.UserStatusSuspended {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": string(*req.Status)})
	}

	user, err := h.service.UpdateUser(c.Context(), actor, c.Params("id"), service.UserUpdateInput{
		Name:   req.Name,
		Role:   req.Role,
		Status: req.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UserFromDomain(user)})
}

// DeleteUser DELETE /users/:id. Admin-only.
func (h *UsersHandler) DeleteUser(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if err := h.service.DeleteUser(c.Context(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ChangePassword POST /auth/password/change.
func (h *UsersHandler) ChangePassword(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return apperrors.NewValidationError("current_password, new_password required", nil)
	}
	if len(req.NewPassword) < 8 {
		return apperrors.NewValidationError("new password must be at least 8 characters", nil)
	}

	if err := h.service.ChangePassword(c.Context(), actor, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"changed": true}})
}
