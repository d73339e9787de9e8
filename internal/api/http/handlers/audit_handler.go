package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-service/internal/api/dto"
	"github.com/spec-kit/triage-service/internal/domain"
	"github.com/spec-kit/triage-service/internal/service"
	apperrors "github.com/spec-kit/triage-service/pkg/util"
)

// AuditHandler exposes the ledger to administrators. Role enforcement
// happens in the router; handlers assume an authenticated admin.
type AuditHandler struct {
	service *service.AuditQueryService
}

// NewAuditHandler constructs handler.
func NewAuditHandler(auditService *service.AuditQueryService) *AuditHandler {
	return &AuditHandler{service: auditService}
}

// ListEntries GET /audit-logs.
func (h *AuditHandler) ListEntries(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}

	from := parseTime(c.Query("from"))
	to := parseTime(c.Query("to"))
	if from != nil || to != nil {
		entries, err := h.service.ByTimeRange(c.Context(), actor, from, to)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": dto.AuditEntriesFromDomain(entries)})
	}

	limit := parseInt(c.Query("limit"), 100)
	entries, err := h.service.Recent(c.Context(), actor, limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuditEntriesFromDomain(entries)})
}

// ListByResource GET /audit-logs/resource/:type/:id.
func (h *AuditHandler) ListByResource(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	resourceType, err := domain.ParseResourceType(c.Params("type"))
	if err != nil {
		return apperrors.NewValidationError("unknown resource type", map[string]any{"type": c.Params("type")})
	}

	entries, err := h.service.ByResource(c.Context(), actor, resourceType, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuditEntriesFromDomain(entries)})
}

// ListByActor GET /audit-logs/actor/:id.
func (h *AuditHandler) ListByActor(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	entries, err := h.service.ByActor(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AuditEntriesFromDomain(entries)})
}

// VerifyChain POST /audit-logs/verify. Optional from_seq/to_seq bound the
// walk; zero covers the whole chain.
func (h *AuditHandler) VerifyChain(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	fromSeq := int64(parseInt(c.Query("from_seq"), 0))
	toSeq := int64(parseInt(c.Query("to_seq"), 0))

	result, err := h.service.Verify(c.Context(), actor, fromSeq, toSeq)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.VerifyChainFromResult(result.Valid, result.Broken)})
}
