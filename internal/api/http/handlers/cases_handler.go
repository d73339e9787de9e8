package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-service/internal/api/dto"
	"github.com/spec-kit/triage-service/internal/domain"
	"github.com/spec-kit/triage-service/internal/repository"
	"github.com/spec-kit/triage-service/internal/service"
	apperrors "github.com/spec-kit/triage-service/pkg/util"
)

// CasesHandler manages triage case endpoints.
type CasesHandler struct {
	cases     *service.CaseService
	changelog *service.ChangelogService
}

// NewCasesHandler constructs handler.
func NewCasesHandler(cases *service.CaseService, changelogService *service.ChangelogService) *CasesHandler {
	return &CasesHandler{cases: cases, changelog: changelogService}
}

// CreateCase POST /triage-cases.
func (h *CasesHandler) CreateCase(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.PatientID == "" {
		return apperrors.NewValidationError("patient_id required", nil)
	}
	if req.Urgency != "" && !validUrgency(req.Urgency) {
		return apperrors.NewValidationError("unknown urgency", map[string]any{"urgency": string(req.Urgency)})
	}

	tc, err := h.cases.CreateCase(c.Context(), actor, service.CaseCreateInput{
		PatientID: req.PatientID,
		Symptoms:  req.Symptoms,
		AISummary: req.AISummary,
		Urgency:   req.Urgency,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.CaseFromDomain(tc)})
}

// ListCases GET /triage-cases.
func (h *CasesHandler) ListCases(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	cases, err := h.cases.ListCases(c.Context(), actor, parseCaseQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.CaseResponse, 0, len(cases))
	for i := range cases {
		items = append(items, dto.CaseFromDomain(&cases[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListCasesByStatus GET /triage-cases/status/:status.
func (h *CasesHandler) ListCasesByStatus(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	status := domain.CaseStatus(strings.ToLower(c.Params("status")))
	switch status {
	case domain.CaseStatusNew, domain.CaseStatusReviewed, domain.CaseStatusResolved:
	default:
		return apperrors.NewValidationError("unknown status", map[string]any{"status": string(status)})
	}

	filter := parseCaseQuery(c)
	filter.Statuses = []domain.CaseStatus{status}
	cases, err := h.cases.ListCases(c.Context(), actor, filter)
	if err != nil {
		return err
	}
	items := make([]dto.CaseResponse, 0, len(cases))
	for i := range cases {
		items = append(items, dto.CaseFromDomain(&cases[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetStats GET /triage-cases/stats.
func (h *CasesHandler) GetStats(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	counts, err := h.cases.StatusCounts(c.Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CaseStatsResponse{
		New:      counts[domain.CaseStatusNew],
		Reviewed: counts[domain.CaseStatusReviewed],
		Resolved: counts[domain.CaseStatusResolved],
	}})
}

// GetCase GET /triage-cases/:id.
func (h *CasesHandler) GetCase(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	tc, err := h.cases.GetCase(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CaseFromDomain(tc)})
}

// UpdateCase PATCH /triage-cases/:id.
func (h *CasesHandler) UpdateCase(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.UpdateCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Urgency != nil && !validUrgency(*req.Urgency) {
		return apperrors.NewValidationError("unknown urgency", map[string]any{"urgency": string(*req.Urgency)})
	}
	if req.OverrideUrgency != nil && !validUrgency(*req.OverrideUrgency) {
		return apperrors.NewValidationError("unknown urgency", map[string]any{"urgency": string(*req.OverrideUrgency)})
	}

	tc, err := h.cases.UpdateCase(c.Context(), actor, c.Params("id"), service.CaseUpdateInput{
		Symptoms:           req.Symptoms,
		AISummary:          req.AISummary,
		Urgency:            req.Urgency,
		OverrideSummary:    req.OverrideSummary,
		OverrideUrgency:    req.OverrideUrgency,
		ScheduledDate:      req.ScheduledDate,
		Status:             req.Status,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		DOB:                req.DOB,
		ContactInfo:        req.ContactInfo,
		InsuranceInfo:      req.InsuranceInfo,
		LanguagePreference: req.LanguagePreference,
		ReturningPatient:   req.ReturningPatient,
		Verified:           req.Verified,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CaseFromDomain(tc)})
}

// ReviewCase POST /triage-cases/:id/review.
func (h *CasesHandler) ReviewCase(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.ReviewCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	tc, err := h.cases.ReviewCase(c.Context(), actor, c.Params("id"), req.Reason, req.ScheduledDate)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CaseFromDomain(tc)})
}

// ResolveCase POST /triage-cases/:id/resolve.
func (h *CasesHandler) ResolveCase(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	tc, err := h.cases.ResolveCase(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CaseFromDomain(tc)})
}

// DeleteCase DELETE /triage-cases/:id.
func (h *CasesHandler) DeleteCase(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if err := h.cases.DeleteCase(c.Context(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetChangelog GET /triage-cases/:id/changelog. Returns the merged
// case+patient timeline.
func (h *CasesHandler) GetChangelog(c *fiber.Ctx) error {
	if _, ok := actorContext(c); !ok {
		return apperrors.NewUnauthorized("user required")
	}
	records, err := h.changelog.ForCase(c.Context(), c.Params("id"), service.ChangelogQuery{
		ActorEmail: c.Query("actor_email"),
		FieldName:  c.Query("field"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ChangelogFromDomain(records)})
}

func parseCaseQuery(c *fiber.Ctx) repository.CaseFilter {
	filter := repository.CaseFilter{}
	if patientID := c.Query("patient_id"); patientID != "" {
		filter.PatientID = &patientID
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.CaseStatus(strings.TrimSpace(part)))
		}
	}
	if urgencyStr := c.Query("urgency"); urgencyStr != "" {
		for _, part := range strings.Split(urgencyStr, ",") {
			filter.Urgencies = append(filter.Urgencies, domain.CaseUrgency(strings.TrimSpace(part)))
		}
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func validUrgency(u domain.CaseUrgency) bool {
	switch u {
	case domain.CaseUrgencyLow, domain.CaseUrgencyMedium, domain.CaseUrgencyHigh, domain.CaseUrgencyCritical:
		return true
	default:
		return false
	}
}
