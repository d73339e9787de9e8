package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-service/internal/api/dto"
	"github.com/spec-kit/triage-service/internal/service"
	apperrors "github.com/spec-kit/triage-service/pkg/util"
)

// PatientsHandler manages patient record endpoints.
type PatientsHandler struct {
	patients  *service.PatientService
	changelog *service.ChangelogService
}

// NewPatientsHandler constructs handler.
func NewPatientsHandler(patients *service.PatientService, changelogService *service.ChangelogService) *PatientsHandler {
	return &PatientsHandler{patients: patients, changelog: changelogService}
}

// CreatePatient POST /patients.
func (h *PatientsHandler) CreatePatient(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreatePatientRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return apperrors.NewValidationError("first_name, last_name required", nil)
	}

	patient, err := h.patients.CreatePatient(c.Context(), actor, service.PatientCreateInput{
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		DOB:                req.DOB,
		ContactInfo:        req.ContactInfo,
		InsuranceInfo:      req.InsuranceInfo,
		LanguagePreference: req.LanguagePreference,
		ReturningPatient:   req.ReturningPatient,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.PatientFromDomain(patient)})
}

// ListPatients GET /patients.
func (h *PatientsHandler) ListPatients(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)

	patients, err := h.patients.ListPatients(c.Context(), actor, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.PatientResponse, 0, len(patients))
	for i := range patients {
		items = append(items, dto.PatientFromDomain(&patients[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetPatient GET /patients/:id.
func (h *PatientsHandler) GetPatient(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	patient, err := h.patients.GetPatient(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.PatientFromDomain(patient)})
}

// VerifyPatient POST /patients/:id/verify.
func (h *PatientsHandler) VerifyPatient(c *fiber.Ctx) error {
	actor, ok := actorContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	patient, err := h.patients.VerifyPatient(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.PatientFromDomain(patient)})
}

// GetChangelog GET /patients/:id/changelog.
func (h *PatientsHandler) GetChangelog(c *fiber.Ctx) error {
	if _, ok := actorContext(c); !ok {
		return apperrors.NewUnauthorized("user required")
	}
	records, err := h.changelog.ForPatient(c.Context(), c.Params("id"), service.ChangelogQuery{
		ActorEmail: c.Query("actor_email"),
		FieldName:  c.Query("field"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ChangelogFromDomain(records)})
}
