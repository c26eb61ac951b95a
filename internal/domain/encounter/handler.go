package encounter

import (
	"github.com/labstack/echo/v4"

	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointments/:id/encounter")
	doctor := auth.RequireRole(auth.RoleDoctor)

	g.GET("", h.GetEncounter)
	g.PUT("/diagnosis", h.SaveDiagnosis, doctor)
	g.POST("/lab-orders", h.CreateLabOrder, doctor)
	g.POST("/prescriptions", h.CreatePrescription, doctor)
}

func (h *Handler) SaveDiagnosis(c echo.Context) error {
	caller, err := auth.Caller(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	var in DiagnosisInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	e, err := h.svc.SaveDiagnosis(c.Request().Context(), caller, id, in)
	if err != nil {
		return err
	}
	return httpx.OK(c, "diagnosis saved", e)
}

func (h *Handler) CreateLabOrder(c echo.Context) error {
	caller, err := auth.Caller(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	var in LabOrderInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	o, err := h.svc.CreateLabOrder(c.Request().Context(), caller, id, in)
	if err != nil {
		return err
	}
	return httpx.Created(c, "lab order created", o)
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	caller, err := auth.Caller(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	var in PrescriptionInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	rx, err := h.svc.CreatePrescription(c.Request().Context(), caller, id, in)
	if err != nil {
		return err
	}
	return httpx.Created(c, "prescription created", rx)
}

func (h *Handler) GetEncounter(c echo.Context) error {
	caller, err := auth.Caller(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetByAppointment(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return httpx.OK(c, "ok", d)
}
