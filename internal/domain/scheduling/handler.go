package scheduling

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/httpx"
	"github.com/clinicops/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments", h.CreateAppointment, auth.RequireRole(auth.RolePatient, auth.RoleReceptionist))
	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/:id", h.GetAppointment)
	api.PATCH("/appointments/:id/status", h.UpdateStatus)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	caller, err := auth.Caller(c)
	if err != nil {
		return err
	}
	var in CreateAppointmentInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	a, err := h.svc.CreateAppointment(c.Request().Context(), caller, in)
	if err != nil {
		return err
	}
	return httpx.Created(c, "appointment created", a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	caller, err := auth.Caller(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return httpx.OK(c, "ok", a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	caller, err := auth.Caller(c)
	if err != nil {
		return err
	}
	f := Filter{
		VisitDate: c.QueryParam("date"),
		Status:    c.QueryParam("status"),
	}
	if f.PatientID, err = optionalUUID(c, "patient_id"); err != nil {
		return err
	}
	if f.DoctorID, err = optionalUUID(c, "doctor_id"); err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), caller, f, pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	return httpx.OK(c, "ok", pagination.NewPage(items, total, pg))
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	caller, err := auth.Caller(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	var in UpdateStatusInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	a, err := h.svc.UpdateStatus(c.Request().Context(), caller, id, in.Status)
	if err != nil {
		return err
	}
	return httpx.OK(c, "appointment status updated", a)
}

func optionalUUID(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, apperr.Validation("invalid %s", name)
	}
	return &id, nil
}
