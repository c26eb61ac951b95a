package billing

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
	api.POST("/appointments/:id/encounter/complete", h.CompleteEncounter, auth.RequireRole(auth.RoleDoctor))

	api.GET("/invoices", h.ListInvoices)
	api.GET("/invoices/:id", h.GetInvoice)
	api.POST("/invoices/:id/payments", h.RecordPayment, auth.RequireRole(auth.RoleReceptionist))
}

func (h *Handler) CompleteEncounter(c echo.Context) error {
	caller, err := auth.Caller(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	inv, err := h.svc.CompleteEncounter(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return httpx.OK(c, "encounter completed", inv)
}

func (h *Handler) GetInvoice(c echo.Context) error {
	caller, err := auth.Caller(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	inv, err := h.svc.GetInvoice(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return httpx.OK(c, "ok", inv)
}

func (h *Handler) ListInvoices(c echo.Context) error {
	caller, err := auth.Caller(c)
	if err != nil {
		return err
	}
	f := Filter{Status: c.QueryParam("status")}
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return apperr.Validation("invalid patient_id")
		}
		f.PatientID = &id
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListInvoices(c.Request().Context(), caller, f, pg.Limit, pg.Offset())
	if err != nil {
		return err
	}
	return httpx.OK(c, "ok", pagination.NewPage(items, total, pg))
}

func (h *Handler) RecordPayment(c echo.Context) error {
	caller, err := auth.Caller(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	var in PaymentInput
	if err := httpx.Bind(c, &in); err != nil {
		return err
	}
	inv, err := h.svc.RecordPayment(c.Request().Context(), caller, id, in)
	if err != nil {
		return err
	}
	return httpx.Created(c, "payment recorded", inv)
}
