package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicops/clinic/internal/platform/apperr"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Envelope[json.RawMessage] {
	t.Helper()
	var env Envelope[json.RawMessage]
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", apperr.Validation("amount must be positive"), http.StatusBadRequest, "amount must be positive"},
		{"wrapped conflict", fmt.Errorf("book: %w", apperr.Conflict("slot taken")), http.StatusConflict, "slot taken"},
		{"not found", apperr.NotFound("invoice not found"), http.StatusNotFound, "invoice not found"},
		{"forbidden", apperr.Forbidden("not your appointment"), http.StatusForbidden, "not your appointment"},
		{"raw error hidden", errors.New("pq: syntax error"), http.StatusInternalServerError, "internal server error"},
		{"transient hidden", apperr.Transient(errors.New("reset"), "store unavailable"), http.StatusInternalServerError, "service temporarily unavailable, please retry"},
		{"echo error", echo.NewHTTPError(http.StatusUnauthorized, "invalid token"), http.StatusUnauthorized, "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			ErrorHandler(zerolog.Nop())(tt.err, c)

			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			env := decode(t, rec)
			if env.Success {
				t.Error("expected success=false")
			}
			if env.Message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, env.Message)
			}
		})
	}
}

func TestCreated(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

	if err := Created(c, "appointment created", map[string]string{"code": "BN0001"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	env := decode(t, rec)
	if !env.Success || !strings.Contains(string(env.Data), "BN0001") {
		t.Errorf("unexpected envelope %+v", env)
	}
}

func TestBind_MalformedBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	var dst struct{ Reason string }
	if err := Bind(c, &dst); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUUIDParam(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if _, err := UUIDParam(c, "id"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
