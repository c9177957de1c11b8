package vaccineschedule

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	h := NewHandler(newTestService())
	return h, echo.New()
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_Create(t *testing.T) {
	h, e := newTestHandler()
	body := `{"vaccine_type":"HepB","display_name":"Hepatitis B","total_doses":3,"dose_intervals":[28,180]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Create(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got VaccineSchedule
	json.Unmarshal(rec.Body.Bytes(), &got)
	if !got.Active {
		t.Error("expected active to default to true")
	}
}

func TestHandler_Create_Malformed(t *testing.T) {
	h, e := newTestHandler()
	body := `{"vaccine_type":"HepB","total_doses":3,"dose_intervals":[28]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	if code := httpCode(t, h.Create(c)); code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", code)
	}
}

func TestHandler_Get_NotFound(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("type")
	c.SetParamValues("nope")
	if code := httpCode(t, h.Get(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_List(t *testing.T) {
	h, e := newTestHandler()
	h.svc.Create(context.Background(), hepB())
	req := httptest.NewRequest(http.MethodGet, "/?active=true", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.List(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected total 1, got %s", rec.Body.String())
	}
}

func TestHandler_Update_KeepsActiveWhenOmitted(t *testing.T) {
	h, e := newTestHandler()
	v := hepB()
	v.Active = false
	h.svc.Create(context.Background(), v)

	body := `{"display_name":"Hep B","total_doses":3,"dose_intervals":[30,150]}`
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("type")
	c.SetParamValues("HepB")
	if err := h.Update(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := h.svc.Get(context.Background(), "HepB")
	if got.Active {
		t.Error("expected schedule to stay inactive")
	}
	if got.DoseIntervals[0] != 30 {
		t.Errorf("expected interval 30, got %d", got.DoseIntervals[0])
	}
}

func TestHandler_Deactivate(t *testing.T) {
	h, e := newTestHandler()
	h.svc.Create(context.Background(), hepB())
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("type")
	c.SetParamValues("HepB")
	if err := h.Deactivate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_Calculate(t *testing.T) {
	h, e := newTestHandler()
	h.svc.Create(context.Background(), hepB())

	req := httptest.NewRequest(http.MethodGet, "/?first_dose=2024-01-15&doses_received=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("type")
	c.SetParamValues("HepB")
	if err := h.Calculate(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := rec.Body.String()
	for _, want := range []string{`"2024-01-15"`, `"2024-02-12"`, `"2024-08-10"`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in %s", want, body)
		}
	}
}

func TestHandler_Calculate_BadInput(t *testing.T) {
	h, e := newTestHandler()
	h.svc.Create(context.Background(), hepB())

	tests := []struct {
		query string
		code  int
	}{
		{"?first_dose=15/01/2024", http.StatusBadRequest},
		{"?first_dose=2024-01-15&doses_received=x", http.StatusBadRequest},
		{"?first_dose=2024-01-15&doses_received=-1", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetParamNames("type")
		c.SetParamValues("HepB")
		if code := httpCode(t, h.Calculate(c)); code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.query, tt.code, code)
		}
	}
}
