package vaccineschedule

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
	"github.com/vaxsched/vaxsched/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/vaccine-schedules")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:type", h.Get)
	g.PUT("/:type", h.Update)
	g.POST("/:type/deactivate", h.Deactivate)
	g.GET("/:type/calculate", h.Calculate)
}

// scheduleRequest is the write payload. Active defaults to true when omitted.
type scheduleRequest struct {
	VaccineType   string `json:"vaccine_type"`
	DisplayName   string `json:"display_name"`
	TotalDoses    int    `json:"total_doses"`
	DoseIntervals []int  `json:"dose_intervals"`
	Active        *bool  `json:"active"`
}

func (r scheduleRequest) toModel() VaccineSchedule {
	v := VaccineSchedule{
		VaccineType:   r.VaccineType,
		DisplayName:   r.DisplayName,
		TotalDoses:    r.TotalDoses,
		DoseIntervals: r.DoseIntervals,
		Active:        true,
	}
	if r.Active != nil {
		v.Active = *r.Active
	}
	return v
}

func (h *Handler) Create(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v := req.toModel()
	if err := h.svc.Create(c.Request().Context(), &v); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) Get(c echo.Context) error {
	v, err := h.svc.Get(c.Request().Context(), c.Param("type"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	activeOnly := c.QueryParam("active") == "true"
	items, total, err := h.svc.List(c.Request().Context(), activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	existing, err := h.svc.Get(c.Request().Context(), c.Param("type"))
	if err != nil {
		return httpError(err)
	}
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v := req.toModel()
	if req.Active == nil {
		v.Active = existing.Active
	}
	v.ID = existing.ID
	v.VaccineType = existing.VaccineType
	v.CreatedAt = existing.CreatedAt
	if err := h.svc.Update(c.Request().Context(), &v); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) Deactivate(c echo.Context) error {
	if err := h.svc.Deactivate(c.Request().Context(), c.Param("type")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Calculate(c echo.Context) error {
	first, err := doseschedule.ParseDate(c.QueryParam("first_dose"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid first_dose")
	}
	received := 0
	if raw := c.QueryParam("doses_received"); raw != "" {
		received, err = strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doses_received")
		}
	}
	res, err := h.svc.Calculate(c.Request().Context(), c.Param("type"), first, received)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrScheduleNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrScheduleInactive):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, doseschedule.ErrMalformedSchedule),
		errors.Is(err, doseschedule.ErrInvalidDoseIndex):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
