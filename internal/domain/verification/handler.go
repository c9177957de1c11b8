package verification

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vaxsched/vaxsched/internal/domain/doseschedule"
)

type Handler struct {
	svc      *Service
	defaults Options
}

// NewHandler serves reports with the given default options. Query parameters
// override VaccineType and Pairing per request.
func NewHandler(svc *Service, defaults Options) *Handler {
	return &Handler{svc: svc, defaults: defaults}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/verification")
	g.GET("/report", h.Report)
	g.POST("/corrections", h.ApplyCorrections)
}

func (h *Handler) Report(c echo.Context) error {
	opts := h.defaults
	opts.VaccineType = c.QueryParam("vaccine_type")
	if raw := c.QueryParam("pairing"); raw != "" {
		mode, err := doseschedule.ParsePairingMode(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		opts.Pairing = mode
	}
	if c.QueryParam("unscheduled") == "true" {
		opts.IncludeUnscheduled = true
	}

	format := c.QueryParam("format")
	if format != "" && format != "json" && format != "csv" {
		return echo.NewHTTPError(http.StatusBadRequest, "format must be json or csv")
	}

	report, err := h.svc.Verify(c.Request().Context(), opts)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	res := c.Response()
	if format == "csv" {
		res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
		res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="verification-report.csv"`)
		res.WriteHeader(http.StatusOK)
		return WriteCSV(res, report)
	}
	res.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
	res.WriteHeader(http.StatusOK)
	return WriteJSON(res, report)
}

type applyRequest struct {
	AppliedBy string                            `json:"applied_by"`
	Proposals []doseschedule.CorrectionProposal `json:"proposals"`
}

func (h *Handler) ApplyCorrections(c echo.Context) error {
	var req applyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AppliedBy == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "applied_by is required")
	}
	if len(req.Proposals) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "proposals are required")
	}
	res, err := h.svc.ApplyCorrections(c.Request().Context(), req.Proposals, req.AppliedBy)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidProposal):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrPartialCourse):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
