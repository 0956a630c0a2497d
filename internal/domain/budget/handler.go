package budget

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/odontocore/clinic/internal/platform/apperr"
	"github.com/odontocore/clinic/internal/platform/auth"
	"github.com/odontocore/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "professional", "crc", "receptionist"))
	g.GET("/budgets/:id", h.Get)
	g.GET("/patients/:id/budgets", h.ListByPatient)

	w := api.Group("", auth.RequireRole("admin", "professional", "crc"))
	w.POST("/budgets", h.Create)
	w.PUT("/budgets/:id", h.Update)
	w.POST("/budgets/:id/approve", h.Approve)
	w.POST("/budgets/:id/cancel", h.Cancel)
	w.POST("/budgets/:id/negotiate", h.SendToNegotiation)

	d := api.Group("", auth.RequireRole("admin"))
	d.DELETE("/budgets/:id", h.Delete)
}

type createRequest struct {
	PatientID    uuid.UUID `json:"patient_id"`
	Items        []*Item   `json:"items"`
	Discount     float64   `json:"discount"`
	Installments int       `json:"installments"`
	Status       string    `json:"status,omitempty"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	b := &Budget{
		PatientID:    req.PatientID,
		Items:        req.Items,
		Discount:     req.Discount,
		Installments: req.Installments,
		Status:       req.Status,
		RegisteredBy: auth.UserIDFromContext(ctx),
	}
	if err := h.svc.Create(ctx, b); err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), patientID, pg)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type updateRequest struct {
	Items        []*Item `json:"items"`
	Discount     float64 `json:"discount"`
	Installments int     `json:"installments"`
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := h.svc.Update(c.Request().Context(), id, req.Items, req.Discount, req.Installments)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Approve(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	b, err := h.svc.Approve(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, b)
}

type cancelRequest struct {
	Reason *string `json:"reason,omitempty"`
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	b, err := h.svc.Cancel(ctx, id, auth.UserIDFromContext(ctx), req.Reason)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, b)
}

type negotiateRequest struct {
	Notes *string `json:"notes,omitempty"`
}

func (h *Handler) SendToNegotiation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req negotiateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	oppID, err := h.svc.SendToNegotiation(ctx, id, auth.UserIDFromContext(ctx), req.Notes)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"opportunity_id": oppID})
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
