package finlock

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/odontocore/clinic/internal/platform/apperr"
	"github.com/odontocore/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "professional", "crc", "receptionist"))
	g.GET("/patients/:id/lock-status", h.CheckStatus)

	u := api.Group("", auth.RequireRole("admin", "professional"))
	u.POST("/patients/:id/unlock", h.Unlock)
}

func (h *Handler) CheckStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	status, err := h.svc.CheckStatus(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, status)
}

type unlockRequest struct {
	PIN string `json:"pin"`
}

func (h *Handler) Unlock(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req unlockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	token, err := h.svc.Unlock(c.Request().Context(), req.PIN, id)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, token)
}
