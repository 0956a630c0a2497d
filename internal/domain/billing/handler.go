package billing

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
	r := api.Group("", auth.RequireRole("admin", "crc", "receptionist"))
	r.GET("/patients/:id/installments", h.ListInstallments)
	r.GET("/installments/:id", h.GetInstallment)
	r.GET("/installments/:id/payments", h.ListPayments)

	w := api.Group("", auth.RequireRole("admin", "receptionist"))
	w.POST("/installments", h.CreateInstallment)
	w.POST("/installments/:id/payments", h.ReceivePayment)
	w.POST("/expenses", h.CreateExpense)
	w.GET("/expenses", h.ListExpenses)
	w.POST("/expenses/:id/payments", h.PayExpense)
	w.POST("/register/open", h.OpenRegister)
	w.POST("/register/close", h.CloseRegister)
	w.GET("/register/current", h.CurrentRegister)
	w.GET("/register/sessions", h.ListRegisterSessions)
	w.GET("/register/sessions/:id/entries", h.RegisterEntries)
}

func (h *Handler) CreateInstallment(c echo.Context) error {
	var spec InstallmentSpec
	if err := c.Bind(&spec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	inst, err := h.svc.CreateInstallment(c.Request().Context(), spec)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusCreated, inst)
}

func (h *Handler) GetInstallment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	inst, err := h.svc.GetInstallment(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, inst)
}

func (h *Handler) ListInstallments(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListInstallmentsByPatient(c.Request().Context(), patientID, pg)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ReceivePayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in PaymentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	inst, err := h.svc.ReceivePayment(ctx, id, auth.UserIDFromContext(ctx), in)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, inst)
}

func (h *Handler) ListPayments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	records, err := h.svc.ListPayments(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, records)
}

func (h *Handler) CreateExpense(c echo.Context) error {
	var e Expense
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.CreateExpense(c.Request().Context(), &e)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListExpenses(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListExpenses(c.Request().Context(), c.QueryParam("status"), pg)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) PayExpense(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in PaymentInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := h.svc.PayExpense(c.Request().Context(), id, in)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, e)
}

type openRegisterRequest struct {
	InitialBalance float64 `json:"initial_balance"`
	Observations   *string `json:"observations,omitempty"`
}

func (h *Handler) OpenRegister(c echo.Context) error {
	var req openRegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	sess, err := h.svc.OpenRegister(ctx, auth.UserIDFromContext(ctx), req.InitialBalance, req.Observations)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusCreated, sess)
}

type closeRegisterRequest struct {
	ClosingBalance float64 `json:"closing_balance"`
	Observations   *string `json:"observations,omitempty"`
}

func (h *Handler) CloseRegister(c echo.Context) error {
	var req closeRegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.CloseRegister(c.Request().Context(), req.ClosingBalance, req.Observations)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) CurrentRegister(c echo.Context) error {
	sess, err := h.svc.CurrentRegister(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) ListRegisterSessions(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRegisterSessions(c.Request().Context(), pg)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) RegisterEntries(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	entries, err := h.svc.RegisterEntries(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}
