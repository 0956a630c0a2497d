package ortho

import (
	"context"
	"net/http"
	"time"

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
	g.GET("/ortho/contracts/:id", h.GetContract)
	g.GET("/patients/:id/ortho/contracts", h.ListContracts)
	g.GET("/ortho/contracts/:id/plan", h.GetPlanByContract)
	g.GET("/ortho/plans/:id", h.GetPlan)
	g.GET("/ortho/plans/:id/appointments", h.ListAppointments)
	g.GET("/ortho/plans/:id/stock", h.ListStock)
	g.GET("/ortho/aging", h.AgingReport)

	w := api.Group("", auth.RequireRole("admin", "professional"))
	w.POST("/ortho/contracts", h.CreateContract)
	w.POST("/ortho/contracts/:id/installments", h.GenerateInstallments)
	w.POST("/ortho/contracts/:id/suspend", h.Suspend)
	w.POST("/ortho/contracts/:id/reactivate", h.Reactivate)
	w.POST("/ortho/contracts/:id/complete", h.Complete)
	w.POST("/ortho/contracts/:id/cancel", h.CancelContract)
	w.POST("/ortho/contracts/:id/plan", h.CreatePlan)
	w.POST("/ortho/contracts/:id/appointments", h.CreateAppointment)
	w.POST("/ortho/plans/:id/advance-phase", h.AdvancePhase)
	w.POST("/ortho/plans/:id/advance-aligner", h.AdvanceAligner)
	w.PUT("/ortho/plans/:id/appliance", h.UpdateAppliance)
	w.POST("/ortho/plans/:id/stock", h.AddStock)
	w.PUT("/ortho/stock/:id/status", h.SetStockStatus)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

type createContractRequest struct {
	PatientID      uuid.UUID  `json:"patient_id"`
	TotalValue     float64    `json:"total_value"`
	DownPayment    float64    `json:"down_payment"`
	NumberOfMonths int        `json:"number_of_months"`
	BillingDay     int        `json:"billing_day"`
	StartDate      *time.Time `json:"start_date,omitempty"`
}

func (h *Handler) CreateContract(c echo.Context) error {
	var req createContractRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	contract := &Contract{
		PatientID:      req.PatientID,
		TotalValue:     req.TotalValue,
		DownPayment:    req.DownPayment,
		NumberOfMonths: req.NumberOfMonths,
		BillingDay:     req.BillingDay,
		RegisteredBy:   auth.UserIDFromContext(ctx),
	}
	if req.StartDate != nil {
		contract.StartDate = *req.StartDate
	}
	if err := h.svc.CreateContract(ctx, contract); err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusCreated, contract)
}

func (h *Handler) GetContract(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	contract, err := h.svc.GetContract(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, contract)
}

func (h *Handler) ListContracts(c echo.Context) error {
	patientID, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListContractsByPatient(c.Request().Context(), patientID, pg)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GenerateInstallments(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	installments, err := h.svc.GenerateInstallments(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusCreated, installments)
}

type suspendRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Suspend(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req suspendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	contract, err := h.svc.Suspend(c.Request().Context(), id, req.Reason)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, contract)
}

func (h *Handler) Reactivate(c echo.Context) error {
	return h.transition(c, h.svc.Reactivate)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.transition(c, h.svc.Complete)
}

func (h *Handler) CancelContract(c echo.Context) error {
	return h.transition(c, h.svc.CancelContract)
}

func (h *Handler) transition(c echo.Context, fn func(ctx context.Context, id uuid.UUID) (*Contract, error)) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	contract, err := fn(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, contract)
}

type createPlanRequest struct {
	Phase              string  `json:"phase"`
	UpperAlignersTotal int     `json:"upper_aligners_total"`
	LowerAlignersTotal int     `json:"lower_aligners_total"`
	ChangeIntervalDays int     `json:"change_interval_days"`
	Archwire           *string `json:"archwire,omitempty"`
	Bracket            *string `json:"bracket,omitempty"`
}

func (h *Handler) CreatePlan(c echo.Context) error {
	contractID, err := parseID(c)
	if err != nil {
		return err
	}
	var req createPlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	plan := &Plan{
		ContractID:         contractID,
		Phase:              req.Phase,
		UpperAlignersTotal: req.UpperAlignersTotal,
		LowerAlignersTotal: req.LowerAlignersTotal,
		ChangeIntervalDays: req.ChangeIntervalDays,
		Archwire:           req.Archwire,
		Bracket:            req.Bracket,
	}
	if err := h.svc.CreatePlan(c.Request().Context(), plan); err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusCreated, plan)
}

func (h *Handler) GetPlan(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	plan, err := h.svc.GetPlan(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, plan)
}

func (h *Handler) GetPlanByContract(c echo.Context) error {
	contractID, err := parseID(c)
	if err != nil {
		return err
	}
	plan, err := h.svc.GetPlanByContract(c.Request().Context(), contractID)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, plan)
}

func (h *Handler) AdvancePhase(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	plan, err := h.svc.AdvancePhase(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, plan)
}

type advanceAlignerRequest struct {
	Arch string `json:"arch"`
}

func (h *Handler) AdvanceAligner(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req advanceAlignerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	plan, err := h.svc.AdvanceAligner(c.Request().Context(), id, req.Arch)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, plan)
}

type applianceRequest struct {
	Archwire  *string    `json:"archwire,omitempty"`
	Bracket   *string    `json:"bracket,omitempty"`
	Installed *time.Time `json:"installed,omitempty"`
}

func (h *Handler) UpdateAppliance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req applianceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	plan, err := h.svc.UpdateAppliance(c.Request().Context(), id, req.Archwire, req.Bracket, req.Installed)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, plan)
}

type createAppointmentRequest struct {
	Date                  *time.Time `json:"date,omitempty"`
	UpperArchwire         *string    `json:"upper_archwire,omitempty"`
	LowerArchwire         *string    `json:"lower_archwire,omitempty"`
	UpperElastic          *string    `json:"upper_elastic,omitempty"`
	LowerElastic          *string    `json:"lower_elastic,omitempty"`
	UpperChain            *string    `json:"upper_chain,omitempty"`
	LowerChain            *string    `json:"lower_chain,omitempty"`
	AlignersDeliveredFrom *int       `json:"aligners_delivered_from,omitempty"`
	AlignersDeliveredTo   *int       `json:"aligners_delivered_to,omitempty"`
	NextVisitDays         *int       `json:"next_visit_days,omitempty"`
	Notes                 string     `json:"notes"`
	HygieneScore          int        `json:"hygiene_score"`
	ComplianceScore       int        `json:"compliance_score"`
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	contractID, err := parseID(c)
	if err != nil {
		return err
	}
	var req createAppointmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	a := &Appointment{
		UpperArchwire:         req.UpperArchwire,
		LowerArchwire:         req.LowerArchwire,
		UpperElastic:          req.UpperElastic,
		LowerElastic:          req.LowerElastic,
		UpperChain:            req.UpperChain,
		LowerChain:            req.LowerChain,
		AlignersDeliveredFrom: req.AlignersDeliveredFrom,
		AlignersDeliveredTo:   req.AlignersDeliveredTo,
		NextVisitDays:         req.NextVisitDays,
		Notes:                 req.Notes,
		HygieneScore:          req.HygieneScore,
		ComplianceScore:       req.ComplianceScore,
		RegisteredBy:          auth.UserIDFromContext(ctx),
	}
	if req.Date != nil {
		a.Date = *req.Date
	}
	if err := h.svc.CreateAppointment(ctx, contractID, a); err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	planID, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(), planID, pg)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type addStockRequest struct {
	Arch     string `json:"arch"`
	Sequence int    `json:"sequence"`
}

func (h *Handler) AddStock(c echo.Context) error {
	planID, err := parseID(c)
	if err != nil {
		return err
	}
	var req addStockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item, err := h.svc.AddStock(c.Request().Context(), planID, req.Arch, req.Sequence)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) ListStock(c echo.Context) error {
	planID, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListStock(c.Request().Context(), planID)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

type stockStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetStockStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req stockStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item, err := h.svc.SetStockStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) AgingReport(c echo.Context) error {
	report, err := h.svc.AgingReport(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(apperr.Status(err), err.Error())
	}
	return c.JSON(http.StatusOK, report)
}
