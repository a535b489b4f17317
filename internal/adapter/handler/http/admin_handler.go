package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/domain/model"
	"github.com/elimupay/billing/internal/domain/repository"
	"github.com/elimupay/billing/internal/usecase"
)

// AdminHandler exposes operator endpoints: refunds, on-demand
// reconciliation runs and dunning schedule configuration
type AdminHandler struct {
	refunds        *usecase.RefundService
	reconciliation *usecase.ReconciliationService
	schedules      repository.DunningScheduleRepository
	logger         *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	refunds *usecase.RefundService,
	reconciliation *usecase.ReconciliationService,
	schedules repository.DunningScheduleRepository,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		refunds:        refunds,
		reconciliation: reconciliation,
		schedules:      schedules,
		logger:         logger,
	}
}

type createRefundRequest struct {
	PaymentID int64           `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

// CreateRefund refunds a settled payment. A zero amount means full refund.
func (h *AdminHandler) CreateRefund(c echo.Context) error {
	var req createRefundRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.PaymentID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_id is required"})
	}

	refund, err := h.refunds.CreateRefund(c.Request().Context(), req.PaymentID, req.Amount, req.Reason)
	if err != nil {
		h.logger.Error("Refund failed", zap.Int64("payment_id", req.PaymentID), zap.Error(err))
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, refund)
}

// RunReconciliation reconciles one calendar day on demand. Defaults to
// yesterday; date overrides in YYYY-MM-DD form.
func (h *AdminHandler) RunReconciliation(c echo.Context) error {
	day := time.Now().AddDate(0, 0, -1)
	if raw := c.QueryParam("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "date must be YYYY-MM-DD"})
		}
		day = parsed
	}

	report, err := h.reconciliation.Run(c.Request().Context(), day)
	if err != nil {
		h.logger.Error("Reconciliation run failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, report)
}

// GetDunningSchedule returns the active default schedule
func (h *AdminHandler) GetDunningSchedule(c echo.Context) error {
	schedule, err := h.schedules.GetDefault(c.Request().Context())
	if err != nil {
		h.logger.Error("Failed to load dunning schedule", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if schedule == nil {
		// No row configured yet; report the stock cadence
		schedule = &model.DunningSchedule{
			Name:            "default",
			RetryOffsets:    model.RetryOffsets{0, 1, 3, 7},
			GracePeriodDays: 7,
			TerminalAction:  model.TerminalActionDowngrade,
		}
	}

	return c.JSON(http.StatusOK, schedule)
}

// PutDunningSchedule creates or replaces the default schedule
func (h *AdminHandler) PutDunningSchedule(c echo.Context) error {
	var schedule model.DunningSchedule
	if err := c.Bind(&schedule); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if len(schedule.RetryOffsets) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "retry_offsets is required"})
	}
	prev := -1
	for _, offset := range schedule.RetryOffsets {
		if offset <= prev {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "retry_offsets must be strictly ascending and non-negative"})
		}
		prev = offset
	}
	if schedule.GracePeriodDays < schedule.RetryOffsets[len(schedule.RetryOffsets)-1] {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "grace_period_days must cover the last retry offset"})
	}
	switch schedule.TerminalAction {
	case model.TerminalActionCancel, model.TerminalActionDowngrade:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "terminal_action must be cancel or downgrade"})
	}

	if existing, err := h.schedules.GetDefault(c.Request().Context()); err == nil && existing != nil {
		schedule.ID = existing.ID
		schedule.CreatedAt = existing.CreatedAt
	}
	schedule.IsActive = true
	schedule.IsDefault = true
	if schedule.Name == "" {
		schedule.Name = "default"
	}

	if err := h.schedules.Save(c.Request().Context(), &schedule); err != nil {
		h.logger.Error("Failed to save dunning schedule", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, &schedule)
}
