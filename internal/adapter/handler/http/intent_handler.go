package http

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/pkg/apperr"
	"github.com/elimupay/billing/internal/usecase"
)

// IntentHandler exposes the payment intent API
type IntentHandler struct {
	intents  *usecase.IntentService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewIntentHandler creates a new intent handler
func NewIntentHandler(intents *usecase.IntentService, logger *zap.Logger) *IntentHandler {
	return &IntentHandler{
		intents:  intents,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateIntent starts a collection. The Idempotency-Key header wins over
// the body field; one of the two is required.
func (h *IntentHandler) CreateIntent(c echo.Context) error {
	var req usecase.CreateIntentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "invalid request body",
		})
	}

	if key := c.Request().Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": err.Error(),
		})
	}

	intent, err := h.intents.CreateIntent(c.Request().Context(), &req)
	if err != nil {
		if intent != nil {
			// The intent row exists; the push failed. Surface both.
			return c.JSON(http.StatusBadGateway, echo.Map{
				"intent": intent,
				"error":  err.Error(),
			})
		}
		h.logger.Error("Failed to create intent", zap.Error(err))
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusCreated, intent)
}

// GetIntent returns one intent
func (h *IntentHandler) GetIntent(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid intent id"})
	}

	intent, err := h.intents.GetIntent(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTPError(err)
	}

	return c.JSON(http.StatusOK, intent)
}

// CancelIntent cancels an intent that has not begun processing
func (h *IntentHandler) CancelIntent(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid intent id"})
	}

	intent, err := h.intents.CancelIntent(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTPError(err)
	}

	return c.JSON(http.StatusOK, intent)
}
