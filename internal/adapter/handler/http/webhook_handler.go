package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/elimupay/billing/internal/domain/provider"
	"github.com/elimupay/billing/internal/usecase"
)

// WebhookHandler receives provider callbacks
type WebhookHandler struct {
	webhooks *usecase.WebhookService
	logger   *zap.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhooks *usecase.WebhookService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		webhooks: webhooks,
		logger:   logger,
	}
}

// HandleWebhook processes one provider delivery. Providers retry on
// non-2xx, so permanent failures are acknowledged with 200 and only
// transient errors surface as 5xx.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	providerName := c.Param("provider")

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "failed to read request body",
		})
	}

	result, err := h.webhooks.ProcessWebhook(c.Request().Context(), providerName, body)
	if err != nil {
		var perr *provider.Error
		if errors.As(err, &perr) {
			switch perr.Kind {
			case provider.FailureUnresolvedReference, provider.FailureValidationMismatch, provider.FailureProviderRejected:
				// Redelivery cannot fix these; ack so the provider stops
				h.logger.Warn("Webhook acknowledged with permanent failure",
					zap.String("provider", providerName),
					zap.String("kind", string(perr.Kind)),
					zap.String("message", perr.Message))
				return c.JSON(http.StatusOK, echo.Map{
					"ResultCode": 1,
					"ResultDesc": "Rejected",
				})
			}
		}

		h.logger.Error("Webhook processing failed",
			zap.String("provider", providerName),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "webhook processing failed",
		})
	}

	h.logger.Info("Webhook handled",
		zap.String("provider", providerName),
		zap.String("outcome", string(result.Outcome)))

	return c.JSON(http.StatusOK, echo.Map{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	})
}
