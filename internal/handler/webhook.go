package handler

import (
	"errors"
	"io"
	"net/http"

	"storefront-checkout/internal/service"
	"storefront-checkout/internal/util"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	webhookService service.WebhookService
}

func NewWebhookHandler(webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
	}
}

// StripeWebhook acknowledges with 2xx once the event is handled; a non-2xx
// answer makes the processor retry delivery.
func (h *WebhookHandler) StripeWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	signature := c.Request().Header.Get("Stripe-Signature")

	if err := h.webhookService.HandleEvent(ctx, signature, body); err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			return c.NoContent(http.StatusBadRequest)
		}
		util.GetLogger().Error("handle webhook", zap.Error(err))
		return c.NoContent(http.StatusInternalServerError)
	}

	return c.NoContent(http.StatusOK)
}
