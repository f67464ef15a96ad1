package handler

import (
	"errors"
	"io"
	"net/http"

	"docorder-service/internal/metrics"
	"docorder-service/internal/service"

	"github.com/labstack/echo/v4"
	logger "github.com/sirupsen/logrus"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhookService  service.WebhookService
	signatureHeader string
}

func NewWebhookHandler(webhookService service.WebhookService, signatureHeader string) *WebhookHandler {
	return &WebhookHandler{
		webhookService:  webhookService,
		signatureHeader: signatureHeader,
	}
}

func (h *WebhookHandler) Receive(c echo.Context) error {
	ctx := c.Request().Context()
	ip := c.RealIP()

	if err := h.webhookService.VerifySignature(ctx, c.Request().Header.Get(h.signatureHeader), ip); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		metrics.WebhookRequestsTotal.WithLabelValues("malformed").Inc()
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
	}

	ack, err := h.webhookService.Accept(ctx, body, ip)
	if errors.Is(err, service.ErrMalformedEvent) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		logger.WithError(err).Error("accept webhook")
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, ack)
}

// RateLimited is the deny callback of the webhook rate limiter.
func (h *WebhookHandler) RateLimited(c echo.Context, ip string) {
	h.webhookService.RecordRateLimited(c.Request().Context(), ip, c.Request().URL.Path)
}
