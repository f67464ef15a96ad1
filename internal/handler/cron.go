package handler

import (
	"context"
	"errors"
	"net/http"

	"docorder-service/internal/service"

	"github.com/labstack/echo/v4"
	logger "github.com/sirupsen/logrus"
)

// Sweeper runs one reconciliation pass.
type Sweeper interface {
	Sweep(ctx context.Context) (*service.SweepSummary, error)
}

type CronHandler struct {
	sweeper Sweeper
}

func NewCronHandler(sweeper Sweeper) *CronHandler {
	return &CronHandler{sweeper: sweeper}
}

// Reconcile is called by an external scheduler. A sweep already running in
// this process or on another replica answers 409.
func (h *CronHandler) Reconcile(c echo.Context) error {
	summary, err := h.sweeper.Sweep(c.Request().Context())
	if errors.Is(err, service.ErrSweepInProgress) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil && summary == nil {
		logger.WithError(err).Error("cron sweep failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "sweep failed")
	}

	return c.JSON(http.StatusOK, summary)
}
