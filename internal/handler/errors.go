package handler

import (
	"errors"
	"net/http"

	"docorder-service/internal/client"
	"docorder-service/internal/model"
	"docorder-service/internal/service"

	"github.com/labstack/echo/v4"
	logger "github.com/sirupsen/logrus"
)

// httpError maps service errors onto status codes. Anything unknown is
// logged and returned as a bare 500.
func httpError(err error) error {
	var gwErr *client.GatewayError
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, service.ErrInvalidOrder):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotOrderOwner):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrPaymentExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, client.ErrGatewayTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "payment gateway timed out")
	case errors.As(err, &gwErr):
		return echo.NewHTTPError(http.StatusBadGateway, "payment gateway rejected the request")
	}

	logger.WithError(err).Error("request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
