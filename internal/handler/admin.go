package handler

import (
	"net/http"

	"docorder-service/internal/dto"
	"docorder-service/internal/model"
	"docorder-service/internal/service"

	"github.com/labstack/echo/v4"
)

type AdminHandler struct {
	adminService service.AdminService
}

func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

func (h *AdminHandler) Transition(c echo.Context) error {
	ctx := c.Request().Context()
	cl, err := claims(c)
	if err != nil {
		return err
	}

	var req dto.TransitionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}

	order, err := h.adminService.Transition(ctx, &service.TransitionRequest{
		OrderID:       c.Param("id"),
		Status:        req.Status,
		PaymentStatus: req.PaymentStatus,
		Notes:         req.Notes,
		Admin:         model.UserActor(cl.UserID()),
		IPAddress:     c.RealIP(),
	})
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, order)
}

func (h *AdminHandler) History(c echo.Context) error {
	orderID := c.Param("id")
	history, err := h.adminService.History(c.Request().Context(), orderID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, &dto.HistoryResponse{OrderID: orderID, History: history})
}
