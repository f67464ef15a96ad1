package handler

import (
	"net/http"

	"docorder-service/internal/dto"
	"docorder-service/internal/middleware"
	"docorder-service/internal/service"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	orderService service.OrderService
	syncService  service.SyncService
}

func NewOrderHandler(orderService service.OrderService, syncService service.SyncService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		syncService:  syncService,
	}
}

func claims(c echo.Context) (*middleware.Claims, error) {
	cl, ok := middleware.ClaimsFrom(c)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return cl, nil
}

// List refreshes the user's settling orders from the gateway before
// returning them. Sync problems never fail the request.
func (h *OrderHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	cl, err := claims(c)
	if err != nil {
		return err
	}

	synced := h.syncService.SyncUserOrders(ctx, cl.UserID())

	orders, err := h.orderService.ListUserOrders(ctx, cl.UserID())
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, &dto.OrdersResponse{
		Orders: orders,
		Sync: &dto.SyncResult{
			Checked: synced.Checked,
			Updated: synced.Updated,
			Errors:  synced.Errors,
		},
	})
}

func (h *OrderHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	cl, err := claims(c)
	if err != nil {
		return err
	}

	var req dto.CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.orderService.CreateOrder(ctx, &service.CreateOrderInput{
		UserID:         cl.UserID(),
		ServiceType:    req.ServiceType,
		DocumentNumber: req.DocumentNumber,
		DocumentType:   req.DocumentType,
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
	})
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) CreatePayment(c echo.Context) error {
	ctx := c.Request().Context()
	cl, err := claims(c)
	if err != nil {
		return err
	}

	order, err := h.orderService.CreatePayment(ctx, &service.CreatePaymentInput{
		OrderID:    c.Param("id"),
		UserID:     cl.UserID(),
		CustomerID: cl.CustomerID,
		IPAddress:  c.RealIP(),
	})
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, order)
}
