package server

import (
	"context"
	"net/http"

	"docorder-service/internal/config"
	"docorder-service/internal/handler"
	mw "docorder-service/internal/middleware"
	"docorder-service/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"
)

const cronSecretHeader = "X-Cron-Secret"

// Services are the dependencies behind the HTTP routes.
type Services struct {
	Webhook service.WebhookService
	Orders  service.OrderService
	Sync    service.SyncService
	Admin   service.AdminService
	Sweeper handler.Sweeper
}

type Server struct {
	echo           *echo.Echo
	cfg            *config.Config
	webhookHandler *handler.WebhookHandler
	cronHandler    *handler.CronHandler
	orderHandler   *handler.OrderHandler
	adminHandler   *handler.AdminHandler
}

func NewServer(cfg *config.Config, svcs *Services) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = ipExtractor(cfg.HTTP)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := logger.WithFields(logger.Fields{
				"method":    v.Method,
				"uri":       v.URI,
				"status":    v.Status,
				"latency":   v.Latency.String(),
				"remote_ip": v.RemoteIP,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:           e,
		cfg:            cfg,
		webhookHandler: handler.NewWebhookHandler(svcs.Webhook, cfg.Webhook.SignatureHeader),
		cronHandler:    handler.NewCronHandler(svcs.Sweeper),
		orderHandler:   handler.NewOrderHandler(svcs.Orders, svcs.Sync),
		adminHandler:   handler.NewAdminHandler(svcs.Admin),
	}

	s.setupRoutes()
	return s
}

// ipExtractor decides which address rate limits and audit rows see.
// Forwarding headers are only honoured from a proxy on a loopback or
// private address.
func ipExtractor(cfg config.HTTPServer) echo.IPExtractor {
	if cfg.TrustProxy {
		return echo.ExtractIPFromXFFHeader()
	}
	return echo.ExtractIPDirect()
}

func (s *Server) setupRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// -------- provider callbacks --------
	api.POST("/webhooks/payments", s.webhookHandler.Receive,
		mw.PerIPRateLimit(s.cfg.Webhook.RateLimit, s.cfg.Webhook.RateBurst, s.webhookHandler.RateLimited))

	// -------- external scheduler --------
	api.POST("/internal/cron/reconcile", s.cronHandler.Reconcile,
		mw.RequireSecret(cronSecretHeader, s.cfg.Auth.CronSecret))

	// -------- users --------
	secret := []byte(s.cfg.Auth.JWTSecret)
	orders := api.Group("/orders", mw.JWTAuth(secret))
	orders.GET("", s.orderHandler.List)
	orders.POST("", s.orderHandler.Create)
	orders.POST("/:id/payment", s.orderHandler.CreatePayment)

	// -------- admins --------
	admin := api.Group("/admin", mw.JWTAuth(secret), mw.RequireAdmin())
	admin.POST("/orders/:id/status", s.adminHandler.Transition)
	admin.GET("/orders/:id/history", s.adminHandler.History)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
