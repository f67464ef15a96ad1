package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	logger "github.com/sirupsen/logrus"
)

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite://docorder.db"`

	Auth      Auth      `envPrefix:"AUTH_"`
	Gateway   Gateway   `envPrefix:"GATEWAY_"`
	BrainTree Braintree `envPrefix:"BRAINTREE_"`
	Webhook   Webhook   `envPrefix:"WEBHOOK_"`
	Cron      Cron      `envPrefix:"CRON_"`
	Sync      Sync      `envPrefix:"SYNC_"`
}

type Auth struct {
	JWTSecret  string `env:"JWT_SECRET"`
	CronSecret string `env:"CRON_SECRET"`
}

const (
	GatewayProviderRest      = "rest"
	GatewayProviderBraintree = "braintree"
)

type Gateway struct {
	Provider   string        `env:"PROVIDER" envDefault:"rest"`
	BaseApiURL string        `env:"BASE_API_URL"`
	APIKey     string        `env:"API_KEY"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type Braintree struct {
	Environment string `env:"ENVIRONMENT"`
	MerchantID  string `env:"MERCHANT_ID"`
	PublicKey   string `env:"PUBLIC_KEY"`
	PrivateKey  string `env:"PRIVATE_KEY"`
}

type Webhook struct {
	Token string `env:"TOKEN"`
	// AllowUnsigned accepts webhooks without a signature when Token is
	// empty. Local development only.
	AllowUnsigned   bool    `env:"ALLOW_UNSIGNED" envDefault:"false"`
	SignatureHeader string  `env:"SIGNATURE_HEADER" envDefault:"asaas-access-token"`
	RateLimit       float64 `env:"RATE_LIMIT" envDefault:"10"`
	RateBurst       int     `env:"RATE_BURST" envDefault:"20"`

	QueueEnabled      bool          `env:"QUEUE_ENABLED" envDefault:"false"`
	QueuePollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"2s"`
	QueueBatchSize    int           `env:"QUEUE_BATCH_SIZE" envDefault:"20"`
	QueueMaxAttempts  int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"5"`
}

type Cron struct {
	Enabled         bool          `env:"ENABLED" envDefault:"true"`
	Interval        time.Duration `env:"INTERVAL" envDefault:"5m"`
	Window          time.Duration `env:"WINDOW" envDefault:"168h"`
	Delay           time.Duration `env:"DELAY" envDefault:"200ms"`
	LockDatabaseURL string        `env:"LOCK_DATABASE_URL"`
}

type Sync struct {
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
	// TrustProxy takes the client IP from X-Forwarded-For set by a proxy on
	// a loopback or private address. Otherwise the socket peer address is used.
	TrustProxy bool `env:"HTTP_TRUST_PROXY" envDefault:"false"`
}

func (e Environment) IsDevelopment() bool {
	return e.Name == "development"
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found (ok in prod)")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Gateway.Provider {
	case GatewayProviderRest, GatewayProviderBraintree:
	default:
		return fmt.Errorf("unknown gateway provider %q", c.Gateway.Provider)
	}
	if c.Webhook.QueueMaxAttempts < 1 {
		return fmt.Errorf("WEBHOOK_QUEUE_MAX_ATTEMPTS must be at least 1")
	}
	if c.Webhook.Token == "" && !c.Webhook.AllowUnsigned {
		return fmt.Errorf("WEBHOOK_TOKEN is required unless WEBHOOK_ALLOW_UNSIGNED is set")
	}
	if c.Environment.IsDevelopment() {
		return nil
	}
	if c.Webhook.AllowUnsigned && c.Webhook.Token == "" {
		return fmt.Errorf("WEBHOOK_ALLOW_UNSIGNED is only allowed in development")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required outside development")
	}
	return nil
}
