package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/vietcart/checkout-service/internal/domain/pricing"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWT         JWTConfig
	Inventory   InventoryConfig
	Cart        CartConfig
	Kafka       KafkaConfig
	Pricing     PricingConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// JWTConfig controls bearer token verification.
type JWTConfig struct {
	Secret string `usage:"HMAC signing key shared with the auth service (CHECKOUT_JWT_SECRET)" flag:"jwt-secret"`
	Issuer string `default:"vietcart-auth" usage:"Expected token issuer" flag:"jwt-issuer"`
}

// InventoryConfig controls the inventory service gateway.
type InventoryConfig struct {
	Addr               string        `default:"http://localhost:50051" usage:"Inventory service base URL" flag:"inventory-addr"`
	Timeout            time.Duration `default:"5s" usage:"Per-attempt inventory RPC timeout" flag:"inventory-timeout"`
	MaxRetries         int           `default:"3" usage:"Additional attempts for retriable inventory failures" flag:"inventory-retries"`
	RetryBackoff       time.Duration `default:"200ms" usage:"Linear backoff unit between inventory retries" flag:"inventory-backoff"`
	ReservationTimeout time.Duration `default:"10m" usage:"Reservation hold window" flag:"reservation-timeout"`
}

// CartConfig controls the cart service client.
type CartConfig struct {
	Addr    string        `default:"http://localhost:8081" usage:"Cart service base URL" flag:"cart-addr"`
	Timeout time.Duration `default:"3s" usage:"Cart request timeout" flag:"cart-timeout"`
}

// KafkaConfig controls the order event producer. An empty broker list
// disables event publishing.
type KafkaConfig struct {
	Brokers   []string `usage:"Kafka bootstrap brokers (CHECKOUT_KAFKA_BROKERS)" flag:"kafka-brokers"`
	InboxSize int      `default:"256" usage:"Event publish buffer capacity" flag:"kafka-inbox-size"`
}

// PricingConfig holds the pricing calculator parameters. Monetary values are
// configured as floats and converted to decimals once at startup.
type PricingConfig struct {
	TaxRate               float64  `default:"0.1" usage:"Tax rate applied to the subtotal" flag:"tax-rate"`
	ShippingFee           float64  `default:"10000" usage:"Flat shipping fee" flag:"shipping-fee"`
	FreeShippingThreshold float64  `default:"500000" usage:"Subtotal at which shipping is free" flag:"free-shipping-threshold"`
	MinOrderAmount        float64  `default:"10000" usage:"Minimum order total" flag:"min-order-amount"`
	Currency              string   `default:"VND" usage:"Pricing currency code"`
	DecimalPlaces         int32    `default:"0" usage:"Rounding precision for monetary values" flag:"decimal-places"`
	BulkMinQuantity       int      `default:"10" usage:"Item count above which the bulk discount applies" flag:"bulk-min-quantity"`
	BulkPercent           float64  `default:"5" usage:"Bulk discount percentage" flag:"bulk-percent"`
	PromoCategories       []string `default:"electronics" usage:"Categories eligible for the promo discount" flag:"promo-categories"`
	PromoPercent          float64  `default:"10" usage:"Promo discount percentage" flag:"promo-percent"`
}

// ToDomain converts the float-based config into the calculator's decimal
// representation.
func (p PricingConfig) ToDomain() pricing.Config {
	return pricing.Config{
		TaxRate:               decimal.NewFromFloat(p.TaxRate),
		ShippingFee:           decimal.NewFromFloat(p.ShippingFee),
		FreeShippingThreshold: decimal.NewFromFloat(p.FreeShippingThreshold),
		MinOrderAmount:        decimal.NewFromFloat(p.MinOrderAmount),
		Currency:              p.Currency,
		DecimalPlaces:         p.DecimalPlaces,
		BulkMinQuantity:       p.BulkMinQuantity,
		BulkPercent:           decimal.NewFromFloat(p.BulkPercent),
		PromoCategories:       p.PromoCategories,
		PromoPercent:          decimal.NewFromFloat(p.PromoPercent),
	}
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	}
	if cfg.JWT.Secret == "" {
		return nil, errors.New("JWT secret is required: set CHECKOUT_JWT_SECRET")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the application's
// CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
