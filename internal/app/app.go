// Package app wires the checkout service together and owns its lifecycle.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vietcart/checkout-service/internal/cart"
	"github.com/vietcart/checkout-service/internal/domain/order"
	"github.com/vietcart/checkout-service/internal/domain/pricing"
	"github.com/vietcart/checkout-service/internal/events"
	"github.com/vietcart/checkout-service/internal/handler"
	"github.com/vietcart/checkout-service/internal/inventory"
	"github.com/vietcart/checkout-service/internal/repository"
	"github.com/vietcart/checkout-service/pkg/health"
	"github.com/vietcart/checkout-service/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.DatabasePingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	orderRepo := repository.NewOrderRepository(pool)
	mismatchRepo := repository.NewMismatchRepository(pool)

	// Order event producer. Without brokers events are dropped.
	var publisher order.EventPublisher = events.NopPublisher{}
	var producer *events.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = events.NewProducer(events.Config{
			Brokers:   cfg.Kafka.Brokers,
			InboxSize: cfg.Kafka.InboxSize,
		}, lg.Named("events"))
		publisher = producer
	} else {
		lg.Warn("Kafka brokers not configured, order events disabled")
	}

	// External collaborators.
	inventoryClient := inventory.NewRPCClient(inventory.Config{
		BaseURL:            cfg.Inventory.Addr,
		Timeout:            cfg.Inventory.Timeout,
		MaxRetries:         cfg.Inventory.MaxRetries,
		RetryBackoff:       cfg.Inventory.RetryBackoff,
		ReservationTimeout: cfg.Inventory.ReservationTimeout,
	})
	cartClient := cart.NewClient(cart.Config{
		BaseURL: cfg.Cart.Addr,
		Timeout: cfg.Cart.Timeout,
	})

	// Domain services.
	calculator := pricing.NewCalculator(cfg.Pricing.ToDomain())
	orderService := order.NewService(orderRepo, inventoryClient, cartClient, calculator, publisher, mismatchRepo)

	// HTTP surface: API routes + health endpoints on one server.
	auth := handler.NewAuthenticator(handler.AuthConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
	})
	h := handler.NewHandler(orderService, auth)

	router := chi.NewRouter()
	h.Register(router)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", router)

	instrumented := otelhttp.NewHandler(mux, "checkout-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(instrumented,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Lifecycle: server, event producer, and graceful shutdown run as one
	// group; the first failure or context cancellation stops them all.
	g, gCtx := errgroup.WithContext(ctx)

	if producer != nil {
		g.Go(func() error {
			return producer.Run(gCtx)
		})
	}

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		if producer != nil {
			producer.WaitClosed()
		}
		return nil
	})

	return g.Wait()
}
