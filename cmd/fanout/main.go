package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	_ "github.com/Strob0t/Fanout/internal/adapter/discord"
	cfhttp "github.com/Strob0t/Fanout/internal/adapter/http"
	"github.com/Strob0t/Fanout/internal/adapter/jwtauth"
	"github.com/Strob0t/Fanout/internal/adapter/memory"
	cfnats "github.com/Strob0t/Fanout/internal/adapter/nats"
	"github.com/Strob0t/Fanout/internal/adapter/natskv"
	"github.com/Strob0t/Fanout/internal/adapter/orders"
	cfotel "github.com/Strob0t/Fanout/internal/adapter/otel"
	"github.com/Strob0t/Fanout/internal/adapter/postgres"
	"github.com/Strob0t/Fanout/internal/adapter/ristretto"
	_ "github.com/Strob0t/Fanout/internal/adapter/slack"
	"github.com/Strob0t/Fanout/internal/adapter/tiered"
	"github.com/Strob0t/Fanout/internal/adapter/ws"
	"github.com/Strob0t/Fanout/internal/config"
	"github.com/Strob0t/Fanout/internal/domain/webhook"
	"github.com/Strob0t/Fanout/internal/logger"
	"github.com/Strob0t/Fanout/internal/middleware"
	"github.com/Strob0t/Fanout/internal/port/alerter"
	"github.com/Strob0t/Fanout/internal/port/cache"
	"github.com/Strob0t/Fanout/internal/port/database"
	"github.com/Strob0t/Fanout/internal/port/receipts"
	"github.com/Strob0t/Fanout/internal/resilience"
	"github.com/Strob0t/Fanout/internal/service"
)

const ownershipBucket = "fanout-order-owners"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"store", cfg.Store.Driver,
		"nats", cfg.NATS.URL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOtel, err := cfotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	clock := clockwork.NewRealClock()

	// --- Infrastructure ---

	var store database.EndpointStore
	switch cfg.Store.Driver {
	case "postgres":
		applied, err := postgres.Migrate(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied", "count", applied)

		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		store = postgres.NewEndpointStore(pool)
		slog.Info("postgres connected")
	default:
		store = memory.NewEndpointStore()
		slog.Warn("using in-memory endpoint store, registrations are lost on restart")
	}

	var queue *cfnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = cfnats.Connect(ctx, cfg.NATS)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()
	}

	local, err := ristretto.New(cfg.Orders.CacheMaxCost)
	if err != nil {
		return fmt.Errorf("ownership cache: %w", err)
	}
	defer local.Close()

	var ownerCache cache.Cache = local
	if queue != nil {
		remote, err := natskv.Open(ctx, queue.JetStream(), ownershipBucket, cfg.Orders.CacheTTL)
		if err != nil {
			return fmt.Errorf("ownership kv: %w", err)
		}
		ownerCache = tiered.New(local, remote, cfg.Orders.CacheTTL)
	}

	// --- Services ---

	registry := service.NewWebhookRegistry(store, clock)

	channels, err := alertChannels(cfg.Alerts)
	if err != nil {
		return fmt.Errorf("alerts: %w", err)
	}
	alerts := service.NewEndpointAlerts(cfg.Alerts.Timeout, channels...)
	alerts.Watch(registry)
	defer alerts.Wait()

	engine := service.NewDeliveryEngine(
		registry,
		service.NewSignatureService(),
		cfotel.HTTPClient(&http.Client{Timeout: cfg.Webhook.Timeout}),
		clock,
		metrics,
		cfg.Webhook,
	)
	engine.OnOutcome(func(a webhook.Attempt, o webhook.Outcome) {
		slog.Debug("delivery finished", "event_id", a.EventID, "endpoint_id", a.EndpointID, "attempts", a.Number, "outcome", o)
	})
	engine.Start(ctx)

	ownersClient := orders.NewClient(
		cfg.Orders.URL,
		cfotel.HTTPClient(&http.Client{Timeout: cfg.Orders.Timeout}),
		ownerCache,
		cfg.Orders.CacheTTL,
	)
	ownersClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout, clock))

	connections := service.NewConnectionRegistry(clock)
	rooms := service.NewRoomRouter(connections, ownersClient, metrics)
	dispatcher := service.NewEventDispatcher(rooms, registry, engine, metrics)

	var sink receipts.Sink = cfnats.LogReceiptSink{}
	if queue != nil {
		sink = cfnats.NewReceiptSink(queue, clock)
	}
	sessions := service.NewSessionService(connections, rooms, sink, clock, metrics)

	wsHandler := ws.NewHandler(jwtauth.New(cfg.Auth.JWTSecret, cfg.Auth.Issuer), sessions, cfg.WebSocket)

	if queue != nil {
		ingestor := service.NewEventIngestor(queue, dispatcher, clock)
		cancelIngest, err := ingestor.Start(ctx)
		if err != nil {
			return fmt.Errorf("event ingest: %w", err)
		}
		defer cancelIngest()
	}

	// --- HTTP ---

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Rate > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, clock)
		go limiter.Run(ctx, time.Minute, 10*time.Minute)
	}

	handlers := &cfhttp.Handlers{
		Webhooks:  registry,
		Publisher: dispatcher,
		Clock:     clock,
		Stats: func() cfhttp.Stats {
			return cfhttp.Stats{
				Sessions:          connections.Count(),
				Identities:        connections.IdentityCount(),
				Rooms:             rooms.RoomCount(),
				PendingDeliveries: engine.Pending(),
				QueueConnected:    queue != nil && queue.IsConnected(),
			}
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfotel.HTTPMiddleware(cfg.Logging.Service))

	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Handler)
		}
		r.Handle("/ws", wsHandler)
	})
	cfhttp.MountRoutes(r, handlers, cfg.Auth.AdminToken, limiter)
	if cfg.Auth.IngestSecret != "" {
		cfhttp.MountIngest(r, handlers, cfg.Auth.IngestSecret, limiter)
	}

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	slog.Info("shutting down", "sessions", connections.Count(), "pending_deliveries", engine.Pending())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Live sessions are hijacked connections; Shutdown does not wait for them.
	wsHandler.CloseAll()

	g, gctx := errgroup.WithContext(shutdownCtx)
	g.Go(func() error { return srv.Shutdown(gctx) })
	g.Go(func() error { return engine.Stop(gctx) })
	if queue != nil {
		g.Go(queue.Drain)
	}
	err = g.Wait()

	if otelErr := shutdownOtel(shutdownCtx); otelErr != nil {
		slog.Warn("telemetry shutdown failed", "error", otelErr)
	}
	return err
}

// alertChannels builds one alerter per configured chat webhook.
func alertChannels(cfg config.Alerts) ([]alerter.Alerter, error) {
	urls := map[string]string{
		"slack":   cfg.SlackWebhookURL,
		"discord": cfg.DiscordWebhookURL,
	}
	var out []alerter.Alerter
	for _, name := range alerter.Available() {
		url := urls[name]
		if url == "" {
			continue
		}
		a, err := alerter.New(name, map[string]string{"webhook_url": url})
		if err != nil {
			return nil, err
		}
		out = append(out, a)
		slog.Info("alert channel enabled", "channel", name)
	}
	return out, nil
}
