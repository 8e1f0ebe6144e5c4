package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-compliance/internal/auth"
	"github.com/ukydev/fleet-compliance/internal/catalog"
	"github.com/ukydev/fleet-compliance/internal/clock"
	"github.com/ukydev/fleet-compliance/internal/config"
	"github.com/ukydev/fleet-compliance/internal/db"
	"github.com/ukydev/fleet-compliance/internal/handlers"
	"github.com/ukydev/fleet-compliance/internal/instructions"
	"github.com/ukydev/fleet-compliance/internal/metrics"
	"github.com/ukydev/fleet-compliance/internal/middleware"
	"github.com/ukydev/fleet-compliance/internal/models"
	"github.com/ukydev/fleet-compliance/internal/notify"
	"github.com/ukydev/fleet-compliance/internal/requirements"
	"github.com/ukydev/fleet-compliance/internal/review"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		log.WithError(err).Fatal("Failed to configure logging")
	}
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server stopped")
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, closeNotifier := newNotifier(cfg, logger)
	defer closeNotifier()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newServer(cfg, store, clock.Real(), notifier, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("HTTP server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore returns the configured store and a function that releases it.
func openStore(ctx context.Context, cfg *config.Config, logger log.FieldLogger) (db.Store, func(), error) {
	if cfg.StoreBackend == config.BackendMemory {
		logger.Warn("Using the in-memory store; data is lost on restart")
		return db.NewMemoryStore(), func() {}, nil
	}
	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return db.Store{}, nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	database := client.Database(cfg.MongoDB)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		_ = client.Disconnect(context.Background())
		return db.Store{}, nil, err
	}
	logger.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")
	return db.NewMongoStore(database), func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	}, nil
}

// newNotifier connects to MQTT when a broker is configured. A broker that
// cannot be reached disables notifications instead of failing startup.
func newNotifier(cfg *config.Config, logger log.FieldLogger) (notify.Notifier, func()) {
	if cfg.MQTTBrokerURL == "" {
		logger.Info("MQTT broker not configured; notifications disabled")
		return notify.Nop{}, func() {}
	}
	n, client, err := notify.NewMQTTNotifier(notify.MQTTConfig{
		BrokerURL:   cfg.MQTTBrokerURL,
		ClientID:    cfg.MQTTClientID,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		TopicPrefix: cfg.MQTTTopicPrefix,
		Timeout:     cfg.MQTTTimeout,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MQTT broker; notifications disabled")
		return notify.Nop{}, func() {}
	}
	return n, func() { client.Disconnect(250) }
}

// newServer wires the services and returns the root HTTP handler.
func newServer(cfg *config.Config, store db.Store, clk clock.Clock, notifier notify.Notifier, logger log.FieldLogger) http.Handler {
	m := metrics.New()
	authService := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	authMW := middleware.NewAuthMiddleware(authService)
	rateLimit := middleware.NewRateLimitMiddleware()

	req := requirements.NewService(store, clk, logger)
	ins := instructions.NewService(store, req, clk, m, notifier, logger)
	rev := review.NewService(store, req, clk, m, notifier, logger)

	router := &handlers.Router{
		Auth:            handlers.NewAuthHandler(authService, store.Users, logger),
		CredentialTypes: handlers.NewCredentialTypeHandler(catalog.NewService(store, clk, logger), logger),
		Drivers:         handlers.NewCredentialHandler(models.CategoryDriver, req, ins, rev, logger),
		Vehicles:        handlers.NewCredentialHandler(models.CategoryVehicle, req, ins, rev, logger),
		ReviewQueue:     handlers.NewReviewQueueHandler(rev, logger),
		Fleet:           handlers.NewFleetHandler(store, clk, logger),
		Metrics:         m.Handler(),
		Middleware:      authMW,
	}

	var h http.Handler = router.Handler()
	h = authMW.Authenticate(h)
	h = rateLimit.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)(h)
	return middleware.Logging(logger)(h)
}
