package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cadastra/internal/directory"
	dochandler "cadastra/internal/document/handler"
	docservice "cadastra/internal/document/service"
	docstore "cadastra/internal/document/store"
	enchandler "cadastra/internal/encumbrance/handler"
	encservice "cadastra/internal/encumbrance/service"
	encstore "cadastra/internal/encumbrance/store"
	"cadastra/internal/ledger"
	"cadastra/internal/notification/adapters"
	notifhandler "cadastra/internal/notification/handler"
	"cadastra/internal/notification/hub"
	notifservice "cadastra/internal/notification/service"
	notifstore "cadastra/internal/notification/store"
	"cadastra/internal/platform/config"
	"cadastra/internal/platform/httpserver"
	"cadastra/internal/platform/kafka"
	"cadastra/internal/platform/logger"
	"cadastra/internal/platform/metrics"
	"cadastra/internal/platform/middleware"
	"cadastra/internal/platform/redis"
	"cadastra/internal/storage"
	"cadastra/pkg/platform/audit"
	"cadastra/pkg/platform/audit/publisher"
	"cadastra/pkg/platform/audit/sink"
	auditmem "cadastra/pkg/platform/audit/store/memory"
	auditpg "cadastra/pkg/platform/audit/store/postgres"
)

// main wires dependencies and owns process lifecycle. Business rules live in
// the internal service packages; everything here is construction and shutdown
// ordering.
func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	m := metrics.New()

	// Persistence. Without DATABASE_URL everything runs in memory, which is
	// the local development mode.
	var (
		db            *sql.DB
		encumbrances  encstore.Store
		documents     docstore.Store
		notifications notifstore.NotificationStore
		settings      notifstore.SettingsStore
		auditStore    audit.Store
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return err
		}
		encumbrances = encstore.NewPostgresStore(db)
		documents = docstore.NewPostgresStore(db)
		notifications = notifstore.NewPostgresNotificationStore(db)
		settings = notifstore.NewPostgresSettingsStore(db)
		auditStore = auditpg.New(db)
		log.Info("postgres stores ready")
	} else {
		encumbrances = encstore.NewInMemoryStore()
		documents = docstore.NewInMemoryStore()
		notifications = notifstore.NewInMemoryNotificationStore()
		settings = notifstore.NewInMemorySettingsStore()
		auditStore = auditmem.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	files, err := storage.NewDisk(cfg.DataDir)
	if err != nil {
		return err
	}

	// Ledger anchoring. The simulated ledger takes its sequence from Redis
	// when available so anchor refs stay monotonic across restarts.
	var seq ledger.Sequence = ledger.NewMemorySequence()
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		seq = ledger.NewRedisSequence(redisClient, "cadastra:ledger:seq")
		log.Info("redis sequence ready")
	}
	anchor := ledger.NewSimulated(seq)

	// Audit pipeline. Events persist locally and, when brokers are
	// configured, mirror to Kafka for the materializing consumer.
	auditOpts := []publisher.Option{
		publisher.WithAsyncBuffer(256),
		publisher.WithLogger(log),
	}
	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafka.NewProducer(kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: "cadastra-server",
		}, log)
		if err != nil {
			return err
		}
		defer producer.Close()

		kafkaSink := sink.NewKafka(producer, cfg.Kafka.TopicPrefix)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.DependencyTimeout)
		err = kafkaSink.EnsureTopics(ctx)
		cancel()
		if err != nil {
			return err
		}
		auditOpts = append(auditOpts, publisher.WithMirror(kafkaSink))
		log.Info("kafka audit mirror ready")
	}
	auditor := publisher.NewPublisher(auditStore, auditOpts...)
	defer auditor.Close()

	// Directory lookups are the boundary to the user and parcel subsystems.
	// Memory-backed until their services expose a client; seeded from env
	// fixtures in development.
	users := directory.NewMemoryUsers()
	parcels := directory.NewMemoryParcels()
	seedDirectory(users, parcels)

	liveHub := hub.New(log)
	notifier := notifservice.New(notifservice.Config{
		Notifications:  notifications,
		Settings:       settings,
		Users:          users,
		SMS:            adapters.NewSimulatedSMS(log),
		Email:          adapters.NewSimulatedEmail(log),
		Push:           adapters.NewSimulatedPush(log),
		InApp:          liveHub,
		Audit:          auditor,
		ChannelTimeout: cfg.DependencyTimeout,
		Logger:         log,
		Metrics:        m,
	})

	encumbranceSvc := encservice.New(encservice.Config{
		Store:         encumbrances,
		Parcels:       parcels,
		Users:         users,
		Anchor:        anchor,
		Notifier:      notifier,
		Audit:         auditor,
		AnchorTimeout: cfg.DependencyTimeout,
		Logger:        log,
		Metrics:       m,
	})

	documentSvc := docservice.New(docservice.Config{
		Store:         documents,
		Files:         files,
		Anchor:        anchor,
		Notifier:      notifier,
		Audit:         auditor,
		AnchorTimeout: cfg.DependencyTimeout,
		Logger:        log,
		Metrics:       m,
	})

	router := newRouter(cfg, log, routerDeps{
		encumbrances:  enchandler.New(encumbranceSvc, log),
		documents:     dochandler.New(documentSvc, log),
		notifications: notifhandler.New(notifier, log),
		hub:           liveHub,
		db:            db,
		redis:         redisClient,
	})

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting cadastra", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

type routerDeps struct {
	encumbrances  *enchandler.Handler
	documents     *dochandler.Handler
	notifications *notifhandler.Handler
	hub           *hub.Hub
	db            *sql.DB
	redis         *redis.Client
}

func newRouter(cfg config.Server, log *slog.Logger, deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.ClientMetadata)

	r.Get("/healthz", healthHandler(deps.db, deps.redis))
	r.Handle("/metrics", promhttp.Handler())

	validator := middleware.NewJWTValidator(cfg.JWTSigningKey)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, log))
		r.Use(middleware.Timeout(30 * time.Second))

		// Documents accept multipart uploads, so only the JSON routes get
		// the content-type gate.
		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			deps.encumbrances.Register(r)
			deps.notifications.Register(r)
		})
		deps.documents.Register(r)
	})

	// The websocket route skips ContentTypeJSON and the request timeout;
	// connections are long-lived.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, log))
		r.Handle("/ws/notifications", deps.hub)
	})

	return r
}

func healthHandler(db *sql.DB, redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
