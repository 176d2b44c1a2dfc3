package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"cadastra/internal/platform/config"
	"cadastra/internal/platform/kafka"
	"cadastra/internal/platform/logger"
	"cadastra/pkg/platform/audit/consumer"
	"cadastra/pkg/platform/audit/sink"
	auditpg "cadastra/pkg/platform/audit/store/postgres"
)

const consumerGroup = "cadastra-audit-materializer"

// The audit consumer runs as its own process. It reads the compliance and
// operations topics and materializes events into audit_events, keyed by the
// event ID so replays are no-ops.
func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("audit consumer exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return err
	}

	compliance, operations := sink.Topics(cfg.Kafka.TopicPrefix)

	events := consumer.NewEventsHandler(auditpg.New(db), log)
	router := consumer.NewRouter(log, nil)
	router.Register(compliance, events)
	router.Register(operations, events)

	c, err := kafka.NewConsumer(
		kafka.Config{Brokers: cfg.Kafka.Brokers, ClientID: consumerGroup},
		consumerGroup,
		[]string{compliance, operations},
		router.Handle,
		log,
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("audit consumer starting",
		slog.String("group", consumerGroup),
		slog.Any("brokers", cfg.Kafka.Brokers),
	)
	return c.Run(ctx)
}
