package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"consentry/internal/authz"
	"consentry/internal/consent"
	consentservice "consentry/internal/consent/service"
	consentstore "consentry/internal/consent/store"
	"consentry/internal/ledger"
	"consentry/internal/platform/config"
	"consentry/internal/platform/httpserver"
	"consentry/internal/platform/logger"
	"consentry/internal/platform/metrics"
	"consentry/internal/platform/middleware"
	httptransport "consentry/internal/transport/http"
	audit "consentry/pkg/platform/audit"
	auditpub "consentry/pkg/platform/audit/publisher"
	auditmem "consentry/pkg/platform/audit/store/memory"
	auditworker "consentry/pkg/platform/audit/worker"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	store, cleanup, err := buildStore(cfg)
	if err != nil {
		log.Error("store setup failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	replay, err := buildReplaySet(cfg)
	if err != nil {
		log.Error("replay set setup failed", "error", err)
		os.Exit(1)
	}

	auditStore, auditCleanup, err := buildAuditStore(cfg)
	if err != nil {
		log.Error("audit setup failed", "error", err)
		os.Exit(1)
	}
	defer auditCleanup()

	m := metrics.New()
	clock := ledger.SystemClock{}
	sequencer := ledger.NewSequencer(replay)
	policy := consent.ProcessingPolicy{OpenProcessors: cfg.OpenProcessors}

	auditCh := make(chan audit.Event, cfg.AuditBuffer)
	worker := auditworker.New(auditStore, auditCh, log)

	service := consentservice.New(store, sequencer, clock, policy, auditCh, m)
	engine := authz.New(service, clock, m, auditCh)

	handler := httptransport.New(service, engine, log)
	validator := middleware.NewHMACValidator(cfg.JWTSigningKey)
	router := httptransport.NewRouter(handler, validator, log, m)
	srv := httpserver.New(cfg.Addr, router, cfg.ShutdownTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting consentry", "addr", cfg.Addr)
		return srv.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildStore prefers postgres, falling back to the in-process store for
// local development.
func buildStore(cfg config.Server) (consentstore.Store, func(), error) {
	if cfg.PostgresDSN == "" {
		return consentstore.NewMemoryStore(), func() {}, nil
	}
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.Exec(consentstore.Schema); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return consentstore.NewPostgres(db), func() { _ = db.Close() }, nil
}

func buildReplaySet(cfg config.Server) (ledger.ReplaySet, error) {
	if cfg.RedisAddr == "" {
		return ledger.NewMemoryReplaySet(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return ledger.NewRedisReplaySet(client, 0), nil
}

func buildAuditStore(cfg config.Server) (audit.Store, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		return auditmem.New(), func() {}, nil
	}
	pub, err := auditpub.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	return pub, pub.Close, nil
}
