package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	casescache "curaledger/internal/cases/cache"
	caseshandler "curaledger/internal/cases/handler"
	casesservice "curaledger/internal/cases/service"
	donationhandler "curaledger/internal/donation/handler"
	donationservice "curaledger/internal/donation/service"
	donorstore "curaledger/internal/donation/store"
	"curaledger/internal/events"
	"curaledger/internal/identity"
	ledgermetrics "curaledger/internal/ledger/metrics"
	"curaledger/internal/ledger/models"
	ledgerstore "curaledger/internal/ledger/store"
	"curaledger/internal/platform/config"
	"curaledger/internal/platform/httpserver"
	"curaledger/internal/platform/kafka"
	"curaledger/internal/platform/logger"
	"curaledger/internal/platform/metrics"
	"curaledger/internal/platform/middleware"
	"curaledger/internal/platform/postgres"
	platformredis "curaledger/internal/platform/redis"
	releasehandler "curaledger/internal/release/handler"
	releaseservice "curaledger/internal/release/service"
	"curaledger/internal/transfer"
	verifierhandler "curaledger/internal/verifier/handler"
	verifierservice "curaledger/internal/verifier/service"
	verifierstore "curaledger/internal/verifier/store"
	votinghandler "curaledger/internal/voting/handler"
	votingservice "curaledger/internal/voting/service"
	"curaledger/pkg/domain"
	"curaledger/pkg/platform/circuit"
	"curaledger/pkg/platform/httputil"
)

// caseStore is what the case-facing services need from either backend.
type caseStore interface {
	casesservice.Store
	Execute(ctx context.Context, id domain.CaseID, fn func(agg *models.Aggregate) error) (*models.Aggregate, error)
}

type infra struct {
	db       *sql.DB
	redis    *platformredis.Client
	kafka    *kgo.Client
	cases    caseStore
	donors   donationservice.DonorStore
	registry verifierservice.Store
}

func (i *infra) Close() {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "curaledger: %v\n", err)
		os.Exit(1)
	}
}

// run wires dependencies and serves until SIGINT or SIGTERM. Business logic
// lives in the module service packages.
func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	httpMetrics := metrics.New()
	ledgerMetrics := ledgermetrics.New()

	publishers := events.Fanout{events.NewLogPublisher(log)}
	var executor transfer.Executor = transfer.NewLogExecutor(log)
	if deps.kafka != nil {
		breaker := circuit.New("kafka-events")
		publishers = append(publishers, events.NewGuarded(events.NewKafkaPublisher(deps.kafka, cfg.Kafka.EventsTopic), breaker, log))
		executor = transfer.NewKafkaOutbox(deps.kafka, cfg.Kafka.TransfersTopic)
	}

	caseOpts := []casesservice.Option{
		casesservice.WithLogger(log),
		casesservice.WithMetrics(ledgerMetrics),
		casesservice.WithPolicy(cfg.Ledger),
	}
	if deps.redis != nil {
		reportCache := casescache.NewRedisReportCache(deps.redis, cfg.Redis.ReportTTL)
		caseOpts = append(caseOpts, casesservice.WithReportCache(reportCache))
		publishers = append(publishers, casescache.NewInvalidator(reportCache))
	}
	caseOpts = append(caseOpts, casesservice.WithPublisher(publishers))

	verifiers, err := verifierservice.New(deps.registry,
		verifierservice.WithLogger(log),
		verifierservice.WithMetrics(ledgerMetrics),
		verifierservice.WithPublisher(publishers),
	)
	if err != nil {
		return fmt.Errorf("init verifier service: %w", err)
	}
	cases, err := casesservice.New(deps.cases, verifiers, caseOpts...)
	if err != nil {
		return fmt.Errorf("init case service: %w", err)
	}
	voting, err := votingservice.New(deps.cases, verifiers,
		votingservice.WithLogger(log),
		votingservice.WithMetrics(ledgerMetrics),
		votingservice.WithPublisher(publishers),
		votingservice.WithPolicy(cfg.Ledger),
	)
	if err != nil {
		return fmt.Errorf("init voting service: %w", err)
	}
	donations, err := donationservice.New(deps.cases, deps.donors, executor,
		donationservice.WithLogger(log),
		donationservice.WithMetrics(ledgerMetrics),
		donationservice.WithPublisher(publishers),
		donationservice.WithPolicy(cfg.Ledger),
	)
	if err != nil {
		return fmt.Errorf("init donation service: %w", err)
	}
	releases, err := releaseservice.New(deps.cases, verifiers, executor,
		releaseservice.WithLogger(log),
		releaseservice.WithMetrics(ledgerMetrics),
		releaseservice.WithPublisher(publishers),
		releaseservice.WithPolicy(cfg.Ledger),
	)
	if err != nil {
		return fmt.Errorf("init release service: %w", err)
	}

	ids := identity.NewService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log, httpMetrics))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := deps.health(req.Context()); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(ids, log))
		caseshandler.New(cases, log).Register(r)
		verifierhandler.New(verifiers, log).Register(r)
		votinghandler.New(voting, log).Register(r)
		donationhandler.New(donations, log).Register(r)
		releasehandler.New(releases, ids, log).Register(r)
	})

	srv := httpserver.New(cfg.Server.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting curaledger", "addr", cfg.Server.Addr, "postgres", deps.db != nil, "redis", deps.redis != nil, "kafka", deps.kafka != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildInfra connects the optional backends. Without DATABASE_URL every store
// is in memory; without REDIS_URL reports are uncached; without KAFKA_BROKERS
// events and transfers are only logged.
func buildInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	out := &infra{}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		out.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			out.Close()
			return nil, err
		}
		out.cases = ledgerstore.NewPostgres(db)
		out.donors = donorstore.NewPostgres(db)
		out.registry = verifierstore.NewPostgres(db)
	} else {
		log.Warn("DATABASE_URL not set; ledger state is kept in memory")
		out.cases = ledgerstore.NewInMemory()
		out.donors = donorstore.NewInMemory()
		out.registry = verifierstore.NewInMemory()
	}

	if out.redis, err = platformredis.New(ctx, cfg.Redis); err != nil {
		out.Close()
		return nil, err
	}

	if out.kafka, err = kafka.NewClient(cfg.Kafka); err != nil {
		out.Close()
		return nil, err
	}
	if out.kafka != nil {
		if err := kafka.EnsureTopics(ctx, out.kafka, cfg.Kafka.EventsTopic, cfg.Kafka.TransfersTopic); err != nil {
			out.Close()
			return nil, err
		}
	}
	return out, nil
}

func (i *infra) health(ctx context.Context) error {
	if i.db != nil {
		if err := i.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if i.redis != nil {
		if err := i.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if i.kafka != nil {
		if err := i.kafka.Ping(ctx); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	return nil
}
