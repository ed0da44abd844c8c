// Command server wires the stampgate process: stores, signing, the domain
// services and the HTTP surface. Business logic lives under internal/.
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
	"time"

	_ "github.com/lib/pq"

	batchhandler "stampgate/internal/batch/handler"
	batchservice "stampgate/internal/batch/service"
	batchstore "stampgate/internal/batch/store"
	certhandler "stampgate/internal/certificate/handler"
	certmetrics "stampgate/internal/certificate/metrics"
	certservice "stampgate/internal/certificate/service"
	certstore "stampgate/internal/certificate/store"
	"stampgate/internal/jwtauth"
	"stampgate/internal/platform/config"
	"stampgate/internal/platform/httpserver"
	"stampgate/internal/platform/logger"
	platformmetrics "stampgate/internal/platform/metrics"
	platformredis "stampgate/internal/platform/redis"
	refhandler "stampgate/internal/reference/handler"
	refmetrics "stampgate/internal/reference/metrics"
	"stampgate/internal/reference/sequence"
	refservice "stampgate/internal/reference/service"
	refstore "stampgate/internal/reference/store"
	"stampgate/internal/signing/keyholder"
	stamphandler "stampgate/internal/stamping/handler"
	stampservice "stampgate/internal/stamping/service"
	stampstore "stampgate/internal/stamping/store"
	"stampgate/internal/transmission/client"
	transmissionhandler "stampgate/internal/transmission/handler"
	transmissionmetrics "stampgate/internal/transmission/metrics"
	transmissionservice "stampgate/internal/transmission/service"
	transmissionstore "stampgate/internal/transmission/store"
	httptransport "stampgate/internal/transport/http"
	"stampgate/pkg/platform/audit"
	auditkafka "stampgate/pkg/platform/audit/kafka"
	"stampgate/pkg/platform/audit/publisher"
	auditmemory "stampgate/pkg/platform/audit/store/memory"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var probes []httptransport.Probe

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		probes = append(probes, httptransport.Probe{Name: "postgres", Check: db.PingContext})
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		probes = append(probes, httptransport.Probe{Name: "redis", Check: redisClient.Health})
	}

	// Audit trail: Kafka when brokers are configured, in-process otherwise.
	var auditStore audit.Store
	if len(cfg.KafkaBrokers) > 0 {
		kafkaStore, err := auditkafka.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaStore.Close()
		auditStore = kafkaStore
	} else {
		auditStore = auditmemory.NewInMemoryStore()
	}
	auditPublisher := publisher.NewPublisher(auditStore, publisher.WithAsyncBuffer(256))
	defer auditPublisher.Close()

	// Reference generator: the duplicate index prefers Redis, then Postgres;
	// the sequence allocator needs durable storage, so it follows Postgres.
	var dupIndex refstore.DuplicateIndex
	var sequences sequence.Allocator
	switch {
	case redisClient != nil:
		dupIndex = refstore.NewRedis(redisClient.Client)
	case db != nil:
		dupIndex = refstore.NewPostgres(db)
	default:
		dupIndex = refstore.NewInMemory()
	}
	if db != nil {
		sequences = sequence.NewPostgres(db)
	} else {
		sequences = sequence.NewInMemory(1)
	}

	var certs certstore.Store
	var stamps stampstore.Store
	var ledger transmissionstore.Ledger
	if db != nil {
		certs = certstore.NewPostgres(db)
		stamps = stampstore.NewPostgres(db)
		ledger = transmissionstore.NewPostgres(db)
	} else {
		certs = certstore.NewInMemory()
		stamps = stampstore.NewInMemory()
		ledger = transmissionstore.NewInMemory()
	}

	keyHolder := keyholder.NewInMemory()

	refSvc, err := refservice.New(dupIndex, sequences,
		refservice.WithLogger(log),
		refservice.WithMetrics(refmetrics.New()),
		refservice.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return fmt.Errorf("build reference service: %w", err)
	}

	certSvc, err := certservice.New(certs, keyHolder,
		certservice.WithLogger(log),
		certservice.WithMetrics(certmetrics.New()),
		certservice.WithAuditPublisher(auditPublisher),
		certservice.WithExpiryWindow(cfg.CertExpiryWindow),
	)
	if err != nil {
		return fmt.Errorf("build certificate service: %w", err)
	}

	stampSvc, err := stampservice.New(stamps, certSvc, keyHolder,
		stampservice.WithLogger(log),
		stampservice.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		return fmt.Errorf("build stamping service: %w", err)
	}

	endpoint := client.NewHTTP(cfg.Endpoint.BaseURL, cfg.Endpoint.APIKey, cfg.Endpoint.Timeout)

	engine, err := transmissionservice.New(ledger, stampSvc, endpoint,
		transmissionservice.WithLogger(log),
		transmissionservice.WithMetrics(transmissionmetrics.New()),
		transmissionservice.WithAuditPublisher(auditPublisher),
		transmissionservice.WithBackoffPolicy(transmissionservice.NewBackoffPolicy(cfg.Retry.BaseDelay, cfg.Retry.CapDelay)),
		transmissionservice.WithMaxRetries(cfg.Retry.MaxRetries),
	)
	if err != nil {
		return fmt.Errorf("build transmission engine: %w", err)
	}

	batchSvc, err := batchservice.New(batchstore.NewInMemory(), engine,
		batchservice.WithLogger(log),
		batchservice.WithConcurrency(cfg.BatchConcurrency),
		batchservice.WithObservationWindow(cfg.BatchWindow),
	)
	if err != nil {
		return fmt.Errorf("build batch orchestrator: %w", err)
	}

	router := httptransport.NewRouter(httptransport.Dependencies{
		Logger:       log,
		Metrics:      platformmetrics.New(),
		JWTValidator: jwtauth.NewValidator(cfg.JWTSigningKey),
		Reference:    refhandler.New(refSvc, log),
		Stamping:     stamphandler.New(stampSvc, log),
		Certificate:  certhandler.New(certSvc, log),
		Transmission: transmissionhandler.New(engine, log),
		Batch:        batchhandler.New(batchSvc, log),
		Probes:       probes,
	})

	go engine.Run(ctx)
	go certSvc.RunExpirySweep(ctx, cfg.CertSweepInterval)

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		log.Info("stampgate listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
