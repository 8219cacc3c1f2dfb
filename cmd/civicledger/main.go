// Package main wires together the civic ledger service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/civicsignal/civicledger/internal/api"
	"github.com/civicsignal/civicledger/internal/civic"
	"github.com/civicsignal/civicledger/internal/clock/system"
	"github.com/civicsignal/civicledger/internal/config"
	"github.com/civicsignal/civicledger/internal/extractor"
	"github.com/civicsignal/civicledger/internal/extractor/ollama"
	"github.com/civicsignal/civicledger/internal/fetcher"
	"github.com/civicsignal/civicledger/internal/fetcher/ratelimit"
	"github.com/civicsignal/civicledger/internal/id/uuid"
	"github.com/civicsignal/civicledger/internal/ingest"
	"github.com/civicsignal/civicledger/internal/logging"
	"github.com/civicsignal/civicledger/internal/matcher"
	"github.com/civicsignal/civicledger/internal/merger"
	"github.com/civicsignal/civicledger/internal/metrics"
	"github.com/civicsignal/civicledger/internal/pipeline"
	"github.com/civicsignal/civicledger/internal/sources"
	memorystorage "github.com/civicsignal/civicledger/internal/storage/memory"
	"github.com/civicsignal/civicledger/internal/storage/postgres"
	"github.com/civicsignal/civicledger/internal/validator"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	scan := flag.Bool("scan", false, "Scan configured sources once and exit")
	process := flag.Bool("process", false, "Process one batch and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	if err := run(ctx, cfg, logger, *scan, *process); err != nil {
		logger.Error("fatal", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, scan, process bool) error {
	clock := system.New()
	idGen := uuid.New()

	store, closeStore, err := openStore(ctx, cfg, idGen, clock)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter := ratelimit.New(ratelimit.Config{
		DomainRPS:   cfg.Fetch.DomainRPS,
		DomainBurst: cfg.Fetch.DomainBurst,
	})
	fetch := fetcher.New(fetcher.Config{
		UserAgent:        cfg.Fetch.UserAgent,
		Timeout:          cfg.Fetch.Timeout,
		MaxAttempts:      cfg.Fetch.MaxAttempts,
		BackoffBase:      cfg.Fetch.BackoffBase,
		BackoffMax:       cfg.Fetch.BackoffMax,
		AllowedMIMETypes: cfg.Fetch.AllowedMIMETypes,
	}, limiter, clock, logger.Named("fetcher"))

	valid := validator.New(validator.Config{
		MinTitleLen:    cfg.Validation.MinTitleLen,
		MinBodyLen:     cfg.Validation.MinBodyLen,
		Keywords:       cfg.Validation.Keywords,
		RequireKeyword: cfg.Validation.RequireKeyword,
	}, logger.Named("validator"))

	var srcs []civic.Source
	for _, sc := range cfg.Sources {
		src, err := sources.NewListing(sources.ListingConfig{
			ID:          sc.ID,
			ListingURL:  sc.ListingURL,
			LinkPattern: sc.LinkPattern,
			MaxLinks:    sc.MaxLinks,
		}, fetch, logger.Named("sources"))
		if err != nil {
			return err
		}
		srcs = append(srcs, src)
	}

	ingester := ingest.New(ingest.Config{Concurrency: cfg.Fetch.Concurrency},
		srcs, fetch, valid, store, idGen, clock, logger.Named("ingest"))

	gen := ollama.New(ollama.Config{
		BaseURL:     cfg.Extract.BaseURL,
		Model:       cfg.Extract.Model,
		APIKey:      cfg.Extract.APIKey,
		Timeout:     cfg.Extract.Timeout,
		Temperature: cfg.Extract.Temperature,
	})
	extract := extractor.New(extractor.Config{MaxBodyLen: cfg.Extract.MaxBodyLen},
		gen, logger.Named("extractor"))
	match := matcher.New(matcher.Config{
		NameWeight:     cfg.Match.NameWeight,
		LocationWeight: cfg.Match.LocationWeight,
		EditWeight:     cfg.Match.EditWeight,
		Threshold:      cfg.Match.Threshold,
		IncludeClosed:  cfg.Match.IncludeClosed,
	}, store, logger.Named("matcher"))
	merge := merger.New(store, idGen, clock, logger.Named("merger"))
	pipe := pipeline.New(store, extract, match, merge, clock, logger.Named("pipeline"))

	switch {
	case scan:
		return ingester.Run(ctx)
	case process:
		sum, err := pipe.Run(ctx, cfg.Pipeline.BatchLimit)
		if err != nil {
			return err
		}
		logger.Info("batch complete",
			zap.Int("attempted", sum.Attempted),
			zap.Int("extracted", sum.Extracted),
			zap.Int("created", sum.Created),
			zap.Int("attached", sum.Attached),
			zap.Int("failed", sum.Failed),
		)
		return nil
	}

	return serve(ctx, cfg, store, pipe, logger)
}

func openStore(ctx context.Context, cfg config.Config, idGen civic.IDGenerator, clock civic.Clock) (civic.Store, func(), error) {
	if cfg.DB.DSN == "" {
		return memorystorage.New(idGen, clock), func() {}, nil
	}
	pg, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func serve(ctx context.Context, cfg config.Config, store civic.Store, pipe *pipeline.Pipeline, logger *zap.Logger) error {
	apiServer := api.NewServer(store, pipe, api.Config{BatchLimit: cfg.Pipeline.BatchLimit}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
