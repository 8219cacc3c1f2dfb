// Package ingest runs the collection side of the pipeline: scan
// configured sources, fetch and distill candidate articles, gate them
// through validation, and persist the survivors.
package ingest

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/civicsignal/civicledger/internal/civic"
	"github.com/civicsignal/civicledger/internal/fetcher/ratelimit"
	"github.com/civicsignal/civicledger/internal/sources"
	"github.com/civicsignal/civicledger/internal/validator"
)

// Config controls ingestion fan-out.
type Config struct {
	Concurrency int
}

// Ingester collects articles from all configured sources.
type Ingester struct {
	cfg       Config
	srcs      []civic.Source
	fetcher   civic.Fetcher
	validator *validator.Validator
	store     civic.Store
	ids       civic.IDGenerator
	clock     civic.Clock
	logger    *zap.Logger
	gate      *domainGate
}

// domainGate keeps at most one outstanding request per domain. The rate
// limiter paces request starts; this forbids overlap when a response
// takes longer than the limiter's token spacing.
type domainGate struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDomainGate() *domainGate {
	return &domainGate{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the given domain and returns its mutex for unlocking.
func (g *domainGate) acquire(domain string) *sync.Mutex {
	g.mu.Lock()
	l, ok := g.locks[domain]
	if !ok {
		l = &sync.Mutex{}
		g.locks[domain] = l
	}
	g.mu.Unlock()

	l.Lock()
	return l
}

// New builds an Ingester.
func New(
	cfg Config,
	srcs []civic.Source,
	fetcher civic.Fetcher,
	v *validator.Validator,
	store civic.Store,
	ids civic.IDGenerator,
	clock civic.Clock,
	logger *zap.Logger,
) *Ingester {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Ingester{
		cfg:       cfg,
		srcs:      srcs,
		fetcher:   fetcher,
		validator: v,
		store:     store,
		ids:       ids,
		clock:     clock,
		logger:    logger,
		gate:      newDomainGate(),
	}
}

// Run scans every source in turn and records a ScanRun audit row per
// source. Source-level failures are logged and do not stop the other
// sources; the first context cancellation does.
func (i *Ingester) Run(ctx context.Context) error {
	for _, src := range i.srcs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := i.scanSource(ctx, src); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			i.logger.Warn("source scan failed",
				zap.String("source", src.ID()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (i *Ingester) scanSource(ctx context.Context, src civic.Source) error {
	started := i.clock.Now()

	urls, err := src.Scan(ctx)
	if err != nil {
		return err
	}

	var (
		collected, failed int
		mu                sync.Mutex
		wg                sync.WaitGroup
	)
	work := make(chan string)

	for w := 0; w < i.cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rawURL := range work {
				l := i.gate.acquire(ratelimit.Domain(rawURL))
				ok := i.collect(ctx, src.ID(), rawURL)
				l.Unlock()
				mu.Lock()
				if ok {
					collected++
				} else {
					failed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, u := range urls {
		select {
		case <-ctx.Done():
			// Stop feeding; workers drain and exit.
		case work <- u:
			continue
		}
		break
	}
	close(work)
	wg.Wait()

	runID, err := i.ids.NewID()
	if err != nil {
		return err
	}
	run := civic.ScanRun{
		ID:         runID,
		SourceID:   src.ID(),
		StartedAt:  started,
		FinishedAt: i.clock.Now(),
		Collected:  collected,
		Failed:     failed,
	}
	if err := i.store.RecordScanRun(ctx, run); err != nil {
		return err
	}

	i.logger.Info("source scanned",
		zap.String("source", src.ID()),
		zap.Int("discovered", len(urls)),
		zap.Int("collected", collected),
		zap.Int("failed", failed),
	)
	return ctx.Err()
}

// collect fetches, distills, validates and stores one article URL.
// Returns true when the article was stored or was already present.
func (i *Ingester) collect(ctx context.Context, sourceID, rawURL string) bool {
	doc, err := i.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		i.logger.Debug("fetch failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	doc.SourceID = sourceID

	article, err := sources.ExtractArticle(doc)
	if err != nil {
		i.logger.Debug("content extraction failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}

	if err := i.validator.Validate(article); err != nil {
		var reject *civic.ValidationReject
		if errors.As(err, &reject) {
			// Already audit-logged by the validator.
			return false
		}
		i.logger.Warn("validation error", zap.String("url", rawURL), zap.Error(err))
		return false
	}

	id, err := i.ids.NewID()
	if err != nil {
		i.logger.Warn("id generation failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	article.ID = id

	if _, err := i.store.InsertArticle(ctx, article); err != nil {
		if errors.Is(err, civic.ErrDuplicateArticle) {
			return true
		}
		i.logger.Warn("store article failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	return true
}
