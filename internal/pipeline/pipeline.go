// Package pipeline runs the processing batch: pull unprocessed
// articles, extract structured drafts, reconcile them against the
// ledger and record the outcome per article.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/civicsignal/civicledger/internal/civic"
	"github.com/civicsignal/civicledger/internal/extractor"
	"github.com/civicsignal/civicledger/internal/matcher"
	"github.com/civicsignal/civicledger/internal/merger"
	"github.com/civicsignal/civicledger/internal/metrics"
)

// Pipeline processes batches of stored articles.
type Pipeline struct {
	store     civic.Store
	extractor *extractor.Extractor
	matcher   *matcher.Matcher
	merger    *merger.Merger
	clock     civic.Clock
	logger    *zap.Logger
}

// New builds a Pipeline.
func New(
	store civic.Store,
	ex *extractor.Extractor,
	m *matcher.Matcher,
	mg *merger.Merger,
	clock civic.Clock,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		store:     store,
		extractor: ex,
		matcher:   m,
		merger:    mg,
		clock:     clock,
		logger:    logger,
	}
}

// Run processes up to limit unprocessed articles, oldest first, one at
// a time so each article sees the projects created by the ones before
// it. The returned summary counts every article pulled into the batch.
// A storage failure aborts the batch and returns the partial summary
// alongside the error; articles not yet reached stay unprocessed.
func (p *Pipeline) Run(ctx context.Context, limit int) (civic.Summary, error) {
	start := p.clock.Now()
	var sum civic.Summary

	articles, err := p.store.UnprocessedArticles(ctx, limit)
	if err != nil {
		return sum, fmt.Errorf("load batch: %w", err)
	}

	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Attempted++
		if err := p.processOne(ctx, article, &sum); err != nil {
			metrics.ObserveBatchDuration(p.clock.Now().Sub(start))
			return sum, err
		}
	}

	metrics.ObserveBatchDuration(p.clock.Now().Sub(start))
	p.logger.Info("batch finished",
		zap.Int("attempted", sum.Attempted),
		zap.Int("extracted", sum.Extracted),
		zap.Int("created", sum.Created),
		zap.Int("attached", sum.Attached),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

// processOne runs one article through extract, match and merge. A
// non-nil return aborts the whole batch; per-article failures are
// folded into the summary instead.
func (p *Pipeline) processOne(ctx context.Context, article civic.Article, sum *civic.Summary) error {
	draft, err := p.extractor.Extract(ctx, article)
	if err != nil {
		if civic.IsSchemaViolation(err) {
			// Final for this article: retrying the same text yields the
			// same malformed reply.
			sum.Failed++
			return p.markProcessed(ctx, article.ID, err.Error())
		}
		// Backend down. Leave the article unprocessed so a later batch
		// picks it up once the model is back.
		sum.Failed++
		p.logger.Warn("extraction backend unavailable",
			zap.String("article_id", article.ID),
			zap.Error(err),
		)
		return nil
	}

	if draft == nil {
		// The model found no project. Final outcome, not a failure.
		return p.markProcessed(ctx, article.ID, "")
	}
	sum.Extracted++

	match, err := p.matcher.Match(ctx, *draft)
	if err != nil {
		return fmt.Errorf("match draft: %w", err)
	}

	decision, err := p.merger.Apply(ctx, article, *draft, match.Project)
	if err != nil {
		// Merge failures are storage failures; the article stays
		// unprocessed and the batch stops here.
		sum.Failed++
		return fmt.Errorf("merge draft: %w", err)
	}

	switch decision {
	case merger.DecisionCreated:
		sum.Created++
	case merger.DecisionAttached:
		sum.Attached++
	}
	return p.markProcessed(ctx, article.ID, "")
}

func (p *Pipeline) markProcessed(ctx context.Context, articleID, failure string) error {
	if err := p.store.MarkArticleProcessed(ctx, articleID, failure); err != nil {
		return fmt.Errorf("mark article %s processed: %w", articleID, err)
	}
	return nil
}
