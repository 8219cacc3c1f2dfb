// Package merger applies a match decision to the ledger: create a new
// project or attach an update to an existing one.
package merger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/civicsignal/civicledger/internal/civic"
	"github.com/civicsignal/civicledger/internal/metrics"
)

// Decision names the action the merger took for one draft.
type Decision string

const (
	DecisionCreated  Decision = "created"
	DecisionAttached Decision = "attached"
	DecisionSkipped  Decision = "skipped"
)

// Merger writes match outcomes into the store.
type Merger struct {
	store  civic.Store
	ids    civic.IDGenerator
	clock  civic.Clock
	logger *zap.Logger
}

// New builds a Merger.
func New(store civic.Store, ids civic.IDGenerator, clock civic.Clock, logger *zap.Logger) *Merger {
	return &Merger{store: store, ids: ids, clock: clock, logger: logger}
}

// Apply records the draft for the given article. When target is nil a
// new project is created together with its first update; otherwise an
// update is appended and the project's status is overwritten with the
// draft's status, whatever direction that moves it. An article already
// merged into the target project is skipped without a second write.
func (m *Merger) Apply(ctx context.Context, article civic.Article, draft civic.DraftRecord, target *civic.Project) (Decision, error) {
	now := m.clock.Now()

	if target != nil {
		// Idempotence guard: at most one update per (project, article).
		_, err := m.store.FindUpdate(ctx, target.ID, article.ID)
		switch {
		case err == nil:
			metrics.ObserveMerge(string(DecisionSkipped))
			m.logger.Debug("update already recorded",
				zap.String("project_id", target.ID),
				zap.String("article_id", article.ID),
			)
			return DecisionSkipped, nil
		case !errors.Is(err, civic.ErrNotFound):
			return "", &civic.MergeFailure{Kind: civic.MergeStorageUnavailable, Err: err}
		}

		update, err := m.newUpdate(target.ID, article, draft, now)
		if err != nil {
			return "", err
		}
		if err := m.store.AttachUpdate(ctx, target.ID, draft.Status, now, update); err != nil {
			if errors.Is(err, civic.ErrDuplicateArticle) {
				// A concurrent merge won the race; the pair is recorded.
				metrics.ObserveMerge(string(DecisionSkipped))
				return DecisionSkipped, nil
			}
			return "", &civic.MergeFailure{Kind: civic.MergeStorageUnavailable, Err: err}
		}
		metrics.ObserveMerge(string(DecisionAttached))
		m.logger.Info("update attached",
			zap.String("project_id", target.ID),
			zap.String("project", target.Name),
			zap.String("status", string(draft.Status)),
		)
		return DecisionAttached, nil
	}

	projectID, err := m.ids.NewID()
	if err != nil {
		return "", &civic.MergeFailure{Kind: civic.MergeStorageUnavailable, Err: err}
	}
	project := civic.Project{
		ID:            projectID,
		Name:          draft.Name,
		NormalizedKey: civic.NormalizedKey(draft.Name, draft.Location),
		Location:      draft.Location,
		Budget:        draft.Budget,
		Status:        draft.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	update, err := m.newUpdate(projectID, article, draft, now)
	if err != nil {
		return "", err
	}
	if err := m.store.CreateProjectWithUpdate(ctx, project, update); err != nil {
		return "", &civic.MergeFailure{Kind: civic.MergeStorageUnavailable, Err: err}
	}
	metrics.ObserveMerge(string(DecisionCreated))
	m.logger.Info("project created",
		zap.String("project_id", projectID),
		zap.String("project", project.Name),
		zap.String("status", string(project.Status)),
	)
	return DecisionCreated, nil
}

func (m *Merger) newUpdate(projectID string, article civic.Article, draft civic.DraftRecord, now time.Time) (civic.Update, error) {
	id, err := m.ids.NewID()
	if err != nil {
		return civic.Update{}, &civic.MergeFailure{Kind: civic.MergeStorageUnavailable, Err: err}
	}
	return civic.Update{
		ID:           id,
		ProjectID:    projectID,
		ArticleID:    article.ID,
		ObservedAt:   now,
		StatusAtTime: draft.Status,
		Summary:      draft.Summary,
	}, nil
}
