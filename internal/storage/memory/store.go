// Package memory holds an in-process Store for tests and for running
// the pipeline without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/civicsignal/civicledger/internal/civic"
)

// Store keeps the full ledger in maps behind one mutex. Merge
// operations run under the same lock, which gives the same
// serialization guarantees the postgres store gets from transactions.
type Store struct {
	mu sync.Mutex

	ids   civic.IDGenerator
	clock civic.Clock

	articles     map[string]civic.Article // by ID
	articleByURL map[string]string        // URL -> ID
	articleSeq   []string                 // insertion order
	projects     map[string]civic.Project
	updates      map[string][]civic.Update // by project ID
	scanRuns     []civic.ScanRun
}

var _ civic.Store = (*Store)(nil)

// New builds an empty Store.
func New(ids civic.IDGenerator, clock civic.Clock) *Store {
	return &Store{
		ids:          ids,
		clock:        clock,
		articles:     make(map[string]civic.Article),
		articleByURL: make(map[string]string),
		projects:     make(map[string]civic.Project),
		updates:      make(map[string][]civic.Update),
	}
}

func (s *Store) InsertArticle(_ context.Context, a civic.Article) (civic.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.articleByURL[a.URL]; ok {
		return civic.Article{}, civic.ErrDuplicateArticle
	}
	if a.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return civic.Article{}, err
		}
		a.ID = id
	}
	if a.FetchedAt.IsZero() {
		a.FetchedAt = s.clock.Now()
	}
	s.articles[a.ID] = a
	s.articleByURL[a.URL] = a.ID
	s.articleSeq = append(s.articleSeq, a.ID)
	return a, nil
}

func (s *Store) UnprocessedArticles(_ context.Context, limit int) ([]civic.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]civic.Article, 0, limit)
	for _, id := range s.articleSeq {
		a := s.articles[id]
		if a.Processed {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkArticleProcessed(_ context.Context, articleID string, failure string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[articleID]
	if !ok {
		return civic.ErrNotFound
	}
	now := s.clock.Now()
	a.Processed = true
	a.ProcessedAt = &now
	a.Failure = failure
	s.articles[articleID] = a
	return nil
}

func (s *Store) OpenProjects(_ context.Context, includeClosed bool) ([]civic.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]civic.Project, 0, len(s.projects))
	for _, p := range s.projects {
		if !includeClosed && p.Status.Terminal() {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) FindUpdate(_ context.Context, projectID, articleID string) (civic.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.updates[projectID] {
		if u.ArticleID == articleID {
			return u, nil
		}
	}
	return civic.Update{}, civic.ErrNotFound
}

func (s *Store) CreateProjectWithUpdate(_ context.Context, p civic.Project, u civic.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[p.ID]; ok {
		return civic.ErrDuplicateArticle
	}
	s.projects[p.ID] = p
	s.updates[p.ID] = append(s.updates[p.ID], u)
	return nil
}

func (s *Store) AttachUpdate(_ context.Context, projectID string, status civic.Status, updatedAt time.Time, u civic.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[projectID]
	if !ok {
		return civic.ErrNotFound
	}
	for _, existing := range s.updates[projectID] {
		if existing.ArticleID == u.ArticleID {
			return civic.ErrDuplicateArticle
		}
	}
	p.Status = status
	p.UpdatedAt = updatedAt
	s.projects[projectID] = p
	s.updates[projectID] = append(s.updates[projectID], u)
	return nil
}

func (s *Store) RecordScanRun(_ context.Context, run civic.ScanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		id, err := s.ids.NewID()
		if err != nil {
			return err
		}
		run.ID = id
	}
	s.scanRuns = append(s.scanRuns, run)
	return nil
}

func (s *Store) Stats(_ context.Context) (civic.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st civic.Stats
	st.TotalArticles = len(s.articles)
	for _, a := range s.articles {
		if a.Processed {
			st.ProcessedArticles++
		}
	}
	st.UnprocessedArticles = st.TotalArticles - st.ProcessedArticles
	st.TotalProjects = len(s.projects)
	st.ProjectsByStatus = make(map[civic.Status]int)
	for _, p := range s.projects {
		st.ProjectsByStatus[p.Status]++
		st.TotalUpdates += len(s.updates[p.ID])
	}
	st.ScanRuns = len(s.scanRuns)
	return st, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// ProjectUpdates returns a project's updates ordered oldest first.
// Test helper for asserting merge history.
func (s *Store) ProjectUpdates(projectID string) []civic.Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]civic.Update(nil), s.updates[projectID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out
}
