package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicsignal/civicledger/internal/civic"
)

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type tickClock struct{ now time.Time }

func (c *tickClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore() *Store {
	return New(&seqIDs{}, &tickClock{now: time.Unix(1700000000, 0).UTC()})
}

func TestInsertArticleDeduplicatesByURL(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	ctx := context.Background()

	a, err := s.InsertArticle(ctx, civic.Article{URL: "https://example.gov/a", Title: "First"})
	require.NoError(t, err)
	require.NotEmpty(t, a.ID)
	require.False(t, a.FetchedAt.IsZero())

	_, err = s.InsertArticle(ctx, civic.Article{URL: "https://example.gov/a", Title: "Again"})
	require.ErrorIs(t, err, civic.ErrDuplicateArticle)
}

func TestUnprocessedArticlesOldestFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.InsertArticle(ctx, civic.Article{URL: fmt.Sprintf("https://example.gov/%d", i)})
		require.NoError(t, err)
	}

	got, err := s.UnprocessedArticles(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "https://example.gov/0", got[0].URL)
	require.Equal(t, "https://example.gov/2", got[2].URL)

	require.NoError(t, s.MarkArticleProcessed(ctx, got[0].ID, ""))
	got, err = s.UnprocessedArticles(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, "https://example.gov/1", got[0].URL)
}

func TestMarkArticleProcessedRecordsFailure(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	ctx := context.Background()

	a, err := s.InsertArticle(ctx, civic.Article{URL: "https://example.gov/a"})
	require.NoError(t, err)
	require.NoError(t, s.MarkArticleProcessed(ctx, a.ID, "schema violation"))

	left, err := s.UnprocessedArticles(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, left)

	require.ErrorIs(t, s.MarkArticleProcessed(ctx, "missing", ""), civic.ErrNotFound)
}

func TestOpenProjectsSkipsTerminal(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	ctx := context.Background()

	active := civic.Project{ID: "p1", Name: "Bridge", Status: civic.StatusInProgress}
	done := civic.Project{ID: "p2", Name: "Trail", Status: civic.StatusCompleted}
	require.NoError(t, s.CreateProjectWithUpdate(ctx, active, civic.Update{ID: "u1", ProjectID: "p1", ArticleID: "a1"}))
	require.NoError(t, s.CreateProjectWithUpdate(ctx, done, civic.Update{ID: "u2", ProjectID: "p2", ArticleID: "a2"}))

	open, err := s.OpenProjects(ctx, false)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "p1", open[0].ID)

	all, err := s.OpenProjects(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestAttachUpdateOverwritesStatus(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	ctx := context.Background()

	p := civic.Project{ID: "p1", Name: "Bridge", Status: civic.StatusCompleted}
	require.NoError(t, s.CreateProjectWithUpdate(ctx, p, civic.Update{ID: "u1", ProjectID: "p1", ArticleID: "a1"}))

	when := time.Unix(1700005000, 0).UTC()
	err := s.AttachUpdate(ctx, "p1", civic.StatusDelayed, when,
		civic.Update{ID: "u2", ProjectID: "p1", ArticleID: "a2", StatusAtTime: civic.StatusDelayed})
	require.NoError(t, err)

	all, err := s.OpenProjects(ctx, true)
	require.NoError(t, err)
	require.Equal(t, civic.StatusDelayed, all[0].Status)
	require.Equal(t, when, all[0].UpdatedAt)
}

func TestAttachUpdateRejectsDuplicatePair(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	ctx := context.Background()

	p := civic.Project{ID: "p1", Status: civic.StatusApproved}
	require.NoError(t, s.CreateProjectWithUpdate(ctx, p, civic.Update{ID: "u1", ProjectID: "p1", ArticleID: "a1"}))

	err := s.AttachUpdate(ctx, "p1", civic.StatusDelayed, time.Now(),
		civic.Update{ID: "u2", ProjectID: "p1", ArticleID: "a1"})
	require.ErrorIs(t, err, civic.ErrDuplicateArticle)

	u, err := s.FindUpdate(ctx, "p1", "a1")
	require.NoError(t, err)
	require.Equal(t, "u1", u.ID)

	_, err = s.FindUpdate(ctx, "p1", "missing")
	require.True(t, errors.Is(err, civic.ErrNotFound))
}

func TestStats(t *testing.T) {
	t.Parallel()

	s := newTestStore()
	ctx := context.Background()

	a, err := s.InsertArticle(ctx, civic.Article{URL: "https://example.gov/a"})
	require.NoError(t, err)
	_, err = s.InsertArticle(ctx, civic.Article{URL: "https://example.gov/b"})
	require.NoError(t, err)
	require.NoError(t, s.MarkArticleProcessed(ctx, a.ID, ""))

	require.NoError(t, s.CreateProjectWithUpdate(ctx,
		civic.Project{ID: "p1", Status: civic.StatusApproved},
		civic.Update{ID: "u1", ProjectID: "p1", ArticleID: a.ID}))
	require.NoError(t, s.RecordScanRun(ctx, civic.ScanRun{SourceID: "src"}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, st.TotalArticles)
	require.Equal(t, 1, st.ProcessedArticles)
	require.Equal(t, 1, st.UnprocessedArticles)
	require.Equal(t, 1, st.TotalProjects)
	require.Equal(t, 1, st.TotalUpdates)
	require.Equal(t, 1, st.ScanRuns)
	require.Equal(t, 1, st.ProjectsByStatus[civic.StatusApproved])
}
