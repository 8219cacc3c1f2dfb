package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicsignal/civicledger/internal/civic"
)

type fakeStore struct {
	civic.Store
	projects []civic.Project
	err      error
}

func (s *fakeStore) OpenProjects(_ context.Context, _ bool) ([]civic.Project, error) {
	return s.projects, s.err
}

func project(name, location string, updated time.Time) civic.Project {
	return civic.Project{
		ID:            name,
		Name:          name,
		NormalizedKey: civic.NormalizedKey(name, location),
		Location:      location,
		UpdatedAt:     updated,
	}
}

func TestMatchSameProjectDifferentPhrasing(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := &fakeStore{projects: []civic.Project{
		project("Main Street Bridge Rehabilitation", "Downtown San Jose", now),
		project("Coyote Creek Trail Extension", "East San Jose", now),
	}}
	m := New(DefaultConfig(), store, zap.NewNop())

	match, err := m.Match(context.Background(), civic.DraftRecord{
		Name:     "Bridge Rehabilitation on Main Street",
		Location: "Downtown San Jose",
	})
	require.NoError(t, err)
	require.NotNil(t, match.Project)
	require.Equal(t, "Main Street Bridge Rehabilitation", match.Project.Name)
	require.GreaterOrEqual(t, match.Score, 0.6)
}

func TestMatchNoEligibleCreates(t *testing.T) {
	t.Parallel()

	store := &fakeStore{projects: []civic.Project{
		project("Coyote Creek Trail Extension", "East San Jose", time.Now()),
	}}
	m := New(DefaultConfig(), store, zap.NewNop())

	match, err := m.Match(context.Background(), civic.DraftRecord{
		Name:     "Airport Terminal Expansion",
		Location: "North San Jose",
	})
	require.NoError(t, err)
	require.Nil(t, match.Project)
}

func TestMatchEmptyLedgerCreates(t *testing.T) {
	t.Parallel()

	m := New(DefaultConfig(), &fakeStore{}, zap.NewNop())
	match, err := m.Match(context.Background(), civic.DraftRecord{Name: "Anything At All Project"})
	require.NoError(t, err)
	require.Nil(t, match.Project)
}

func TestMatchTieGoesToMostRecent(t *testing.T) {
	t.Parallel()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()
	// Identical names and locations in two rows score identically.
	a := project("Main Street Bridge Rehabilitation", "Downtown", old)
	a.ID = "older"
	b := project("Main Street Bridge Rehabilitation", "Downtown", recent)
	b.ID = "newer"
	store := &fakeStore{projects: []civic.Project{a, b}}
	m := New(DefaultConfig(), store, zap.NewNop())

	match, err := m.Match(context.Background(), civic.DraftRecord{
		Name:     "Main Street Bridge Rehabilitation",
		Location: "Downtown",
	})
	require.NoError(t, err)
	require.NotNil(t, match.Project)
	require.Equal(t, "newer", match.Project.ID)
}

func TestScoreExactMatchIsOne(t *testing.T) {
	t.Parallel()

	m := New(DefaultConfig(), &fakeStore{}, zap.NewNop())
	p := project("Main Street Bridge Rehabilitation", "Downtown San Jose", time.Now())
	score := m.Score(civic.DraftRecord{
		Name:     "Main Street Bridge Rehabilitation",
		Location: "Downtown San Jose",
	}, p)
	require.InDelta(t, 1.0, score, 0.001)
}

func TestScoreUnrelatedIsLow(t *testing.T) {
	t.Parallel()

	m := New(DefaultConfig(), &fakeStore{}, zap.NewNop())
	p := project("Coyote Creek Trail Extension", "East San Jose", time.Now())
	score := m.Score(civic.DraftRecord{
		Name:     "Downtown Parking Garage Demolition",
		Location: "Downtown Core",
	}, p)
	require.Less(t, score, 0.6)
}

func TestTokenOverlap(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1.0, tokenOverlap([]string{"main", "bridge"}, []string{"bridge", "main"}), 0.001)
	require.InDelta(t, 0.0, tokenOverlap([]string{"main"}, []string{"creek"}), 0.001)
	require.InDelta(t, 0.0, tokenOverlap(nil, []string{"creek"}), 0.001)
	// {main, bridge} vs {main, trail}: one shared, three in the union.
	require.InDelta(t, 1.0/3.0, tokenOverlap([]string{"main", "bridge"}, []string{"main", "trail"}), 0.001)
}

func TestEditRatio(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1.0, editRatio("bridge-main", "bridge-main"), 0.001)
	require.InDelta(t, 1.0, editRatio("", ""), 0.001)
	require.Greater(t, editRatio("bridge-main-rehab", "bridge-main-rehabilitation"), 0.6)
	require.Less(t, editRatio("bridge-main", "creek-trail"), 0.5)
}
