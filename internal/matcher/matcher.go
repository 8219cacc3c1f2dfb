// Package matcher decides whether a draft record refers to a project
// already in the ledger or to a new one.
package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/civicsignal/civicledger/internal/civic"
)

// Config holds the scoring weights and acceptance threshold.
type Config struct {
	NameWeight     float64
	LocationWeight float64
	EditWeight     float64
	Threshold      float64
	IncludeClosed  bool
}

// DefaultConfig returns the weights the batch pipeline ships with.
func DefaultConfig() Config {
	return Config{
		NameWeight:     0.5,
		LocationWeight: 0.2,
		EditWeight:     0.3,
		Threshold:      0.6,
	}
}

// Match is the outcome of scoring a draft against the ledger.
type Match struct {
	Project *civic.Project // nil means create a new project
	Score   float64
}

// Matcher scores drafts against candidate projects.
type Matcher struct {
	cfg    Config
	store  civic.Store
	logger *zap.Logger
}

// New builds a Matcher. Zero weights fall back to the defaults so a
// partially filled config does not silently disable a signal.
func New(cfg Config, store civic.Store, logger *zap.Logger) *Matcher {
	def := DefaultConfig()
	if cfg.NameWeight == 0 && cfg.LocationWeight == 0 && cfg.EditWeight == 0 {
		cfg.NameWeight = def.NameWeight
		cfg.LocationWeight = def.LocationWeight
		cfg.EditWeight = def.EditWeight
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	return &Matcher{cfg: cfg, store: store, logger: logger}
}

// Match scores the draft against every eligible project and returns
// the best candidate at or above the threshold. Ties on score go to
// the most recently updated project. A Match with a nil Project means
// no candidate qualified and the draft should create a new project.
func (m *Matcher) Match(ctx context.Context, draft civic.DraftRecord) (Match, error) {
	candidates, err := m.store.OpenProjects(ctx, m.cfg.IncludeClosed)
	if err != nil {
		return Match{}, fmt.Errorf("load candidates: %w", err)
	}

	type scored struct {
		project civic.Project
		score   float64
	}
	eligible := make([]scored, 0, len(candidates))
	for _, p := range candidates {
		if s := m.Score(draft, p); s >= m.cfg.Threshold {
			eligible = append(eligible, scored{project: p, score: s})
		}
	}
	if len(eligible) == 0 {
		return Match{}, nil
	}

	// Best score wins; on a tie the most recently updated project
	// takes the attachment.
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].score != eligible[j].score {
			return eligible[i].score > eligible[j].score
		}
		return eligible[i].project.UpdatedAt.After(eligible[j].project.UpdatedAt)
	})

	best := eligible[0]
	m.logger.Debug("draft matched project",
		zap.String("draft", draft.Name),
		zap.String("project", best.project.Name),
		zap.Float64("score", best.score),
	)
	return Match{Project: &best.project, Score: best.score}, nil
}

// Score combines three similarity signals into a weighted sum in
// [0, 1]: token overlap between names, location affinity, and an
// edit-distance ratio over the normalized keys.
func (m *Matcher) Score(draft civic.DraftRecord, p civic.Project) float64 {
	name := tokenOverlap(
		civic.NormalizeTokens(draft.Name),
		civic.NormalizeTokens(p.Name),
	)
	location := locationAffinity(draft.Location, p.Location)
	edit := editRatio(
		civic.NormalizedKey(draft.Name, draft.Location),
		p.NormalizedKey,
	)
	return m.cfg.NameWeight*name + m.cfg.LocationWeight*location + m.cfg.EditWeight*edit
}

// tokenOverlap is the Jaccard index of the two token sets.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	union := len(set)
	var shared int
	seen := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}

// locationAffinity rewards exact and containment matches. A draft with
// no location is neutral rather than penalized, since many articles
// name the project but not the street.
func locationAffinity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	switch {
	case a == "" || b == "":
		return 0.5
	case a == b:
		return 1
	case strings.Contains(a, b) || strings.Contains(b, a):
		return 0.8
	}
	return tokenOverlap(civic.NormalizeTokens(a), civic.NormalizeTokens(b))
}

// editRatio converts Levenshtein distance to a similarity in [0, 1].
func editRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}
