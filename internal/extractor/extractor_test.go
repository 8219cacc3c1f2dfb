package extractor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicsignal/civicledger/internal/civic"
)

type fakeGenerator struct {
	reply  string
	err    error
	prompt string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.reply, g.err
}

func article() civic.Article {
	return civic.Article{
		URL:   "https://news.example.gov/bridge",
		Title: "Council approves bridge rehab",
		Body:  "The council approved the Main Street bridge rehabilitation on Tuesday.",
	}
}

func TestExtractWellFormedReply(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{reply: `{
		"name": "Main Street Bridge Rehabilitation",
		"location": "Downtown",
		"budget": "$12 million",
		"officials": ["Mayor Ortiz"],
		"status": "approved",
		"summary": "Council approved funding for the bridge."
	}`}
	e := New(Config{}, gen, zap.NewNop())

	draft, err := e.Extract(context.Background(), article())
	require.NoError(t, err)
	require.NotNil(t, draft)
	require.Equal(t, "Main Street Bridge Rehabilitation", draft.Name)
	require.Equal(t, civic.StatusApproved, draft.Status)
	require.NotNil(t, draft.Budget)
	require.Equal(t, "$12 million", *draft.Budget)
	require.Equal(t, []string{"Mayor Ortiz"}, draft.Officials)
	require.InDelta(t, 1.0, draft.Confidence, 0.001)
}

func TestExtractFencedReply(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{reply: "Here is the extraction:\n```json\n" +
		`{"name": "Park Renovation", "location": "", "budget": null, "officials": [], "status": "", "summary": ""}` +
		"\n```"}
	e := New(Config{}, gen, zap.NewNop())

	draft, err := e.Extract(context.Background(), article())
	require.NoError(t, err)
	require.NotNil(t, draft)
	require.Equal(t, "Park Renovation", draft.Name)
	// Empty status defaults to announced.
	require.Equal(t, civic.StatusAnnounced, draft.Status)
	require.Nil(t, draft.Budget)
	require.InDelta(t, 0.4, draft.Confidence, 0.001)
}

func TestExtractNoProject(t *testing.T) {
	t.Parallel()

	replies := []string{
		"null", "NULL", "  null  ",
		`{"name": "", "status": "approved"}`,
		`{"location": "Downtown", "status": "approved"}`,
	}
	for _, reply := range replies {
		gen := &fakeGenerator{reply: reply}
		e := New(Config{}, gen, zap.NewNop())
		draft, err := e.Extract(context.Background(), article())
		require.NoError(t, err)
		require.Nil(t, draft)
	}
}

func TestExtractSchemaViolations(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"no json":        "I could not find any project in this article, sorry.",
		"broken json":    `{"name": "Bridge", "status":`,
		"unknown status": `{"name": "Bridge", "status": "on hold"}`,
	}
	for label, reply := range cases {
		gen := &fakeGenerator{reply: reply}
		e := New(Config{}, gen, zap.NewNop())
		_, err := e.Extract(context.Background(), article())
		require.True(t, civic.IsSchemaViolation(err), "case %q: %v", label, err)
	}
}

func TestExtractOfficialsAsString(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{reply: `{"name": "Bridge", "officials": "Mayor Ortiz", "status": "approved"}`}
	e := New(Config{}, gen, zap.NewNop())
	draft, err := e.Extract(context.Background(), article())
	require.NoError(t, err)
	require.Equal(t, []string{"Mayor Ortiz"}, draft.Officials)
}

func TestExtractBackendErrorPassesThrough(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: &civic.ExtractionError{Kind: civic.ExtractionBackendUnavailable, Detail: "down"}}
	e := New(Config{}, gen, zap.NewNop())
	_, err := e.Extract(context.Background(), article())
	require.True(t, civic.IsBackendUnavailable(err))
}

func TestExtractTruncatesLongBody(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{reply: "null"}
	e := New(Config{MaxBodyLen: 200}, gen, zap.NewNop())

	a := article()
	a.Body = strings.Repeat("city council infrastructure budget ", 100)
	_, err := e.Extract(context.Background(), a)
	require.NoError(t, err)
	require.Less(t, len(gen.prompt), len(promptTemplate)+len(a.Title)+300)
}
