package sources

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicsignal/civicledger/internal/civic"
)

type fakeFetcher struct {
	docs map[string]civic.Document
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (civic.Document, error) {
	if f.err != nil {
		return civic.Document{}, f.err
	}
	d, ok := f.docs[url]
	if !ok {
		return civic.Document{}, &civic.FetchError{Kind: civic.FetchPermanent, URL: url}
	}
	return d, nil
}

const listingHTML = `<html><body>
<nav><a href="/">Home</a> <a href="#top">Top</a> <a href="mailto:desk@example.gov">Contact</a></nav>
<ul>
  <li><a href="/news/2026/bridge-approved">Bridge approved</a></li>
  <li><a href="https://news.example.gov/news/2026/trail-delayed">Trail delayed</a></li>
  <li><a href="/news/2026/bridge-approved">Bridge approved (again)</a></li>
  <li><a href="/about">About us</a></li>
  <li><a href="/news/2026/garage-complete">Garage complete</a></li>
</ul>
</body></html>`

func testListing(t *testing.T, cfg ListingConfig, f civic.Fetcher) *Listing {
	t.Helper()
	l, err := NewListing(cfg, f, zap.NewNop())
	require.NoError(t, err)
	return l
}

func TestScanCollectsMatchingLinks(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{docs: map[string]civic.Document{
		"https://news.example.gov/news": {URL: "https://news.example.gov/news", RawText: listingHTML},
	}}
	l := testListing(t, ListingConfig{
		ID:          "sj-news",
		ListingURL:  "https://news.example.gov/news",
		LinkPattern: `/news/\d{4}/`,
	}, f)

	links, err := l.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://news.example.gov/news/2026/bridge-approved",
		"https://news.example.gov/news/2026/trail-delayed",
		"https://news.example.gov/news/2026/garage-complete",
	}, links)
}

func TestScanCapsAtMaxLinks(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{docs: map[string]civic.Document{
		"https://news.example.gov/news": {URL: "https://news.example.gov/news", RawText: listingHTML},
	}}
	l := testListing(t, ListingConfig{
		ID:         "sj-news",
		ListingURL: "https://news.example.gov/news",
		MaxLinks:   2,
	}, f)

	links, err := l.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, links, 2)
}

func TestScanPropagatesFetchError(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{err: &civic.FetchError{Kind: civic.FetchTransientExhausted, URL: "https://news.example.gov/news"}}
	l := testListing(t, ListingConfig{ID: "sj-news", ListingURL: "https://news.example.gov/news"}, f)

	_, err := l.Scan(context.Background())
	require.Error(t, err)
}

func TestNewListingRejectsBadPattern(t *testing.T) {
	t.Parallel()

	_, err := NewListing(ListingConfig{
		ID:          "bad",
		ListingURL:  "https://example.gov",
		LinkPattern: `[unclosed`,
	}, &fakeFetcher{}, zap.NewNop())
	require.Error(t, err)
}

func TestExtractArticle(t *testing.T) {
	t.Parallel()

	para := "The city council voted on Tuesday to approve funding for the Main Street bridge rehabilitation. "
	html := `<html><head><title>Council approves bridge funding</title></head><body>
<nav><a href="/">Home</a><a href="/news">News</a></nav>
<article><h1>Council approves bridge funding</h1>` +
		"<p>" + strings.Repeat(para, 10) + "</p>" +
		"<p>" + strings.Repeat("Construction is expected to begin in the spring and last eighteen months. ", 10) + "</p>" +
		`</article></body></html>`

	doc := civic.Document{
		URL:       "https://news.example.gov/news/2026/bridge-approved",
		SourceID:  "sj-news",
		RawText:   html,
		FetchedAt: time.Unix(1700000000, 0).UTC(),
	}

	a, err := ExtractArticle(doc)
	require.NoError(t, err)
	require.Equal(t, "Council approves bridge funding", a.Title)
	require.Contains(t, a.Body, "bridge rehabilitation")
	require.NotContains(t, a.Body, "Home")
	require.Equal(t, "sj-news", a.SourceID)
	require.Equal(t, doc.FetchedAt, a.FetchedAt)
}
