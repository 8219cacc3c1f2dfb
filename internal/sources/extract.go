package sources

import (
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/civicsignal/civicledger/internal/civic"
)

// ExtractArticle distills a fetched document into an article: title
// and main text without navigation chrome. The article keeps the
// document's URL, source and fetch time; persistence assigns the ID.
func ExtractArticle(doc civic.Document) (civic.Article, error) {
	pageURL, err := url.Parse(doc.URL)
	if err != nil {
		return civic.Article{}, fmt.Errorf("parse article url: %w", err)
	}

	parser := readability.NewParser()
	parsed, err := parser.Parse(strings.NewReader(doc.RawText), pageURL)
	if err != nil {
		return civic.Article{}, fmt.Errorf("extract readable content: %w", err)
	}

	a := civic.Article{
		URL:         doc.URL,
		SourceID:    doc.SourceID,
		Title:       strings.TrimSpace(parsed.Title),
		Body:        strings.TrimSpace(parsed.TextContent),
		PublishedAt: parsed.PublishedTime,
		FetchedAt:   doc.FetchedAt,
	}
	if a.Title == "" && doc.Title != "" {
		a.Title = doc.Title
	}
	return a, nil
}
