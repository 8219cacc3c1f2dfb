// Package sources discovers candidate article URLs from configured
// listing pages and turns fetched documents into articles.
package sources

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/civicsignal/civicledger/internal/civic"
)

// ListingConfig describes one listing page to scan.
type ListingConfig struct {
	ID          string
	ListingURL  string
	LinkPattern string
	MaxLinks    int
}

// Listing scans a news or agenda index page for article links.
type Listing struct {
	cfg     ListingConfig
	pattern *regexp.Regexp
	fetcher civic.Fetcher
	logger  *zap.Logger
}

var _ civic.Source = (*Listing)(nil)

// NewListing builds a Listing source. LinkPattern, when set, must be a
// valid regular expression; links whose absolute URL does not match
// are skipped.
func NewListing(cfg ListingConfig, fetcher civic.Fetcher, logger *zap.Logger) (*Listing, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("source id is required")
	}
	if cfg.ListingURL == "" {
		return nil, fmt.Errorf("source %s: listing url is required", cfg.ID)
	}
	if cfg.MaxLinks == 0 {
		cfg.MaxLinks = 50
	}
	var pattern *regexp.Regexp
	if cfg.LinkPattern != "" {
		var err error
		pattern, err = regexp.Compile(cfg.LinkPattern)
		if err != nil {
			return nil, fmt.Errorf("source %s: compile link pattern: %w", cfg.ID, err)
		}
	}
	return &Listing{cfg: cfg, pattern: pattern, fetcher: fetcher, logger: logger}, nil
}

// ID returns the configured source identifier.
func (l *Listing) ID() string { return l.cfg.ID }

// Scan fetches the listing page and returns candidate article URLs:
// absolute, same-scheme links, deduplicated in document order, capped
// at MaxLinks.
func (l *Listing) Scan(ctx context.Context) ([]string, error) {
	doc, err := l.fetcher.Fetch(ctx, l.cfg.ListingURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", l.cfg.ListingURL, err)
	}

	base, err := url.Parse(doc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url: %w", err)
	}

	page, err := goquery.NewDocumentFromReader(strings.NewReader(doc.RawText))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	seen := make(map[string]struct{})
	var links []string
	page.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		abs := l.resolve(base, href)
		if abs == "" {
			return true
		}
		if abs == l.cfg.ListingURL {
			return true
		}
		if l.pattern != nil && !l.pattern.MatchString(abs) {
			return true
		}
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
		return len(links) < l.cfg.MaxLinks
	})

	l.logger.Debug("listing scanned",
		zap.String("source", l.cfg.ID),
		zap.Int("links", len(links)),
	)
	return links, nil
}

func (l *Listing) resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}
