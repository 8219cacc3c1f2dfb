// Package fetcher implements rate-limited, retrying document retrieval.
package fetcher

import (
	"context"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/civicsignal/civicledger/internal/civic"
	"github.com/civicsignal/civicledger/internal/fetcher/ratelimit"
	"github.com/civicsignal/civicledger/internal/metrics"
)

// Config controls fetch behavior. Timeout applies per attempt; backoff
// applies between attempts and is independent of the domain rate limit.
type Config struct {
	UserAgent        string
	Timeout          time.Duration
	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	AllowedMIMETypes []string
}

// Fetcher retrieves documents through a Colly collector, classifying
// failures as transient or permanent and retrying only the former.
type Fetcher struct {
	cfg           Config
	limiter       *ratelimit.Limiter
	policy        *retryPolicy
	baseCollector *colly.Collector
	clock         civic.Clock
	logger        *zap.Logger
}

var _ civic.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher.
func New(cfg Config, limiter *ratelimit.Limiter, clock civic.Clock, logger *zap.Logger) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if len(cfg.AllowedMIMETypes) == 0 {
		cfg.AllowedMIMETypes = []string{"text/html", "text/plain", "application/xhtml+xml"}
	}

	c := colly.NewCollector(colly.Async(false))
	// Politeness comes from the per-domain limiter, not robots handling.
	c.IgnoreRobotsTxt = true
	// Retries re-visit the same URL; the visited-URL cache must not veto them.
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		limiter:       limiter,
		policy:        newRetryPolicy(cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffMax),
		baseCollector: c,
		clock:         clock,
		logger:        logger,
	}
}

// attemptResult captures one attempt's outcome before classification.
type attemptResult struct {
	statusCode  int
	contentType string
	body        []byte
	err         error
}

// Fetch retrieves rawURL, retrying transient failures with increasing
// backoff. The returned Document carries the raw body; title and text
// extraction happen downstream.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (civic.Document, error) {
	domain := ratelimit.Domain(rawURL)

	if err := checkURL(rawURL); err != nil {
		metrics.ObserveFetchFailure(domain, string(civic.FetchPermanent))
		return civic.Document{}, &civic.FetchError{
			Kind: civic.FetchPermanent,
			URL:  rawURL,
			Err:  err,
		}
	}

	var last attemptResult
	for attempt := 0; attempt < f.policy.maxAttempts; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, rawURL); err != nil {
				return civic.Document{}, fmt.Errorf("rate limit: %w", err)
			}
		}
		metrics.ObserveFetchAttempt(domain)

		last = f.fetchOnce(ctx, rawURL)

		doc, classified, cause := f.classify(rawURL, last)
		switch classified {
		case outcomeSuccess:
			return doc, nil
		case outcomePermanent:
			metrics.ObserveFetchFailure(domain, string(civic.FetchPermanent))
			return civic.Document{}, &civic.FetchError{
				Kind:       civic.FetchPermanent,
				URL:        rawURL,
				StatusCode: last.statusCode,
				Attempts:   attempt + 1,
				Err:        cause,
			}
		case outcomeTransient:
			if ctx.Err() != nil {
				return civic.Document{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
			}
			if attempt == f.policy.maxAttempts-1 {
				break // budget spent; fall through to exhaustion
			}
			wait := f.policy.Backoff(attempt)
			f.logger.Debug("transient fetch failure, backing off",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Int("status", last.statusCode),
				zap.Duration("backoff", wait),
				zap.Error(last.err),
			)
			if err := sleepCtx(ctx, wait); err != nil {
				return civic.Document{}, fmt.Errorf("fetch canceled: %w", err)
			}
		}
	}

	metrics.ObserveFetchFailure(domain, string(civic.FetchTransientExhausted))
	return civic.Document{}, &civic.FetchError{
		Kind:       civic.FetchTransientExhausted,
		URL:        rawURL,
		StatusCode: last.statusCode,
		Attempts:   f.policy.maxAttempts,
		Err:        last.err,
	}
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeTransient
	outcomePermanent
)

func (f *Fetcher) classify(rawURL string, res attemptResult) (civic.Document, outcome, error) {
	if res.err != nil {
		if res.statusCode != 0 {
			if transientStatus(res.statusCode) {
				return civic.Document{}, outcomeTransient, res.err
			}
			return civic.Document{}, outcomePermanent, res.err
		}
		if transientNetErr(res.err) {
			return civic.Document{}, outcomeTransient, res.err
		}
		// Statusless errors that are not timeouts or resets (unresolvable
		// host, unsupported protocol) will not improve with retries.
		return civic.Document{}, outcomePermanent, res.err
	}

	if !f.mimeAllowed(res.contentType) {
		return civic.Document{}, outcomePermanent,
			fmt.Errorf("content type %q not allowed", res.contentType)
	}

	return civic.Document{
		URL:       rawURL,
		RawText:   string(res.body),
		FetchedAt: f.clock.Now(),
	}, outcomeSuccess, nil
}

func (f *Fetcher) mimeAllowed(contentType string) bool {
	if contentType == "" {
		return true // some municipal servers omit the header entirely
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, allowed := range f.cfg.AllowedMIMETypes {
		if strings.EqualFold(mediaType, allowed) {
			return true
		}
	}
	return false
}

// fetchOnce executes a single HTTP GET through a cloned collector.
func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) attemptResult {
	var res attemptResult

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		res.statusCode = r.StatusCode
		res.contentType = r.Headers.Get("Content-Type")
		res.body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.statusCode = r.StatusCode
		}
		res.err = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		res.err = fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil && res.err == nil {
			res.err = err
		}
	}
	return res
}

func checkURL(rawURL string) error {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
