// Package validator gates fetched documents before they reach the
// extraction stage. Rejections are audit-logged with the document URL
// and the reason so operators can tune thresholds per source.
package validator

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/civicsignal/civicledger/internal/civic"
	"github.com/civicsignal/civicledger/internal/metrics"
)

// Config holds the quality thresholds.
type Config struct {
	MinTitleLen    int
	MinBodyLen     int
	Keywords       []string
	RequireKeyword bool
}

// Validator applies the quality gate.
type Validator struct {
	cfg      Config
	keywords []string
	logger   *zap.Logger
}

// New builds a Validator. Zero thresholds fall back to the defaults
// used by the batch pipeline.
func New(cfg Config, logger *zap.Logger) *Validator {
	if cfg.MinTitleLen == 0 {
		cfg.MinTitleLen = 10
	}
	if cfg.MinBodyLen == 0 {
		cfg.MinBodyLen = 100
	}
	kws := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		kws = append(kws, strings.ToLower(k))
	}
	return &Validator{cfg: cfg, keywords: kws, logger: logger}
}

// Validate checks an article against the quality gate. A nil return
// means the article may proceed to extraction; otherwise the returned
// error is a *civic.ValidationReject naming the first failed check.
func (v *Validator) Validate(a civic.Article) error {
	if utf8.RuneCountInString(strings.TrimSpace(a.Title)) < v.cfg.MinTitleLen {
		return v.reject(a, civic.RejectTitleTooShort)
	}
	body := strings.TrimSpace(a.Body)
	if utf8.RuneCountInString(body) < v.cfg.MinBodyLen {
		return v.reject(a, civic.RejectBodyTooShort)
	}
	if boilerplate(body) {
		return v.reject(a, civic.RejectBoilerplate)
	}
	if v.cfg.RequireKeyword && !v.relevant(a) {
		return v.reject(a, civic.RejectNotRelevant)
	}
	metrics.ObserveValidation("accepted")
	return nil
}

func (v *Validator) reject(a civic.Article, reason civic.RejectReason) error {
	metrics.ObserveValidation(string(reason))
	v.logger.Info("article rejected",
		zap.String("url", a.URL),
		zap.String("reason", string(reason)),
	)
	return &civic.ValidationReject{Reason: reason, URL: a.URL}
}

// relevant reports whether the title or body mentions any configured
// keyword. Matching is case-insensitive substring matching; sources
// with noisy listings enable RequireKeyword to skip off-topic pages.
func (v *Validator) relevant(a civic.Article) bool {
	if len(v.keywords) == 0 {
		return true
	}
	title := strings.ToLower(a.Title)
	body := strings.ToLower(a.Body)
	for _, k := range v.keywords {
		if strings.Contains(title, k) || strings.Contains(body, k) {
			return true
		}
	}
	return false
}

// boilerplate flags bodies that are mostly navigation chrome: a high
// share of very short lines is the signature of a menu or link farm
// that slipped past readability extraction.
func boilerplate(body string) bool {
	lines := strings.Split(body, "\n")
	var total, short int
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		total++
		if utf8.RuneCountInString(line) < 25 {
			short++
		}
	}
	if total < 5 {
		return false
	}
	return float64(short)/float64(total) > 0.8
}
