// Package extractor turns validated article text into structured
// project drafts with a language model behind a fixed JSON schema.
package extractor

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/civicsignal/civicledger/internal/civic"
	"github.com/civicsignal/civicledger/internal/metrics"
)

// Config holds extraction settings.
type Config struct {
	MaxBodyLen int
}

// Extractor drives the model and enforces the reply schema.
type Extractor struct {
	cfg    Config
	gen    civic.Generator
	logger *zap.Logger
}

// New builds an Extractor.
func New(cfg Config, gen civic.Generator, logger *zap.Logger) *Extractor {
	if cfg.MaxBodyLen == 0 {
		cfg.MaxBodyLen = 6000
	}
	return &Extractor{cfg: cfg, gen: gen, logger: logger}
}

// rawDraft mirrors the reply schema before validation. Budget is a
// pointer so a JSON null survives the round trip, and officials
// tolerates a single string where the model ignored the array shape.
type rawDraft struct {
	Name      string          `json:"name"`
	Location  string          `json:"location"`
	Budget    *string         `json:"budget"`
	Officials json.RawMessage `json:"officials"`
	Status    string          `json:"status"`
	Summary   string          `json:"summary"`
}

// Extract runs the model over one article. A (nil, nil) return means
// the model reported no project in the text; that outcome is final for
// the article. Schema violations are final too. Only backend
// availability errors indicate the article should be retried later.
func (e *Extractor) Extract(ctx context.Context, a civic.Article) (*civic.DraftRecord, error) {
	prompt := buildPrompt(a.Title, a.Body, e.cfg.MaxBodyLen)

	reply, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		metrics.ObserveExtraction("backend-error")
		return nil, err
	}

	payload, ok := extractJSON(reply)
	if !ok {
		metrics.ObserveExtraction("schema-violation")
		return nil, &civic.ExtractionError{
			Kind:   civic.ExtractionSchemaViolation,
			Detail: "no JSON object in reply",
		}
	}
	if payload == "null" {
		metrics.ObserveExtraction("no-project")
		e.logger.Debug("no project in article", zap.String("url", a.URL))
		return nil, nil
	}

	var raw rawDraft
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		metrics.ObserveExtraction("schema-violation")
		return nil, &civic.ExtractionError{
			Kind:   civic.ExtractionSchemaViolation,
			Detail: "reply is not valid JSON",
			Err:    err,
		}
	}

	// An empty or missing name is the model's other way of saying the
	// article has no project; treat it like a null reply.
	if strings.TrimSpace(raw.Name) == "" {
		metrics.ObserveExtraction("no-project")
		e.logger.Debug("no project in article", zap.String("url", a.URL))
		return nil, nil
	}

	draft, err := e.validate(raw)
	if err != nil {
		metrics.ObserveExtraction("schema-violation")
		return nil, err
	}

	metrics.ObserveExtraction("extracted")
	return draft, nil
}

func (e *Extractor) validate(raw rawDraft) (*civic.DraftRecord, error) {
	name := strings.TrimSpace(raw.Name)

	status, ok := civic.ParseStatus(raw.Status)
	if !ok {
		return nil, &civic.ExtractionError{
			Kind:   civic.ExtractionSchemaViolation,
			Detail: "unknown status " + strconv.Quote(raw.Status),
		}
	}

	officials, err := parseOfficials(raw.Officials)
	if err != nil {
		return nil, &civic.ExtractionError{
			Kind:   civic.ExtractionSchemaViolation,
			Detail: "officials is neither a list nor a string",
			Err:    err,
		}
	}

	var budget *string
	if raw.Budget != nil {
		if b := strings.TrimSpace(*raw.Budget); b != "" && !strings.EqualFold(b, "null") {
			budget = &b
		}
	}

	d := &civic.DraftRecord{
		Name:      name,
		Location:  strings.TrimSpace(raw.Location),
		Budget:    budget,
		Officials: officials,
		Status:    status,
		Summary:   strings.TrimSpace(raw.Summary),
	}
	d.Confidence = confidence(d)
	return d, nil
}

// parseOfficials accepts a JSON array of strings, a bare string, or
// null.
func parseOfficials(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		out := list[:0]
		for _, o := range list {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
		return out, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	if single = strings.TrimSpace(single); single == "" {
		return nil, nil
	}
	return []string{single}, nil
}

// confidence scores a draft by how many optional fields the model
// filled in. Name and status are mandatory, so the floor is 0.4.
func confidence(d *civic.DraftRecord) float64 {
	score := 0.4
	if d.Location != "" {
		score += 0.2
	}
	if d.Budget != nil {
		score += 0.15
	}
	if len(d.Officials) > 0 {
		score += 0.1
	}
	if d.Summary != "" {
		score += 0.15
	}
	return score
}
