package civic

import (
	"strings"
	"time"
)

// Status represents the reported lifecycle state of a tracked project.
type Status string

// Status values accepted from extraction output and persisted on projects.
const (
	StatusAnnounced  Status = "announced"
	StatusApproved   Status = "approved"
	StatusInProgress Status = "in_progress"
	StatusDelayed    Status = "delayed"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus validates a raw status string from the extraction backend.
// The empty string defaults to announced; anything else unrecognized is
// rejected so a hallucinated enum value never reaches storage.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case "":
		return StatusAnnounced, true
	case StatusAnnounced, StatusApproved, StatusInProgress,
		StatusDelayed, StatusCompleted, StatusCancelled:
		return s, true
	default:
		return "", false
	}
}

// Terminal reports whether a project in this status is no longer open.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Document is the raw result of one successful fetch. It is never persisted:
// it either passes validation and becomes an Article, or is dropped.
type Document struct {
	URL       string
	SourceID  string
	Title     string
	RawText   string
	FetchedAt time.Time
}

// Article is a validated document persisted by the storage gateway.
// Processed flips false to true exactly once, by the extractor.
type Article struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	SourceID    string     `json:"source_id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at"`
	Processed   bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Failure     string     `json:"failure,omitempty"`
}

// DraftRecord is the transient structured output of one extraction call,
// not yet reconciled against existing projects. The JSON tags are a
// compatibility surface shared with the extraction prompt.
type DraftRecord struct {
	Name       string   `json:"name"`
	Location   string   `json:"location"`
	Budget     *string  `json:"budget"`
	Officials  []string `json:"officials"`
	Status     Status   `json:"status"`
	Summary    string   `json:"summary"`
	Confidence float64  `json:"-"`
}

// Empty reports the "no project found in this article" outcome, which is
// valid and terminal but produces no match or merge.
func (d DraftRecord) Empty() bool {
	return strings.TrimSpace(d.Name) == ""
}

// Project is a tracked project in the ledger.
type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	NormalizedKey string    `json:"normalized_key"`
	Location      string    `json:"location"`
	Budget        *string   `json:"budget,omitempty"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Update is one observed event in a project's history. Append-only; at most
// one update exists per (project, article) pair.
type Update struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	ArticleID    string    `json:"article_id"`
	ObservedAt   time.Time `json:"observed_at"`
	StatusAtTime Status    `json:"status_at_time"`
	Summary      string    `json:"summary"`
}

// ScanRun records one source scan for auditing.
type ScanRun struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Collected  int       `json:"collected"`
	Failed     int       `json:"failed"`
}

// Summary reports per-batch outcomes from the processing entry point.
type Summary struct {
	Attempted int `json:"attempted"`
	Extracted int `json:"extracted"`
	Created   int `json:"created"`
	Attached  int `json:"attached"`
	Failed    int `json:"failed"`
}

// Stats aggregates ledger counts for the ops endpoints.
type Stats struct {
	TotalArticles       int            `json:"total_articles"`
	ProcessedArticles   int            `json:"processed_articles"`
	UnprocessedArticles int            `json:"unprocessed_articles"`
	TotalProjects       int            `json:"total_projects"`
	TotalUpdates        int            `json:"total_updates"`
	ScanRuns            int            `json:"scan_runs"`
	ProjectsByStatus    map[Status]int `json:"projects_by_status"`
}
