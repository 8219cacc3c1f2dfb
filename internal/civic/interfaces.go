package civic

import (
	"context"
	"time"
)

// Store is the storage gateway for articles, projects and updates.
// Implementations must serialize concurrent merge transactions so the
// one-update-per-(project, article) invariant holds.
type Store interface {
	// InsertArticle persists a validated article. A URL already present
	// yields ErrDuplicateArticle and no write.
	InsertArticle(ctx context.Context, a Article) (Article, error)

	// UnprocessedArticles returns up to limit articles with Processed false,
	// oldest first.
	UnprocessedArticles(ctx context.Context, limit int) ([]Article, error)

	// MarkArticleProcessed flips the processed flag. A non-empty failure is
	// recorded as the terminal annotation for that article.
	MarkArticleProcessed(ctx context.Context, articleID string, failure string) error

	// OpenProjects returns the candidate set for matching: projects not in a
	// terminal status, or every project when includeClosed is set.
	OpenProjects(ctx context.Context, includeClosed bool) ([]Project, error)

	// FindUpdate returns the update for a (project, article) pair, or
	// ErrNotFound.
	FindUpdate(ctx context.Context, projectID, articleID string) (Update, error)

	// CreateProjectWithUpdate atomically writes a new project and its
	// initial update.
	CreateProjectWithUpdate(ctx context.Context, p Project, u Update) error

	// AttachUpdate atomically appends an update to an existing project and
	// overwrites the project's status and updated-at timestamp.
	AttachUpdate(ctx context.Context, projectID string, status Status, updatedAt time.Time, u Update) error

	// RecordScanRun appends a scan audit row.
	RecordScanRun(ctx context.Context, run ScanRun) error

	// Stats aggregates ledger counts.
	Stats(ctx context.Context) (Stats, error)

	// Ping verifies the gateway is reachable.
	Ping(ctx context.Context) error
}

// Fetcher retrieves one document by URL, applying rate limiting and retries.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Document, error)
}

// Generator is the extraction backend: one synchronous completion call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Source describes one place documents come from. Scan discovers candidate
// document URLs from the source's listing; it does not fetch article bodies.
type Source interface {
	ID() string
	Scan(ctx context.Context) ([]string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
