// Package postgres provides the Postgres-backed ledger store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicsignal/civicledger/internal/civic"
)

// uniqueViolation is the Postgres error code for unique constraint hits.
const uniqueViolation = "23505"

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// dbPool is the slice of pgxpool.Pool the store uses. pgxmock
// implements it, which keeps the tests off a live database.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store implements civic.Store against Postgres.
type Store struct {
	pool dbPool
}

var _ civic.Store = (*Store)(nil)

// New connects a pool and returns the store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool dbPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) InsertArticle(ctx context.Context, a civic.Article) (civic.Article, error) {
	query := `
		INSERT INTO articles (id, url, source_id, title, body, published_at, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, query,
		a.ID, a.URL, a.SourceID, a.Title, a.Body, a.PublishedAt, a.FetchedAt,
	).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return civic.Article{}, civic.ErrDuplicateArticle
		}
		return civic.Article{}, fmt.Errorf("insert article: %w", err)
	}
	return a, nil
}

func (s *Store) UnprocessedArticles(ctx context.Context, limit int) ([]civic.Article, error) {
	query := `
		SELECT id, url, source_id, title, body, published_at, fetched_at, processed, processed_at, failure
		FROM articles
		WHERE NOT processed
		ORDER BY fetched_at ASC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select unprocessed articles: %w", err)
	}
	defer rows.Close()

	var out []civic.Article
	for rows.Next() {
		var a civic.Article
		var failure *string
		if err := rows.Scan(&a.ID, &a.URL, &a.SourceID, &a.Title, &a.Body,
			&a.PublishedAt, &a.FetchedAt, &a.Processed, &a.ProcessedAt, &failure); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		if failure != nil {
			a.Failure = *failure
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

func (s *Store) MarkArticleProcessed(ctx context.Context, articleID string, failure string) error {
	query := `
		UPDATE articles
		SET processed = TRUE, processed_at = NOW(), failure = NULLIF($2, '')
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, articleID, failure)
	if err != nil {
		return fmt.Errorf("mark article processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return civic.ErrNotFound
	}
	return nil
}

func (s *Store) OpenProjects(ctx context.Context, includeClosed bool) ([]civic.Project, error) {
	query := `
		SELECT id, name, normalized_key, location, budget, status, created_at, updated_at
		FROM projects
		WHERE $1 OR status NOT IN ('completed', 'cancelled')
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, includeClosed)
	if err != nil {
		return nil, fmt.Errorf("select projects: %w", err)
	}
	defer rows.Close()

	var out []civic.Project
	for rows.Next() {
		var p civic.Project
		var status string
		if err := rows.Scan(&p.ID, &p.Name, &p.NormalizedKey, &p.Location,
			&p.Budget, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Status = civic.Status(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return out, nil
}

func (s *Store) FindUpdate(ctx context.Context, projectID, articleID string) (civic.Update, error) {
	query := `
		SELECT id, project_id, article_id, observed_at, status_at_time, summary
		FROM updates
		WHERE project_id = $1 AND article_id = $2
	`
	var u civic.Update
	var status string
	err := s.pool.QueryRow(ctx, query, projectID, articleID).Scan(
		&u.ID, &u.ProjectID, &u.ArticleID, &u.ObservedAt, &status, &u.Summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return civic.Update{}, civic.ErrNotFound
	}
	if err != nil {
		return civic.Update{}, fmt.Errorf("find update: %w", err)
	}
	u.StatusAtTime = civic.Status(status)
	return u, nil
}

func (s *Store) CreateProjectWithUpdate(ctx context.Context, p civic.Project, u civic.Update) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO projects (id, name, normalized_key, location, budget, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, p.ID, p.Name, p.NormalizedKey, p.Location, p.Budget, string(p.Status), p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		if err := insertUpdate(ctx, tx, u); err != nil {
			return err
		}
		return nil
	})
}

func (s *Store) AttachUpdate(ctx context.Context, projectID string, status civic.Status, updatedAt time.Time, u civic.Update) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE projects SET status = $2, updated_at = $3 WHERE id = $1
		`, projectID, string(status), updatedAt)
		if err != nil {
			return fmt.Errorf("update project status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return civic.ErrNotFound
		}
		if err := insertUpdate(ctx, tx, u); err != nil {
			return err
		}
		return nil
	})
}

func insertUpdate(ctx context.Context, tx pgx.Tx, u civic.Update) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO updates (id, project_id, article_id, observed_at, status_at_time, summary)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.ProjectID, u.ArticleID, u.ObservedAt, string(u.StatusAtTime), u.Summary)
	if err != nil {
		if isUniqueViolation(err) {
			return civic.ErrDuplicateArticle
		}
		return fmt.Errorf("insert update: %w", err)
	}
	return nil
}

func (s *Store) RecordScanRun(ctx context.Context, run civic.ScanRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_runs (id, source_id, started_at, finished_at, collected, failed)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, run.SourceID, run.StartedAt, run.FinishedAt, run.Collected, run.Failed)
	if err != nil {
		return fmt.Errorf("insert scan run: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (civic.Stats, error) {
	var st civic.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM articles),
			(SELECT COUNT(*) FROM articles WHERE processed),
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM updates),
			(SELECT COUNT(*) FROM scan_runs)
	`).Scan(&st.TotalArticles, &st.ProcessedArticles, &st.TotalProjects, &st.TotalUpdates, &st.ScanRuns)
	if err != nil {
		return civic.Stats{}, fmt.Errorf("collect counts: %w", err)
	}
	st.UnprocessedArticles = st.TotalArticles - st.ProcessedArticles

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM projects GROUP BY status`)
	if err != nil {
		return civic.Stats{}, fmt.Errorf("collect status counts: %w", err)
	}
	defer rows.Close()

	st.ProjectsByStatus = make(map[civic.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return civic.Stats{}, fmt.Errorf("scan status count: %w", err)
		}
		st.ProjectsByStatus[civic.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return civic.Stats{}, fmt.Errorf("iterate status counts: %w", err)
	}
	return st, nil
}

// inTx runs fn inside a transaction, rolling back on any error.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
