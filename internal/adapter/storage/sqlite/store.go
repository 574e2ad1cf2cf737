package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/videocut/internal/domain"
	"github.com/bnema/videocut/internal/port"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA foreign_keys = ON",
				"PRAGMA cache_size = -8000", // 8MB
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

func NewStore(dataDir string) (*Store, error) {
	registerHook()

	dbPath := filepath.Join(dataDir, "videocut.db")
	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single connection for SQLite (WAL allows concurrent reads but only one writer)
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const jobColumns = `id, owner_id, video_name, input_url, input_path, settings, status,
	result_paths, error, created_at, started_at, finished_at`

func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	settings, err := json.Marshal(job.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	paths, err := encodePaths(job.ResultPaths)
	if err != nil {
		return err
	}
	jobErr, err := encodeError(job.Error)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.OwnerID, job.VideoName, job.InputURL, job.InputPath, string(settings),
		string(job.Status), paths, jobErr, job.CreatedAt.UTC(), nullTime(job.StartedAt), nullTime(job.FinishedAt),
	)
	if isPrimaryKeyViolation(err) {
		return domain.ErrJobExists
	}
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Job, error) {
	return s.list(ctx, `SELECT `+jobColumns+` FROM jobs
		WHERE owner_id = ? ORDER BY created_at DESC, id ASC`, ownerID)
}

func (s *Store) ListUnfinished(ctx context.Context) ([]*domain.Job, error) {
	return s.list(ctx, `SELECT `+jobColumns+` FROM jobs
		WHERE status IN ('queued', 'running') ORDER BY created_at DESC, id ASC`)
}

func (s *Store) MarkRunning(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = 'running', started_at = ?
		WHERE id = ? AND status = 'queued'`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}

	// Nothing changed: tell apart a missing, finished or already running job.
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return job.MarkRunning(time.Now().UTC())
}

// Finish applies a terminal event. The status guard in the UPDATE makes
// the first writer win when two finishes race.
func (s *Store) Finish(ctx context.Context, id string, ev domain.ResultEvent) (*domain.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := job.Apply(ev, time.Now().UTC()); err != nil {
		return nil, err
	}

	paths, err := encodePaths(job.ResultPaths)
	if err != nil {
		return nil, err
	}
	jobErr, err := encodeError(job.Error)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE jobs
		SET status = ?, result_paths = ?, error = ?, finished_at = ?
		WHERE id = ? AND status IN ('queued', 'running')`,
		string(job.Status), paths, jobErr, nullTime(job.FinishedAt), id,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, domain.ErrJobFinished
	}
	return job, nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	jobs := []*domain.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job                   domain.Job
		settings, status      string
		paths                 string
		jobErr                sql.NullString
		startedAt, finishedAt sql.NullTime
	)
	err := row.Scan(&job.ID, &job.OwnerID, &job.VideoName, &job.InputURL, &job.InputPath,
		&settings, &status, &paths, &jobErr, &job.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(settings), &job.Settings); err != nil {
		return nil, fmt.Errorf("decode settings of job %s: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(paths), &job.ResultPaths); err != nil {
		return nil, fmt.Errorf("decode result paths of job %s: %w", job.ID, err)
	}
	if jobErr.Valid && jobErr.String != "" {
		job.Error = &domain.JobError{}
		if err := json.Unmarshal([]byte(jobErr.String), job.Error); err != nil {
			return nil, fmt.Errorf("decode error of job %s: %w", job.ID, err)
		}
	}

	job.Status = domain.JobStatus(status)
	job.CreatedAt = job.CreatedAt.UTC()
	job.StartedAt = timePtr(startedAt)
	job.FinishedAt = timePtr(finishedAt)
	return &job, nil
}

func encodePaths(paths []string) (string, error) {
	if paths == nil {
		paths = []string{}
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return "", fmt.Errorf("encode result paths: %w", err)
	}
	return string(data), nil
}

func encodeError(jobErr *domain.JobError) (sql.NullString, error) {
	if jobErr == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(jobErr)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode job error: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func isPrimaryKeyViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

var _ port.JobStore = (*Store)(nil)
