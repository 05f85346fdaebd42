package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/pixelcut/internal/domain"
	_ "github.com/lib/pq"
)

const jobSchemaSQL = `
CREATE TABLE IF NOT EXISTS removal_jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	params JSONB NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	output JSONB,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

const selectJobSQL = `SELECT id, status, params, webhook_url, output, error, created_at, updated_at
 FROM removal_jobs
 WHERE id = $1`

type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(ctx context.Context, dsn string) (*PostgresJobStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresJobStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresJobStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, jobSchemaSQL); err != nil {
		return fmt.Errorf("ensure jobs schema: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

func (s *PostgresJobStore) Create(ctx context.Context, job domain.Job) error {
	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal job params: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO removal_jobs (id, status, params, webhook_url, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID,
		job.Status,
		paramsJSON,
		job.WebhookURL,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	return nil
}

func (s *PostgresJobStore) Get(ctx context.Context, id string) (domain.Job, bool, error) {
	row := s.db.QueryRowContext(ctx, selectJobSQL, id)

	var (
		job        domain.Job
		paramsJSON []byte
		outputJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.Status,
		&paramsJSON,
		&job.WebhookURL,
		&outputJSON,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, false, nil
		}
		return domain.Job{}, false, fmt.Errorf("query job: %w", err)
	}

	if err := json.Unmarshal(paramsJSON, &job.Params); err != nil {
		return domain.Job{}, false, fmt.Errorf("unmarshal job params: %w", err)
	}
	if len(outputJSON) > 0 {
		var out domain.JobOutput
		if err := json.Unmarshal(outputJSON, &out); err != nil {
			return domain.Job{}, false, fmt.Errorf("unmarshal job output: %w", err)
		}
		job.Output = &out
	}

	return job, true, nil
}

// UpdateStatus leaves finished jobs untouched and returns them as stored.
func (s *PostgresJobStore) UpdateStatus(ctx context.Context, id, status string) (domain.Job, error) {
	return s.exec(ctx, id,
		`UPDATE removal_jobs
		 SET status = $1, updated_at = $2
		 WHERE id = $3 AND status NOT IN ($4, $5)`,
		status, time.Now().UTC(), id, domain.JobStatusSucceeded, domain.JobStatusFailed,
	)
}

func (s *PostgresJobStore) Complete(ctx context.Context, id string, output domain.JobOutput) (domain.Job, error) {
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return domain.Job{}, fmt.Errorf("marshal job output: %w", err)
	}
	return s.exec(ctx, id,
		`UPDATE removal_jobs
		 SET status = $1, output = $2, error = '', updated_at = $3
		 WHERE id = $4`,
		domain.JobStatusSucceeded, outputJSON, time.Now().UTC(), id,
	)
}

func (s *PostgresJobStore) Fail(ctx context.Context, id, reason string) (domain.Job, error) {
	return s.exec(ctx, id,
		`UPDATE removal_jobs
		 SET status = $1, output = NULL, error = $2, updated_at = $3
		 WHERE id = $4`,
		domain.JobStatusFailed, reason, time.Now().UTC(), id,
	)
}

func (s *PostgresJobStore) exec(ctx context.Context, id, query string, args ...any) (domain.Job, error) {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domain.Job{}, fmt.Errorf("update job: %w", err)
	}

	// No affected row means the job is missing or a guard skipped it; the
	// read below tells the two apart.
	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Job{}, err
	}
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	return job, nil
}
