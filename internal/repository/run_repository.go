package repository

import (
	"context"
	"time"

	"watchtower/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
    id           BIGSERIAL   PRIMARY KEY,
    started_at   TIMESTAMPTZ NOT NULL,
    finished_at  TIMESTAMPTZ NOT NULL,
    state        TEXT        NOT NULL,
    no_data      BOOLEAN     NOT NULL,
    entry_count  INT         NOT NULL,
    fail_stage   TEXT,
    fail_status  INT,
    fail_cause   TEXT
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at
    ON pipeline_runs (started_at DESC);
`

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RunRepository keeps one row per pipeline invocation so failed runs can be
// inspected without re-running against the live endpoints.
type RunRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewRunRepository(pool PgxPool, tracer trace.Tracer) *RunRepository {
	return &RunRepository{pool: pool, tracer: tracer}
}

func (r *RunRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "run-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createRunsTable)
	return err
}

func (r *RunRepository) InsertRun(ctx context.Context, report *domain.RunReport) error {
	_, span := r.tracer.Start(ctx, "run-repo.insert-run")
	defer span.End()

	var failStage, failCause *string
	var failStatus *int
	if report.Failure != nil {
		failStage = &report.Failure.Stage
		failCause = &report.Failure.Cause
		failStatus = &report.Failure.HTTPStatus
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (started_at, finished_at, state, no_data, entry_count, fail_stage, fail_status, fail_cause)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		report.StartedAt, report.FinishedAt, string(report.State),
		report.NoData, report.EntryCount, failStage, failStatus, failCause,
	)
	return err
}

// RecentRuns returns the newest runs first, for the operator checking why
// a day went quiet.
func (r *RunRepository) RecentRuns(ctx context.Context, limit int) ([]*domain.RunReport, error) {
	_, span := r.tracer.Start(ctx, "run-repo.recent-runs")
	defer span.End()

	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx,
		`SELECT started_at, finished_at, state, no_data, entry_count, fail_stage, fail_status, fail_cause
		 FROM pipeline_runs
		 ORDER BY started_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.RunReport
	for rows.Next() {
		var (
			report     domain.RunReport
			state      string
			started    time.Time
			finished   time.Time
			failStage  *string
			failStatus *int
			failCause  *string
		)
		if err := rows.Scan(&started, &finished, &state, &report.NoData, &report.EntryCount, &failStage, &failStatus, &failCause); err != nil {
			return nil, err
		}
		report.StartedAt = started
		report.FinishedAt = finished
		report.State = domain.RunState(state)
		if failStage != nil {
			report.Failure = &domain.StageError{Stage: *failStage, Cause: derefString(failCause)}
			if failStatus != nil {
				report.Failure.HTTPStatus = *failStatus
			}
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
