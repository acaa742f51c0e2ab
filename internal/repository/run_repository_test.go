package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"watchtower/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type fakePool struct {
	execSQL  []string
	execArgs [][]any
	execErr  error
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func newTestRepo(pool PgxPool) *RunRepository {
	return NewRunRepository(pool, trace.NewNoopTracerProvider().Tracer("test"))
}

func TestRunMigrationsCreatesTable(t *testing.T) {
	pool := &fakePool{}
	if err := newTestRepo(pool).RunMigrations(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pool.execSQL) != 1 || !strings.Contains(pool.execSQL[0], "CREATE TABLE IF NOT EXISTS pipeline_runs") {
		t.Fatalf("unexpected migration SQL: %v", pool.execSQL)
	}
}

func TestInsertRunSuccessReport(t *testing.T) {
	pool := &fakePool{}
	report := &domain.RunReport{
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
		State:      domain.StateMessageSent,
		EntryCount: 3,
	}
	if err := newTestRepo(pool).InsertRun(context.Background(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pool.execArgs) != 1 {
		t.Fatalf("expected one insert, got %d", len(pool.execArgs))
	}
	args := pool.execArgs[0]
	if len(args) != 8 {
		t.Fatalf("expected 8 insert args, got %d", len(args))
	}
	if args[2] != string(domain.StateMessageSent) || args[4] != 3 {
		t.Fatalf("unexpected args: %v", args)
	}
	for i := 5; i < 8; i++ {
		if v, ok := args[i].(*string); ok && v != nil {
			t.Fatalf("success report must store NULL failure columns, got %v", args[i])
		}
	}
}

func TestInsertRunFailureReport(t *testing.T) {
	pool := &fakePool{}
	report := &domain.RunReport{
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		State:      domain.StateFetchFailed,
		Failure:    &domain.StageError{Stage: domain.StageFetch, HTTPStatus: 503, Cause: "upstream down"},
	}
	if err := newTestRepo(pool).InsertRun(context.Background(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	args := pool.execArgs[0]
	stage, ok := args[5].(*string)
	if !ok || stage == nil || *stage != domain.StageFetch {
		t.Fatalf("expected failure stage recorded, got %v", args[5])
	}
	status, ok := args[6].(*int)
	if !ok || status == nil || *status != 503 {
		t.Fatalf("expected failure status recorded, got %v", args[6])
	}
}

func TestInsertRunPropagatesError(t *testing.T) {
	pool := &fakePool{execErr: errors.New("connection lost")}
	err := newTestRepo(pool).InsertRun(context.Background(), &domain.RunReport{State: domain.StateMessageSent})
	if err == nil {
		t.Fatal("expected error from pool")
	}
}
