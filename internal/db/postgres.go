package db

import (
	"context"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

var Pool *pgxpool.Pool

var (
	newPool = pgxpool.New
	pingDB  = func(ctx context.Context, pool *pgxpool.Pool) error {
		return pool.Ping(ctx)
	}
)

// InitPostgres connects the optional run-history store. Like the token
// cache, a missing or unreachable database degrades the run to
// stateless operation instead of failing it.
func InitPostgres(ctx context.Context) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return
	}

	pool, err := newPool(ctx, dsn)
	if err != nil {
		log.Printf("invalid DATABASE_URL, run history disabled: %v", err)
		return
	}
	if err := pingDB(ctx, pool); err != nil {
		log.Printf("postgres unreachable, run history disabled: %v", err)
		pool.Close()
		return
	}
	Pool = pool
	log.Println("Connected to Postgres, run history enabled")
}
