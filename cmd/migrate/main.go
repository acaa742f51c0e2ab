package main

import (
	"context"
	"log"
	"os"
	"strings"

	"watchtower/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
)

const (
	cmdUp     = "up"
	cmdStatus = "status"
)

var (
	loadEnvFunc = godotenv.Load
	openPool    = pgxpool.New
)

func main() {
	loadEnvFunc()

	cmd := cmdUp
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	if !validCommand(cmd) {
		log.Fatalf("unknown command %q. usage: go run ./cmd/migrate [up|status]", cmd)
	}

	dsn := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(dsn) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()
	pool, err := openPool(ctx, dsn)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := repository.NewRunRepository(pool, trace.NewNoopTracerProvider().Tracer("migrate"))

	switch cmd {
	case cmdUp:
		if err := repo.RunMigrations(ctx); err != nil {
			log.Fatalf("apply run-history schema: %v", err)
		}
		log.Println("run-history schema ready")
	case cmdStatus:
		runs, err := repo.RecentRuns(ctx, 10)
		if err != nil {
			log.Fatalf("read recent runs: %v", err)
		}
		if len(runs) == 0 {
			log.Println("no runs recorded")
			return
		}
		for _, r := range runs {
			line := string(r.State)
			if r.Failure != nil {
				line += ": " + r.Failure.Error()
			}
			log.Printf("%s entries=%d no_data=%v %s",
				r.StartedAt.Format("2006-01-02 15:04:05"), r.EntryCount, r.NoData, line)
		}
	}
}

func validCommand(cmd string) bool {
	return cmd == cmdUp || cmd == cmdStatus
}
