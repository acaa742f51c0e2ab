package main

import (
	"context"
	"log"
	"os"
	"time"

	"watchtower/internal/cache"
	"watchtower/internal/config"
	"watchtower/internal/db"
	"watchtower/internal/pipeline"
	"watchtower/internal/provider"
	"watchtower/internal/repository"
	"watchtower/internal/zoho"
	"watchtower/pkg/tracing"

	"github.com/joho/godotenv"
)

// One invocation, one pipeline run. The weekday schedule and retriggering
// live in the external workflow; this process only reports success or
// failure through its exit code.

const runDeadline = 5 * time.Minute

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initTracerFunc   = tracing.InitTracer
	initRedisFunc    = cache.InitRedis
	initPostgresFunc = db.InitPostgres
	osExit           = os.Exit
)

func main() {
	osExit(run())
}

func run() int {
	loadEnvFunc()

	cfg, err := loadConfigFunc()
	if err != nil {
		log.Printf("configuration error: %v", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), runDeadline)
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Printf("failed to initialize tracer: %v", err)
		return 1
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Optional collaborators; both degrade to off when unconfigured.
	os.Setenv("REDIS_URL", cfg.RedisURL)
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	initRedisFunc(ctx)
	initPostgresFunc(ctx)

	var tokenCache zoho.TokenCache
	if cache.Client != nil {
		tokenCache = cache.NewTokenCache(cache.Client)
	}

	timeout := time.Duration(cfg.HTTPTimeoutSecs) * time.Second
	tokens := zoho.NewTokenClient(tracer, cfg.TokenURL, zoho.RefreshCredential{
		ClientID:     cfg.ZohoClientID,
		ClientSecret: cfg.ZohoClientSecret,
		RedirectURI:  cfg.ZohoRedirectURI,
		RefreshToken: cfg.ZohoRefreshToken,
	}, timeout, tokenCache)

	source := provider.NewNSEProvider(tracer, provider.NSEOptions{
		BaseURL:    cfg.NSEBaseURL,
		BanListURL: cfg.BanListURL,
		Timeout:    timeout,
		MaxRetries: cfg.NSEMaxRetries,
	})
	holidays := provider.NewHolidayProvider(tracer, cfg.HolidayURL, timeout)
	sender := zoho.NewCliqClient(tracer, cfg.CliqBotURL, cfg.CliqChannelURL, cfg.BotUniqueName, timeout)

	runner := pipeline.NewRunner(tracer, tokens, source, holidays, sender)
	report := runner.Run(ctx)

	if db.Pool != nil {
		repo := repository.NewRunRepository(db.Pool, tracer)
		if err := repo.RunMigrations(ctx); err != nil {
			log.Printf("run history migration error: %v", err)
		} else if err := repo.InsertRun(ctx, report); err != nil {
			log.Printf("run history insert error: %v", err)
		}
		db.Pool.Close()
	}

	return report.ExitCode()
}
