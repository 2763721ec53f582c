package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qmd/internal/config"
	"qmd/internal/http/handlers"
	applog "qmd/internal/log"
	"qmd/internal/repos"
	"qmd/internal/session"
)

func main() {
	cfg := config.Load()

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			mw := io.MultiWriter(os.Stdout, f)
			log.SetOutput(mw)
			applog.SetOutput(mw)
		}
	}

	kv, purge, closeKV, err := openSessions(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeKV()

	deps := handlers.NewDeps(cfg, kv)
	hkCtx, stopHK := context.WithCancel(context.Background())
	defer stopHK()
	go housekeep(hkCtx, cfg.SessionTTL, purge, deps)
	app := handlers.NewApp(deps, handlers.AppOptions{
		TemplatesDir: cfg.TemplatesDir,
		StaticDir:    "./web/static",
		RateLimit:    120,
		LoginLimit:   5,
		AccessLog:    true,
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		applog.Info(nil, "server.shutdown", nil)
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	applog.Info(nil, "server.start", map[string]any{"port": cfg.Port, "api": cfg.APIBaseURL})
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}

// openSessions picks the session backend. Only sqlite needs an explicit purge;
// redis expires entries itself.
func openSessions(cfg config.Config) (session.KV, purgeFunc, func(), error) {
	if cfg.SessionBackend == "redis" {
		rdb := repos.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, nil, err
		}
		return repos.NewRedisSessionRepo(rdb, cfg.SessionTTL), nil, func() { _ = rdb.Close() }, nil
	}

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		return nil, nil, nil, err
	}
	repo := repos.NewSessionRepo(db, cfg.SessionTTL)
	return repo, repo.Purge, func() { _ = db.Close() }, nil
}

type purgeFunc func(ctx context.Context) (int64, error)

// housekeep runs hourly until ctx ends: expired session rows go first, then
// the in-memory cart stores and flashes of sessions idle past the TTL.
func housekeep(ctx context.Context, ttl time.Duration, purge purgeFunc, deps *handlers.Deps) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if purge != nil {
			if n, err := purge(ctx); err != nil {
				applog.Error(nil, "sessions.purge.fail", err, nil)
			} else if n > 0 {
				applog.Info(nil, "sessions.purge", map[string]any{"removed": n})
			}
		}
		stores, flashes := deps.Cart.Sweep(ttl), deps.Flash.Sweep(ttl)
		if stores+flashes > 0 {
			applog.Info(nil, "sessions.sweep", map[string]any{"stores": stores, "flashes": flashes})
		}
	}
}
