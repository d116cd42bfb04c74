// Command governor runs the model governance service: a governed request
// path in front of an upstream model provider, plus a management API for
// health, alerts and budget limits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/router-for-me/ModelGovernor/internal/api"
	"github.com/router-for-me/ModelGovernor/internal/config"
	"github.com/router-for-me/ModelGovernor/internal/governor"
	"github.com/router-for-me/ModelGovernor/internal/logging"
	"github.com/router-for-me/ModelGovernor/internal/metrics"
	"github.com/router-for-me/ModelGovernor/internal/provider"
	"github.com/router-for-me/ModelGovernor/internal/security"
	"github.com/router-for-me/ModelGovernor/internal/store"
	log "github.com/sirupsen/logrus"
)

func main() {
	var configPath string
	var generateKey bool
	var issueOperator string
	var tokenTTL time.Duration
	flag.StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	flag.BoolVar(&generateKey, "generate-management-key", false, "print a fresh management key and its bcrypt hash, then exit")
	flag.StringVar(&issueOperator, "issue-token", "", "issue a management JWT for the named operator, then exit")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "expiry for tokens issued with -issue-token")
	flag.Parse()

	if errEnv := godotenv.Load(); errEnv != nil && !os.IsNotExist(errEnv) {
		log.WithError(errEnv).Warn("main: load .env failed")
	}

	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		// A missing config file is fine, defaults plus env apply.
		if !errors.Is(errLoad, fs.ErrNotExist) {
			log.WithError(errLoad).Fatal("main: load config failed")
		}
		cfg, errLoad = config.Load("")
		if errLoad != nil {
			log.WithError(errLoad).Fatal("main: load default config failed")
		}
		configPath = ""
	}
	logging.Setup(cfg.Log)

	if generateKey {
		if errGen := printManagementKey(); errGen != nil {
			log.WithError(errGen).Fatal("main: generate management key failed")
		}
		return
	}
	if issueOperator != "" {
		if errIssue := printOperatorToken(cfg.Security.JWTSecret, issueOperator, tokenTTL); errIssue != nil {
			log.WithError(errIssue).Fatal("main: issue token failed")
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sink metrics.Sink = metrics.NewNop()
	if cfg.Redis.Addr != "" {
		sink = metrics.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.StreamPrefix)
	}
	defer sink.Close()

	var st *store.Store
	if cfg.Database.DSN != "" {
		opened, errStore := store.New(cfg.Database.DSN)
		if errStore != nil {
			log.WithError(errStore).Fatal("main: open store failed")
		}
		st = opened
		defer st.Close()
	}

	upstream := provider.NewHTTP(cfg.Provider)
	g := newGovernor(cfg, upstream, sink, st)
	g.Start(ctx)

	if st != nil {
		seedDailyTotals(ctx, g, st)
		cleaner := store.NewRetentionCleaner(st, cfg.Governance.SampleRetentionDays, cfg.Governance.AlertRetentionDays)
		cleaner.Start(ctx)
	}

	if configPath != "" {
		if errWatch := config.Watch(ctx, configPath, g.ApplyConfig); errWatch != nil {
			log.WithError(errWatch).Warn("main: config watch failed")
		}
	}

	var pinger api.Pinger
	if st != nil {
		pinger = st
	}
	server := api.NewServer(cfg, g, pinger)
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Run() }()

	select {
	case <-ctx.Done():
		log.Info("main: shutdown signal received")
	case errServe := <-serveErr:
		if errServe != nil {
			log.WithError(errServe).Error("main: server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		log.WithError(errShutdown).Warn("main: shutdown failed")
	}
	log.Info("main: stopped")
}

// printManagementKey emits a new management key once, alongside the bcrypt
// hash that belongs in the security.management-keys configuration.
func printManagementKey() error {
	key, errGen := security.GenerateManagementKey()
	if errGen != nil {
		return errGen
	}
	hash, errHash := security.HashManagementKey(key)
	if errHash != nil {
		return errHash
	}
	fmt.Printf("management key: %s\n", security.HideKey(key))
	fmt.Printf("full key (shown once): %s\n", key)
	fmt.Printf("bcrypt hash for security.management-keys: %s\n", hash)
	return nil
}

func printOperatorToken(secret, operator string, ttl time.Duration) error {
	if secret == "" {
		return fmt.Errorf("security.jwt-secret must be configured to issue tokens")
	}
	token, errGen := security.GenerateToken(secret, operator, ttl)
	if errGen != nil {
		return errGen
	}
	fmt.Printf("operator token for %s (expires in %s):\n%s\n", operator, ttl, token)
	return nil
}

func newGovernor(cfg *config.Config, upstream governor.Provider, sink metrics.Sink, st *store.Store) *governor.Governor {
	if st != nil {
		return governor.New(cfg, upstream, sink, st, st, nil)
	}
	return governor.New(cfg, upstream, sink, nil, nil, nil)
}

// seedDailyTotals recovers today's spend from the store so a restart does
// not reset daily budgets.
func seedDailyTotals(ctx context.Context, g *governor.Governor, st *store.Store) {
	totals, errSeed := st.SeedDailyTotals(ctx, time.Now())
	if errSeed != nil {
		log.WithError(errSeed).Warn("main: seed daily totals failed")
		return
	}
	for scopeKey, micros := range totals {
		g.SeedDaily(scopeKey, micros)
	}
	if len(totals) > 0 {
		log.Infof("main: seeded daily totals for %d scopes", len(totals))
	}
}
