package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"biogate/internal/gateway"
	"biogate/internal/gateway/handler"
	httpapi "biogate/internal/http"
	"biogate/internal/ledger"
	"biogate/internal/platform/config"
	"biogate/internal/platform/httpserver"
	"biogate/internal/platform/logger"
	"biogate/internal/platform/metrics"
	platformredis "biogate/internal/platform/redis"
	"biogate/internal/possession"
	"biogate/internal/profile"
	"biogate/internal/token"
	"biogate/internal/vault"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps
// the server lifecycle small. Business logic lives in the internal
// services packages.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	vaultKey := cfg.VaultKey
	if len(vaultKey) == 0 {
		vaultKey = make([]byte, vault.KeySize)
		if _, err := rand.Read(vaultKey); err != nil {
			log.Fatalf("generate vault key: %v", err)
		}
		log.Printf("WARNING: BIOGATE_VAULT_KEY not set: using an ephemeral key, stored blobs will not survive a restart")
	}
	v, err := vault.New(vaultKey)
	if err != nil {
		log.Fatalf("vault: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]httpapi.HealthCheck{}

	var ledgerStore ledger.Store
	switch cfg.LedgerBackend {
	case "postgres":
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		defer db.Close()
		store := ledger.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatalf("ledger schema: %v", err)
		}
		checks["postgres"] = db.PingContext
		ledgerStore = store
	default:
		ledgerStore = ledger.NewInMemoryStore()
	}

	var sessionStore possession.Store
	switch cfg.SessionBackend {
	case "redis":
		client, err := platformredis.New(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		checks["redis"] = client.Health
		sessionStore = possession.NewRedisStore(client.Client)
	default:
		sessionStore = possession.NewInMemoryStore()
	}

	m := metrics.New()
	svc := gateway.NewService(
		profile.NewInMemoryStore(),
		ledger.NewService(ledgerStore, ledger.WithLogger(slogger)),
		v,
		possession.NewVerifier(sessionStore, possession.WithLogger(slogger)),
		token.NewService(cfg.JWTSigningKey, "biogate", "biogate-clients"),
		gateway.WithLogger(slogger),
		gateway.WithMetrics(m),
		gateway.WithSessionTTL(cfg.SessionTTL),
		gateway.WithTokenTTL(cfg.TokenTTL),
	)

	router := httpapi.NewRouter(handler.New(svc, slogger), checks)
	srv := httpserver.New(cfg.Addr, router)

	log.Printf("starting biogate on %s (ledger=%s sessions=%s)",
		cfg.Addr, cfg.LedgerBackend, cfg.SessionBackend)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		err := svc.RunSessionSweeper(ctx, cfg.SweepInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("biogate stopped")
}
