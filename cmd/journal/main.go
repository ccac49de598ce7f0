package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"journal/internal/adapter/filestore"
	adapthttp "journal/internal/adapter/http"
	"journal/internal/adapter/memory"
	"journal/internal/adapter/postgres"
	redisadapter "journal/internal/adapter/redis"
	"journal/internal/app"
	"journal/internal/config"
	"journal/internal/domain"
	"journal/internal/monitoring"
)

// sessionSweepInterval is how often expired persisted sessions are pruned.
const sessionSweepInterval = time.Hour

type store interface {
	domain.UserRepository
	domain.PostRepository
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	cfg, err := config.Load()
	if err != nil {
		klog.Exitf("failed to load config: %v", err)
	}

	db, sessions, closeFn, err := openStore(cfg.Storage)
	if err != nil {
		klog.Exitf("failed to open store: %v", err)
	}
	defer closeFn()

	media, err := filestore.New(cfg.Uploads.Dir)
	if err != nil {
		klog.Exitf("failed to init upload dir: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.New(reg)

	authSvc := app.NewAuthService(db, sessions,
		app.WithSessionTTL(cfg.Auth.SessionTTL),
		app.WithBcryptCost(cfg.Auth.BcryptCost),
	)
	seedAuthor(authSvc, cfg.Auth)

	ledger := app.NewQuotaLedger(nil)
	guard := app.NewAccessGuard(ledger, authSvc, app.GuardConfig{
		Login:  cfg.Quota.Login,
		Upload: cfg.Quota.Upload,
	}, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	oidcCfg, err := adapthttp.NewOIDCConfig(ctx, cfg.OIDC.Issuer, cfg.OIDC.ClientID, cfg.OIDC.ClientSecret, cfg.OIDC.RedirectURL)
	if err != nil {
		klog.Exitf("failed to init sso: %v", err)
	}

	h := adapthttp.New(authSvc, guard, app.NewPostService(db, nil), app.NewUploadService(media, cfg.Uploads.MaxBytes), media.Dir()).
		WithLogger(klog.Background().WithName("http")).
		WithOIDC(oidcCfg).
		WithMetrics(reg).
		WithSecureCookies(cfg.Server.Production).
		Handler()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.NewSweeper("quota", cfg.Quota.SweepInterval, nil, app.LedgerSweep(ledger), metrics).Run(gctx)
	})
	g.Go(func() error {
		return app.NewSweeper("sessions", sessionSweepInterval, nil, authSvc.PruneSessions, metrics).Run(gctx)
	})
	g.Go(func() error {
		klog.InfoS("listening", "addr", cfg.Server.Addr, "sso", oidcCfg.Enabled, "production", cfg.Server.Production)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		klog.InfoS("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		klog.ErrorS(err, "server exited")
		klog.Flush()
		os.Exit(1)
	}
}

// openStore picks PostgreSQL when a DSN is configured and the in-memory store
// otherwise. Sessions move to Redis when REDIS_URL is set.
func openStore(cfg config.StorageConfig) (store, domain.SessionRepository, func(), error) {
	var (
		db       store
		sessions domain.SessionRepository
		closers  []func() error
	)

	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		db, sessions = pg, postgres.NewSessionRepo(pg)
		closers = append(closers, pg.Close)
	} else {
		klog.Warning("DATABASE_URL not set; using in-memory store")
		mem := memory.New(nil)
		db, sessions = mem, mem.NewSessionRepo()
	}

	if cfg.RedisURL != "" {
		client, err := redisadapter.Dial(cfg.RedisURL)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, nil, nil, err
		}
		sessions = redisadapter.NewSessionRepo(client, nil)
		closers = append(closers, client.Close)
	}

	return db, sessions, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				klog.ErrorS(err, "close store")
			}
		}
	}, nil
}

func seedAuthor(auth *app.AuthService, cfg config.AuthConfig) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := auth.CreateInitialUser(ctx, cfg.AdminEmail, cfg.AdminPassword)
	switch {
	case errors.Is(err, app.ErrUsersExist):
		klog.V(1).InfoS("author already exists; skipping seed")
	case err != nil:
		klog.Exitf("failed to seed author: %v", err)
	default:
		klog.InfoS("author created", "email", cfg.AdminEmail)
	}
}
