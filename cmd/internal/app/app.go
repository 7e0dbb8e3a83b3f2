// Package app wires the warden runtime: config, logging, storage backends, the auth
// components, maintenance jobs and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/access"
	"warden/cmd/internal/auth/api"
	"warden/cmd/internal/auth/audit"
	"warden/cmd/internal/auth/autherr"
	"warden/cmd/internal/auth/flow"
	"warden/cmd/internal/auth/presence"
	"warden/cmd/internal/auth/session"
	"warden/cmd/internal/clock"
	"warden/cmd/internal/metrics"
	"warden/cmd/internal/schedule"
	"warden/cmd/security/password"
)

// App is the warden runtime. It owns the HTTP server, the maintenance scheduler and every
// backend connection.
type App struct {
	cfg Config
	log Logger

	dbPool   *pgxpool.Pool
	closers  []io.Closer
	recorder *audit.Recorder

	handler   http.Handler
	scheduler *schedule.Scheduler
	registry  *presence.Registry
}

// New constructs a fully wired App from cfg. Component settings are read from the environment.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}
	ctx := context.Background()
	clk := clock.System{}

	hasher, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	accessCfg, err := access.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	auditCfg, err := audit.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	flowCfg, err := flow.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}
	ok := false
	defer func() {
		if ok {
			return
		}
		if a.recorder != nil {
			cctx, cancel := context.WithTimeout(ctx, time.Second)
			_ = a.recorder.Close(cctx)
			cancel()
		}
		a.closeBackends()
	}()

	if cfg.DatabaseURL != "" {
		pool, err := OpenDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool
		log.Info("db.enabled.postgres_store", "migrated", cfg.MigrateOnStart)
	} else {
		log.Info("db.disabled.inmemory_store")
	}

	dir, err := a.newDirectory()
	if err != nil {
		return nil, err
	}
	if cfg.BootstrapPrincipals != "" {
		n, err := identity.Bootstrap(ctx, dir, pwCfg, cfg.BootstrapPrincipals, clk.Now())
		if err != nil {
			return nil, err
		}
		log.Info("identity.bootstrap", "created", n)
	}
	verifier, err := identity.NewVerifier(dir, pwCfg)
	if err != nil {
		return nil, err
	}

	var refreshStore session.Store = session.NewMemoryStore()
	if a.dbPool != nil {
		refreshStore = session.NewPostgresStore(a.dbPool)
	}
	sessions := session.NewService(sessCfg, refreshStore, hasher, clk)

	codec, err := access.NewCodec(accessCfg)
	if err != nil {
		return nil, err
	}
	if pc, isPaseto := codec.(*access.PasetoCodec); isPaseto {
		log.Info("access.codec.paseto", "public_key_hex", pc.PublicKeyHex())
	}
	blacklist, err := a.newBlacklist(ctx, accessCfg, clk)
	if err != nil {
		return nil, err
	}
	guard := access.NewGuard(accessCfg, codec, blacklist, clk)

	registry := presence.NewRegistry(log, clk)
	a.registry = registry

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		m.ActiveSessions(registry.Count)
	}

	var auditStore audit.Store = audit.NewMemoryStore()
	if a.dbPool != nil {
		auditStore = audit.NewPostgresStore(a.dbPool)
	}
	recOpts := []audit.RecorderOption{audit.WithClock(clk)}
	if len(auditCfg.KafkaBrokers) > 0 {
		sink := audit.NewKafkaSink(auditCfg.KafkaBrokers, auditCfg.KafkaTopic)
		a.closers = append(a.closers, sink)
		recOpts = append(recOpts, audit.WithSinks(sink))
		log.Info("audit.kafka.enabled", "brokers", auditCfg.KafkaBrokers, "topic", auditCfg.KafkaTopic)
	}
	if m != nil {
		recOpts = append(recOpts, audit.WithObserver(m))
	}
	a.recorder = audit.NewRecorder(log, auditStore, auditCfg, recOpts...)

	deps := flow.Deps{
		Log:      log,
		Verifier: verifier,
		Sessions: sessions,
		Guard:    guard,
		Registry: registry,
		Audit:    a.recorder,
		Clock:    clk,
	}
	if m != nil {
		deps.Metrics = m
	}
	flows, err := flow.NewService(flowCfg, deps)
	if err != nil {
		return nil, err
	}

	handler, err := api.NewHandler(api.LoadConfigFromEnv(), api.Deps{
		Log:            log,
		Flows:          flows,
		Registry:       registry,
		Audit:          a.recorder,
		SessionTimeout: cfg.SessionTimeout,
		Clock:          clk,
	})
	if err != nil {
		return nil, err
	}
	a.handler = newRouter(log, cfg, a.dbPool, handler, m)

	var schedOpts []schedule.Option
	if m != nil {
		schedOpts = append(schedOpts, schedule.WithObserver(m.JobRun))
	}
	a.scheduler = schedule.New(log, schedOpts...)
	if err := a.addJobs(sessions, guard, sessCfg.Retention, auditCfg.RetentionDays); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

// principalStore is a directory that Bootstrap can seed.
type principalStore interface {
	identity.Directory
	identity.Creator
}

func (a *App) newDirectory() (principalStore, error) {
	if a.dbPool == nil {
		return identity.NewMemoryDirectory(), nil
	}
	dir, err := identity.NewPostgresDirectory(a.dbPool)
	if err != nil {
		return nil, err
	}
	return dir, nil
}

func (a *App) newBlacklist(ctx context.Context, cfg access.Config, clk clock.Clock) (access.Blacklist, error) {
	switch cfg.BlacklistBackend {
	case access.BackendPostgres:
		if a.dbPool == nil {
			return nil, autherr.Config("app.newBlacklist", access.EnvBlacklistBackend)
		}
		return access.NewPostgresBlacklist(a.dbPool), nil
	case access.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, client)
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pctx).Err(); err != nil {
			return nil, fmt.Errorf("app: connect redis %s: %w", cfg.RedisAddr, err)
		}
		a.log.Info("access.blacklist.redis", "addr", cfg.RedisAddr)
		return access.NewRedisBlacklist(client, clk), nil
	default:
		return access.NewMemoryBlacklist(), nil
	}
}

// Job names, also used as metric labels.
const (
	JobPresenceSweep  = "presence.sweep"
	JobRefreshSweep   = "session.sweep_expired"
	JobBlacklistPurge = "access.purge_blacklist"
	JobAuditRetention = "audit.cleanup"
)

func (a *App) addJobs(sessions *session.Service, guard *access.Guard, retention time.Duration, auditDays int) error {
	jobs := []schedule.Job{
		{Name: JobPresenceSweep, Interval: a.cfg.SessionSweepInterval, Fn: func(context.Context) error {
			if n := a.registry.Sweep(a.cfg.SessionTimeout); n > 0 {
				a.log.Info("presence.sweep", "removed", n, "remaining", a.registry.Count())
			}
			return nil
		}},
		{Name: JobRefreshSweep, Interval: a.cfg.RefreshSweepInterval, Fn: func(ctx context.Context) error {
			_, err := sessions.SweepExpired(ctx, retention)
			return err
		}},
		{Name: JobBlacklistPurge, Interval: a.cfg.BlacklistPurgeInterval, Fn: func(ctx context.Context) error {
			_, err := guard.Purge(ctx)
			return err
		}},
		{Name: JobAuditRetention, Interval: a.cfg.AuditCleanupInterval, Fn: func(ctx context.Context) error {
			_, err := a.recorder.Cleanup(ctx, auditDays)
			return err
		}},
	}
	for _, j := range jobs {
		if err := a.scheduler.Add(j); err != nil {
			return err
		}
	}
	return nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP and runs maintenance jobs until ctx is cancelled or the server fails, then
// drains the audit queue and releases backends.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbPool != nil, "jobs", a.scheduler.Jobs())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})
	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()
	if err := a.recorder.Close(closeCtx); err != nil {
		a.log.Error("audit.close.fail", "err", err)
	}
	a.closeBackends()

	a.log.Info("server.stopped")
	return runErr
}

func (a *App) closeBackends() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Error("backend.close.fail", "err", err)
		}
	}
	a.closers = nil
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
