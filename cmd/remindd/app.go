package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sandeepkv93/remindd/internal/config"
	"github.com/sandeepkv93/remindd/internal/identity"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/notify"
	"github.com/sandeepkv93/remindd/internal/reconcile"
	"github.com/sandeepkv93/remindd/internal/remote"
	"github.com/sandeepkv93/remindd/internal/scheduler"
	"github.com/sandeepkv93/remindd/internal/service"
	"github.com/sandeepkv93/remindd/internal/sharing"
	"github.com/sandeepkv93/remindd/internal/storage"
)

// app holds every wired component. Remote-side fields are nil when the
// process runs offline.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	loc       *time.Location
	local     *storage.SQLiteStore
	session   *identity.Session
	remote    remote.Store
	sharing   *sharing.Manager
	sync      *reconcile.Reconciler
	engine    *scheduler.Engine
	notifier  *notify.Notifier
	dispatch  *notify.EngineDispatcher
	reminders *notify.ChanSink
	service   *service.TaskService
	closers   []func() error
}

type appOptions struct {
	// logTo receives log output; nil means stderr.
	logTo io.Writer
	// reminders additionally feeds fired notifications to an in-process
	// consumer.
	reminders bool
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath, flags.envFile)
	if err != nil {
		return nil, err
	}
	if flags.identity != "" {
		cfg.Identity = flags.identity
	}
	if flags.offline {
		cfg.Offline = true
	}
	return cfg, nil
}

func newApp(flags *rootFlags, opts appOptions) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if opts.logTo == nil {
		opts.logTo = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(opts.logTo, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, loc: loc, session: identity.NewSession(cfg.Identity)}

	a.local, err = storage.OpenSQLite(cfg.LocalPath())
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	a.closers = append(a.closers, a.local.Close)

	if err := a.wireNotifications(opts.reminders); err != nil {
		a.Close()
		return nil, err
	}
	if !cfg.Offline {
		if err := a.wireRemote(); err != nil {
			a.Close()
			return nil, err
		}
	}

	deps := service.Deps{Local: a.local, Identity: a.session, Notifier: a.notifier}
	if a.sharing != nil {
		deps.Sharing = a.sharing
	}
	if a.sync != nil {
		deps.Sync = a.sync
	}
	a.service, err = service.New(deps, logger.With("component", "service"))
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wireNotifications(withChannel bool) error {
	var sink notify.Sink = notify.LogSink{Logger: a.logger.With("component", "reminders")}
	if a.cfg.Notify.Sink == "telegram" {
		tg, err := notify.NewTelegramSink(a.cfg.Notify.TelegramToken, a.cfg.Notify.TelegramChatID, a.loc)
		if err != nil {
			return err
		}
		sink = tg
	}
	if withChannel {
		a.reminders = notify.NewChanSink(16)
		sink = notify.MultiSink{sink, a.reminders}
	}
	a.engine = scheduler.NewEngine(a.cfg.Notify.SchedulerBuffer)
	a.dispatch = notify.NewEngineDispatcher(a.engine, sink, a.logger.With("component", "dispatcher"))
	a.notifier = notify.NewNotifier(a.dispatch, a.logger.With("component", "notifier"))
	return nil
}

func (a *app) wireRemote() error {
	switch a.cfg.Remote.Driver {
	case "memory":
		a.remote = remote.NewMemory()
	default:
		store, err := remote.OpenGorm(a.cfg.Remote.Driver, a.cfg.RemoteDSN(), remote.GormOptions{
			PollInterval: a.cfg.Remote.PollInterval,
			Logger:       a.logger.With("component", "remote"),
		})
		if err != nil {
			return err
		}
		a.remote = store
		a.closers = append(a.closers, store.Close)
	}
	a.sharing = sharing.NewManager(a.remote, a.session, a.logger.With("component", "sharing"))

	rec, err := reconcile.New(reconcile.Deps{
		Local:    a.local,
		Backups:  a.local,
		Remote:   a.remote,
		Sharing:  a.sharing,
		Identity: a.session,
	}, reconcile.Options{
		SuspendTimeout: a.cfg.Sync.SuspendTimeout,
		DebounceWindow: a.cfg.Sync.DebounceWindow,
		EchoTTL:        a.cfg.Sync.EchoTTL,
		Logger:         a.logger.With("component", "sync"),
		OnApplied: func(id string, task *model.Task) {
			// service is assigned after the reconciler is built.
			if a.service != nil {
				a.service.Applied(id, task)
			}
		},
	})
	if err != nil {
		return err
	}
	a.sync = rec
	return nil
}

// requireRemote fails commands that cannot work offline.
func (a *app) requireRemote(op string) error {
	if a.sync == nil {
		return fmt.Errorf("%s: remote store disabled (offline)", op)
	}
	if a.session.Current() == "" {
		return fmt.Errorf("%s: %w", op, reconcile.ErrSignedOut)
	}
	return nil
}

// runBackground starts notification delivery, periodic jobs and, when
// online, sync following the session identity. It returns a stop func.
func (a *app) runBackground(ctx context.Context) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	a.engine.Start()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.dispatch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("dispatcher stopped", "error", err)
		}
	}()

	if _, err := a.service.ReenableExpired(ctx); err != nil {
		a.logger.Warn("re-enable expired tasks", "error", err)
	}
	if err := a.service.RefreshSchedules(ctx); err != nil {
		a.logger.Warn("initial schedule refresh", "error", err)
	}

	jobs := scheduler.NewCron(a.loc, a.logger.With("component", "cron"))
	if _, err := jobs.Every("refresh-schedules", a.cfg.Jobs.RefreshInterval, func(ctx context.Context) error {
		if _, err := a.service.ReenableExpired(ctx); err != nil {
			return err
		}
		return a.service.RefreshSchedules(ctx)
	}); err != nil {
		cancel()
		return nil, err
	}

	syncDone := make(chan struct{})
	if a.sync != nil {
		if _, err := jobs.Daily("nightly-resync", a.cfg.Jobs.ResyncAt, func(ctx context.Context) error {
			_, err := a.sync.ResolveAll(ctx)
			return err
		}); err != nil {
			cancel()
			return nil, err
		}
		go func() {
			defer close(syncDone)
			a.sync.FollowIdentity(ctx)
		}()
	} else {
		close(syncDone)
	}
	jobs.Start()

	return func() {
		jobs.Stop()
		cancel()
		<-syncDone
		a.engine.Stop()
		<-done
	}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close", "error", err)
		}
	}
	a.closers = nil
}

func logFile(dataDir string) (*os.File, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dataDir, "remindd.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
