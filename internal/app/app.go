// Package app is the composition root: it builds every service from config,
// wires them over the event bus, and owns startup/shutdown ordering.
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"nyordd/internal/agent"
	"nyordd/internal/alert"
	"nyordd/internal/config"
	"nyordd/internal/eventbus"
	"nyordd/internal/feed"
	"nyordd/internal/observability/pprof"
	"nyordd/internal/popup"
	"nyordd/internal/push"
	"nyordd/internal/router"
	rtsup "nyordd/internal/runtime/supervisor"
	"nyordd/internal/storage"
	"nyordd/internal/store"
	logx "nyordd/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	db   storage.Store

	store     *store.Service
	alerts    *alert.Service
	popups    *popup.Presenter
	router    *router.Router
	agentc    *agent.Client
	registrar agent.Registrar
	push      *push.Manager
	feed      *feed.Service
	pprof     *pprof.Service

	cron *cron.Cron

	mu     sync.Mutex
	limits store.Limits
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage (optional).
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	db, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	if db != nil {
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	// Past this point construction failures must release what is open.
	fail := func(err error) (*App, error) {
		if db != nil {
			_ = db.Close()
		}
		_ = logSvc.Close()
		return nil, err
	}

	// Store first: everything downstream reads through it, and its toast
	// queue becomes the logging toast sink.
	storeSvc := store.New(db, bus, log.With(logx.String("comp", "store")))
	logSvc.SetToastSink(storeSvc.Toasts())

	alertCfg, err := mapAlertConfig(cfg)
	if err != nil {
		return fail(err)
	}
	alertSvc := alert.New(alertCfg, alert.NewPlatform(), log.With(logx.String("comp", "alert")))

	// Read receipts fan out: local flip first, then the server copy.
	token := cfg.Server.BearerToken
	feedClient := feed.NewClient(cfg.Server.BaseURL, token)
	feedOpts, err := mapFeedOptions(cfg)
	if err != nil {
		return fail(err)
	}
	feedSvc := feed.New(feedOpts, feedClient, storeSvc, bus, token, log.With(logx.String("comp", "feed")))

	popupCfg, err := mapPopupConfig(cfg)
	if err != nil {
		return fail(err)
	}
	receipts := &readReceipts{store: storeSvc, feed: feedSvc, log: log}
	popupSvc := popup.New(popupCfg, receipts, log.With(logx.String("comp", "popup")))

	routerSvc := router.New(storeSvc, alertSvc, popupSvc, db, bus, log.With(logx.String("comp", "router")))

	// Agent socket + registrar. Registration strictly precedes push work;
	// the push manager enforces that ordering.
	agentClient := agent.NewClient(cfg.Agent.Socket, bus, log.With(logx.String("comp", "agent")))
	unit := strings.TrimSpace(cfg.Agent.Unit)
	if unit == "" {
		unit = "nyord-agent.service"
	}
	registrar := agent.NewRegistrar(unit, confirmAgentUpdate(log), agentClient,
		log.With(logx.String("comp", "registrar")))

	pushCfg, err := mapPushConfig(cfg)
	if err != nil {
		return fail(err)
	}
	pushServer := push.NewServerClient(cfg.Server.BaseURL, token)
	pushSvc := push.NewManager(pushCfg, registrar, agentClient, pushServer, bus,
		log.With(logx.String("comp", "push")))

	limits, err := mapHistoryLimits(cfg)
	if err != nil {
		return fail(err)
	}

	pprofSvc := pprof.New(mapPprofConfig(cfg), log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		db:        db,
		store:     storeSvc,
		alerts:    alertSvc,
		popups:    popupSvc,
		router:    routerSvc,
		agentc:    agentClient,
		registrar: registrar,
		push:      pushSvc,
		feed:      feedSvc,
		pprof:     pprofSvc,
		limits:    limits,
	}, nil
}

// confirmAgentUpdate is the default update gate: updates are applied, but
// loudly, never silently.
func confirmAgentUpdate(log logx.Logger) agent.Confirmer {
	return func(ctx context.Context) bool {
		log.Info("agent unit changed on disk; applying update with handover")
		return true
	}
}

// Alerts exposes the alert channel (consent requests come through here).
func (a *App) Alerts() *alert.Service { return a.alerts }

// Push exposes the push subscription manager.
func (a *App) Push() *push.Manager { return a.push }

// Store exposes the notification store.
func (a *App) Store() *store.Service { return a.store }

// Popups exposes the in-app popup presenter.
func (a *App) Popups() *popup.Presenter { return a.popups }

// ClearHistory wipes records and the routing memory together.
func (a *App) ClearHistory(ctx context.Context) error {
	return a.router.ClearHistory(ctx)
}

// MarkAllRead flips every record locally and syncs the server.
func (a *App) MarkAllRead(ctx context.Context) error {
	if a.store.MarkAllRead(ctx) == 0 {
		return nil
	}
	return a.feed.MarkAllRead(ctx)
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Transactional config reload: validate before commit/publish.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	// Routing loop: one pass per store update.
	a.sup.Go("router.run", func(c context.Context) error {
		err := a.router.Run(c)
		if c.Err() != nil {
			return nil
		}
		return err
	})

	// Agent socket, self-healing.
	a.sup.GoRestart("agent.socket", func(c context.Context) error {
		err := a.agentc.Run(c)
		if c.Err() != nil {
			return nil
		}
		return err
	}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))

	// Push bootstrap is one-shot: registrar first, then subscription probe.
	a.sup.Go0("push.init", func(c context.Context) {
		ok, err := a.push.Initialize(c)
		if err != nil {
			a.log.Warn("push initialize failed", logx.Err(err))
			return
		}
		if !ok {
			return
		}
		if !a.push.IsSubscribed() {
			if err := a.push.Subscribe(c); err != nil {
				a.log.Warn("push subscribe failed", logx.Err(err))
			}
		}
	})

	// Remote feed (stream with polling fallback), self-healing.
	cfg := a.cfgm.Get()
	if cfg.Feed.Enabled {
		a.sup.GoRestart("feed.run", func(c context.Context) error {
			err := a.feed.Run(c)
			if c.Err() != nil {
				return nil
			}
			return err
		}, rtsup.WithRestartBackoff(2*time.Second, time.Minute))
	}

	// Periodic refresh and history eviction share one cron.
	rspec, err := refreshSpec(cfg)
	if err != nil {
		return err
	}
	espec, err := evictSpec(cfg)
	if err != nil {
		return err
	}
	a.cron = cron.New()
	if cfg.Feed.Enabled {
		if _, err := a.cron.AddFunc(rspec, func() {
			c, cancel := context.WithTimeout(a.sup.Context(), 30*time.Second)
			defer cancel()
			if err := a.feed.Refresh(c); err != nil {
				a.log.Warn("scheduled refresh failed", logx.Err(err))
			}
		}); err != nil {
			return err
		}
	}
	if _, err := a.cron.AddFunc(espec, func() {
		c, cancel := context.WithTimeout(a.sup.Context(), 30*time.Second)
		defer cancel()
		a.mu.Lock()
		lim := a.limits
		a.mu.Unlock()
		a.store.Evict(c, lim)
	}); err != nil {
		return err
	}
	a.cron.Start()

	if a.pprof.Enabled() {
		a.pprof.Start(a.sup.Context())
	}

	// Bus tap for observability.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// Config hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		err := a.cfgm.Watch(c)
		if c.Err() != nil {
			return nil
		}
		return err
	})

	a.log.Info("nyordd started")
	return nil
}

// reloadLoop applies committed config updates. Sections that cannot be
// re-wired live (server endpoints, storage, agent socket) are logged as
// restart-required instead of being half-applied.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.applyReload(ctx, last, newCfg)
			last = newCfg
		}
	}
}

func (a *App) applyReload(ctx context.Context, old, cfg *config.Config) {
	a.logs.Apply(mapLoggingConfig(cfg))

	if lim, err := mapHistoryLimits(cfg); err == nil {
		a.mu.Lock()
		a.limits = lim
		a.mu.Unlock()
	}

	a.pprof.Reconfigure(ctx, mapPprofConfig(cfg))

	if old.Server != cfg.Server || old.Storage != cfg.Storage ||
		old.Agent != cfg.Agent || old.Feed != cfg.Feed {
		a.log.Warn("server/storage/agent/feed config changed; restart required to take effect")
	}

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	if a.cron != nil {
		stopCtx := a.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	var err error
	if a.sup != nil {
		a.sup.Cancel()
		err = a.sup.Wait(ctx)
	}
	a.popups.Close()
	a.store.Close()
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.logs.Close()
	return err
}

// readReceipts flips the local flag first, then mirrors the receipt to the
// server. The local flag is authoritative and never reverts; a failed server
// call only leaves the server-side copy behind.
type readReceipts struct {
	store *store.Service
	feed  *feed.Service
	log   logx.Logger
}

func (r *readReceipts) MarkRead(ctx context.Context, id string) bool {
	changed := r.store.MarkRead(ctx, id)
	if changed {
		if err := r.feed.MarkRead(ctx, id); err != nil {
			r.log.Warn("read receipt sync failed", logx.String("id", id), logx.Err(err))
		}
	}
	return changed
}
