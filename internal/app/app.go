package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"procbot/internal/chat"
	"procbot/internal/config"
	"procbot/internal/eventbus"
	"procbot/internal/messenger"
	"procbot/internal/reminder"
	"procbot/internal/runtime/supervisor"
	"procbot/internal/storage"
	"procbot/internal/transport"
	telegram "procbot/internal/transport/telegram/adapter"
	logx "procbot/pkg/logx"
	"procbot/pkg/systemd"
)

// App wires the long-running bot: the chat dispatch loop and the reminder
// scheduler, sharing one store and one outbound messenger.
type App struct {
	cfgm     *config.ConfigManager
	settings *config.Settings
	sup      *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	msgr    *messenger.Messenger
	engine  *reminder.Engine
	sched   *reminder.Scheduler
	chat    *chat.Handler

	updates chan transport.Update
}

func NewApp(ctx context.Context, opts Options) (*App, error) {
	cfgm, settings, err := Bootstrap(opts)
	if err != nil {
		return nil, err
	}
	if err := settings.RequireToken(); err != nil {
		return nil, err
	}
	cfg := cfgm.Get()

	// Telegram logging needs the adapter, which needs a logger: start with
	// the Telegram sink off, attach the adapter, then apply the final config.
	logCfg := cfg.Logging.LogxConfig()
	tgLogging := logCfg.Telegram.Enabled
	logCfg.Telegram.Enabled = false
	logSvc, root := logx.New(logCfg, nil)
	log := root.With(logx.String("comp", "app"))

	ad, err := telegram.New(telegram.Config{
		Token:          settings.Token,
		PollTimeout:    settings.PollTimeout,
		RequestTimeout: settings.SendTimeout,
	}, root.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	logSvc.SetSender(ad)
	if settings.GroupLog != 0 {
		logSvc.SetTelegramTarget(settings.GroupLog, cfg.Logging.Telegram.ThreadID)
	}
	logCfg.Telegram.Enabled = tgLogging
	logSvc.Apply(logCfg)

	store, err := storage.Open(storageConfig(settings), root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", settings.StorageDriver), logx.String("path", settings.StoragePath))

	if err := seedCatalog(ctx, settings, store, log); err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	msgr := messenger.New(messenger.Config{
		Timeout:    settings.SendTimeout,
		RatePerSec: settings.RatePerSec,
	}, ad, root.With(logx.String("comp", "messenger")))

	eng := reminder.NewEngine(reminder.Config{
		Offsets:  settings.Offsets,
		Location: settings.Location,
	}, store, msgr, bus, root.With(logx.String("comp", "reminder")))

	sched := reminder.NewScheduler(reminder.SchedulerConfig{
		Interval:    settings.Interval,
		TickTimeout: settings.TickTimeout,
		Location:    settings.Location,
		RunOnStart:  true,
	}, eng, root.With(logx.String("comp", "scheduler")))

	h := chat.New(chat.Config{
		Offsets:  settings.Offsets,
		Location: settings.Location,
	}, store, msgr, bus, root.With(logx.String("comp", "chat")))

	return &App{
		cfgm:     cfgm,
		settings: settings,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		msgr:     msgr,
		engine:   eng,
		sched:    sched,
		chat:     h,
		updates:  make(chan transport.Update),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
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
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("chat.dispatch", func(c context.Context) error {
		return a.chat.Run(c, a.updates)
	})

	a.sup.Go0("telegram.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		if err := a.adapter.UpdateMenuCommands(mctx, chat.Commands()); err != nil {
			a.log.Warn("set bot commands failed", logx.Err(err))
		}
	})

	a.sched.Start(a.sup.Context())

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
				a.logEvent(e)
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	if a.cfgm.Path() != "" {
		// Watch only returns early when the config directory is gone.
		a.sup.GoRestart("config.watch", a.cfgm.Watch,
			supervisor.WithRestartBackoff(time.Second, 30*time.Second),
			supervisor.WithMaxRestarts(5),
		)
	}

	if ok, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}
	a.sup.Go0("systemd.watchdog", systemd.RunWatchdog)

	a.log.Info("app started",
		logx.Duration("interval", a.settings.Interval),
		logx.Any("offsets", a.settings.Offsets),
		logx.String("timezone", a.settings.Location.String()),
	)
	return nil
}

func (a *App) logEvent(e eventbus.Event) {
	switch d := e.Data.(type) {
	case eventbus.TickSummary:
		if d.Dispatched > 0 || d.Failed > 0 {
			a.log.Info("reminder tick",
				logx.Int("dispatched", d.Dispatched),
				logx.Int("failed", d.Failed),
				logx.Duration("took", d.Took),
			)
			return
		}
	case eventbus.Dispatch:
		if d.Err != "" {
			a.log.Debug("event", logx.String("type", e.Type), logx.Int64("telegram_id", d.TelegramID),
				logx.String("process", d.ProcessName), logx.String("err", d.Err))
			return
		}
	}
	a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
}

// applyConfig applies the logging section of a reloaded config. Every other
// changed section only takes effect after a restart.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.Strings("sections", restart))
	}

	// update log target first so Apply doesn't warn when Telegram logging is enabled
	if s, err := config.Resolve(next); err == nil {
		a.logs.SetTelegramTarget(s.GroupLog, next.Logging.Telegram.ThreadID)
	}
	a.logs.Apply(next.Logging.LogxConfig())

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Debug("systemd notify failed", logx.Err(err))
	}

	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		if err := a.runStep(ctx, name, max, fn); err != nil {
			errs = append(errs, err)
		}
	}

	step("scheduler", 3*time.Second, a.sched.Stop)
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("supervisor", 3*time.Second, a.sup.Wait)
	// storage closes last: the dispatcher and a running tick may still use it
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	st := a.msgr.Stats()
	sc := a.sup.Counters()
	last := a.sched.Last()
	a.log.Info("stopped",
		logx.Uint64("sent", st.Sent),
		logx.Uint64("send_failed", st.Failed),
		logx.Uint64("goroutines_started", sc.Started),
		logx.Uint64("goroutine_restarts", sc.Restarts),
		logx.Uint64("events_dropped", a.bus.Dropped()),
		logx.Time("last_tick", last.At),
		logx.Int("last_tick_dispatched", last.Dispatched),
	)
	_ = a.logs.Close()
	return errors.Join(errs...)
}

// runStep runs one shutdown step with an upper bound so a stuck component
// can't stall the whole stop. The caller's deadline is never extended.
func (a *App) runStep(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped; deadline reached", logx.String("name", name))
		return fmt.Errorf("stop %s: %w", name, context.DeadlineExceeded)
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		took := time.Since(start)
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			return fmt.Errorf("stop %s: %w", name, err)
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		return nil
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
		return fmt.Errorf("stop %s: %w", name, stepCtx.Err())
	}
}
