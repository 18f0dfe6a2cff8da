package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "procbot/pkg/logx"
)

type SchedulerConfig struct {
	Interval    time.Duration
	TickTimeout time.Duration
	Location    *time.Location
	// RunOnStart fires one tick right after Start instead of waiting a full
	// interval.
	RunOnStart bool
}

// Scheduler triggers Engine.Tick on a fixed interval. A tick that overruns
// the interval makes the next trigger skip; panics are recovered and the
// schedule keeps firing.
type Scheduler struct {
	engine *Engine
	cfg    SchedulerConfig
	log    logx.Logger
	now    func() time.Time

	mu     sync.Mutex
	c      *cron.Cron
	job    cron.Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	last   TickReport
}

func NewScheduler(cfg SchedulerConfig, engine *Engine, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 50 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Scheduler{engine: engine, cfg: cfg, log: log, now: time.Now}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	cl := cronLogger{log: s.log}
	s.c = cron.New(cron.WithLocation(s.cfg.Location), cron.WithLogger(cl))
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(s.tick))
	s.c.Schedule(cron.Every(s.cfg.Interval), s.job)
	s.c.Start()
	if s.cfg.RunOnStart {
		job := s.job
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			job.Run()
		}()
	}
	s.log.Info("reminder scheduler started",
		logx.Duration("interval", s.cfg.Interval), logx.String("tz", s.cfg.Location.String()))
}

// Stop halts triggering and waits for an in-flight tick until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("reminder scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow runs one tick synchronously, outside the cron schedule.
func (s *Scheduler) RunNow(ctx context.Context) TickReport {
	tctx, cancel := context.WithTimeout(ctx, s.cfg.TickTimeout)
	defer cancel()
	rep := s.engine.Tick(tctx, s.now())
	s.record(rep)
	return rep
}

// Last returns the report of the most recent tick.
func (s *Scheduler) Last() TickReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	if base == nil || base.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(base, s.cfg.TickTimeout)
	defer cancel()
	rep := s.engine.Tick(ctx, s.now())
	s.record(rep)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.log.Warn("reminder tick hit timeout", logx.Duration("timeout", s.cfg.TickTimeout))
	}
}

func (s *Scheduler) record(rep TickReport) {
	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()

	lvl := s.log.Debug
	if rep.Dispatched > 0 || rep.SendFailures > 0 || rep.Errors > 0 {
		lvl = s.log.Info
	}
	lvl("reminder tick",
		logx.Int("users", rep.Users),
		logx.Int("processes", rep.Processes),
		logx.Int("due", rep.Due),
		logx.Int("dispatched", rep.Dispatched),
		logx.Int("duplicates", rep.Duplicates),
		logx.Int("send_failures", rep.SendFailures),
		logx.Int("errors", rep.Errors),
		logx.Bool("aborted", rep.Aborted),
		logx.Duration("took", rep.Took),
	)
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
