// Package messenger is the best-effort outbound send used by reminders and
// chat replies. A send makes one attempt under a bounded timeout and a shared
// token bucket, and reports its outcome as a value.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"procbot/internal/transport"
	logx "procbot/pkg/logx"
)

type Config struct {
	Timeout    time.Duration
	RatePerSec int
}

type Result struct {
	OK   bool
	Err  error
	Took time.Duration
}

// Stats are cumulative counters since construction.
type Stats struct {
	Sent   uint64
	Failed uint64
}

type Messenger struct {
	adapter transport.Adapter
	log     logx.Logger
	timeout time.Duration
	limiter *rate.Limiter

	sent   atomic.Uint64
	failed atomic.Uint64
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Messenger {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	return &Messenger{
		adapter: adapter,
		log:     log,
		timeout: cfg.Timeout,
		// burst = rate so a tick with several due reminders is not throttled
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Send delivers text to chatID. It never panics; failures are logged at
// WARN and returned in Result.
func (m *Messenger) Send(ctx context.Context, chatID int64, text string) (res Result) {
	return m.SendTo(ctx, transport.ChatTarget{ChatID: chatID}, text)
}

// SendTo is Send with a thread-aware target.
func (m *Messenger) SendTo(ctx context.Context, to transport.ChatTarget, text string) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("send panicked: %v", r)}
		}
		res.Took = time.Since(start)
		if res.OK {
			m.sent.Add(1)
			return
		}
		m.failed.Add(1)
		m.log.Warn("send failed",
			logx.Int64("chat_id", to.ChatID),
			logx.Duration("took", res.Took),
			logx.Err(res.Err),
		)
	}()

	if m.adapter == nil {
		return Result{Err: errors.New("no transport")}
	}
	sctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.limiter.Wait(sctx); err != nil {
		return Result{Err: fmt.Errorf("rate limit: %w", err)}
	}
	if _, err := m.adapter.SendText(sctx, to, text, &transport.SendOptions{DisablePreview: true}); err != nil {
		return Result{Err: err}
	}
	return Result{OK: true}
}

func (m *Messenger) Stats() Stats {
	return Stats{Sent: m.sent.Load(), Failed: m.failed.Load()}
}
