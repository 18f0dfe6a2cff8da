// Package reminder decides which reminders are due and sends each one at
// most once per user, process, calendar date and slot.
package reminder

import (
	"context"
	"fmt"
	"time"

	"procbot/internal/clock"
	"procbot/internal/eventbus"
	"procbot/internal/messenger"
	"procbot/internal/storage"
	logx "procbot/pkg/logx"
)

// Sender is the outbound capability the engine needs.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) messenger.Result
}

type Config struct {
	// Offsets are lead times in minutes; slot i+1 fires Offsets[i] minutes
	// before the deadline.
	Offsets  []int
	Location *time.Location
}

// TickReport summarizes one pass. Tick never fails; problems are counted here
// and logged.
type TickReport struct {
	At           time.Time
	Users        int
	Processes    int
	Due          int
	Dispatched   int
	Duplicates   int
	SendFailures int
	Errors       int
	// Aborted is set when a store read stopped the pass early.
	Aborted bool
	Took    time.Duration
}

type Engine struct {
	store   storage.Store
	sender  Sender
	bus     eventbus.Bus
	log     logx.Logger
	offsets []int
	loc     *time.Location
}

func NewEngine(cfg Config, store storage.Store, sender Sender, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	offsets := append([]int(nil), cfg.Offsets...)
	if len(offsets) == 0 {
		offsets = []int{120, 60}
	}
	return &Engine{
		store:   store,
		sender:  sender,
		bus:     bus,
		log:     log,
		offsets: offsets,
		loc:     cfg.Location,
	}
}

// Tick evaluates every (user, owned process) pair for the calendar date of
// now in the engine's location.
func (e *Engine) Tick(ctx context.Context, now time.Time) TickReport {
	start := time.Now()
	now = now.In(e.loc)
	rep := TickReport{At: now}
	defer func() {
		rep.Took = time.Since(start)
		e.publish(eventbus.TypeReminderTick, eventbus.TickSummary{
			Users:      rep.Users,
			Processes:  rep.Processes,
			Dispatched: rep.Dispatched,
			Failed:     rep.SendFailures,
			Took:       rep.Took,
		})
	}()

	users, err := e.store.AllUsers(ctx)
	if err != nil {
		rep.Errors++
		rep.Aborted = true
		e.log.Error("list users failed; tick aborted", logx.Err(err))
		return rep
	}
	rep.Users = len(users)
	date := clock.DateKey(now)

	for _, u := range users {
		if ctx.Err() != nil {
			rep.Aborted = true
			e.log.Warn("tick interrupted", logx.Err(ctx.Err()))
			return rep
		}
		procs, err := e.store.ProcessesForOwner(ctx, u.Name)
		if err != nil {
			rep.Errors++
			rep.Aborted = true
			e.log.Error("load processes failed; tick aborted", logx.Int64("user_id", u.ID), logx.Err(err))
			return rep
		}
		rep.Processes += len(procs)
		for _, p := range procs {
			e.processSlots(ctx, now, date, u, p, &rep)
		}
	}
	return rep
}

func (e *Engine) processSlots(ctx context.Context, now time.Time, date string, u storage.User, p storage.Process, rep *TickReport) {
	deadline := clock.DeadlineInstant(now, p.Deadline)
	if !now.Before(deadline) {
		return
	}
	for i, off := range e.offsets {
		slot := i + 1
		if now.Before(deadline.Add(-time.Duration(off) * time.Minute)) {
			continue
		}
		rep.Due++
		key := storage.DispatchKey{UserID: u.ID, ProcessID: p.ID, Date: date, Slot: slot}
		created, err := e.store.TryRecordDispatch(ctx, key, now)
		if err != nil {
			rep.Errors++
			e.log.Error("record dispatch failed",
				logx.Int64("user_id", u.ID), logx.Int64("process_id", p.ID), logx.Int("slot", slot), logx.Err(err))
			continue
		}
		if !created {
			rep.Duplicates++
			continue
		}

		text := ReminderText(p, deadline.Sub(now))
		res := e.sender.Send(ctx, u.TelegramID, text)
		ev := eventbus.Dispatch{
			TelegramID:  u.TelegramID,
			ProcessID:   p.ID,
			ProcessName: p.Name,
			DeadlineKey: date,
			Offset:      off,
		}
		if !res.OK {
			rep.SendFailures++
			if res.Err != nil {
				ev.Err = res.Err.Error()
			}
			e.publish(eventbus.TypeReminderSendFailed, ev)
			continue
		}
		rep.Dispatched++
		e.log.Info("reminder sent",
			logx.Int64("telegram_id", u.TelegramID), logx.String("process", p.Name),
			logx.Int("slot", slot), logx.Int("offset_min", off))
		e.publish(eventbus.TypeReminderDispatched, ev)
	}
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// ReminderText is the reminder message for p with remaining time until its
// deadline.
func ReminderText(p storage.Process, remaining time.Duration) string {
	head := fmt.Sprintf("deadline %s", p.Deadline)
	if p.Periodicity != "" {
		head += ", " + p.Periodicity
	}
	return fmt.Sprintf("Reminder: %s (%s). Deadline %s.", p.Name, head, clock.HumanizeDelta(remaining))
}
