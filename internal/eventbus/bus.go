// Package eventbus is an in-memory fanout of reminder lifecycle signals.
// The reminder engine publishes; the app logs and counts.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// TypeReminderDispatched carries a Dispatch after a successful send.
	TypeReminderDispatched = "reminder.dispatched"
	// TypeReminderSendFailed carries a Dispatch whose send failed. The slot
	// stays recorded and is not retried.
	TypeReminderSendFailed = "reminder.send_failed"
	// TypeReminderTick carries a TickSummary at the end of every tick.
	TypeReminderTick = "reminder.tick"
	// TypeUserRegistered carries the Telegram id (int64) of a new or renamed user.
	TypeUserRegistered = "user.registered"
)

// Event is a small in-memory signal. Publish never blocks; a slow subscriber
// drops events once its buffer is full.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Dispatch struct {
	TelegramID  int64
	ProcessID   int64
	ProcessName string
	DeadlineKey string
	Offset      int
	Err         string
}

type TickSummary struct {
	Users      int
	Processes  int
	Dispatched int
	Failed     int
	Took       time.Duration
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	Dropped() uint64
}

// New returns an in-memory bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Hold the read lock across sends so unsubscribe cannot close a channel
	// mid-send; sends never block.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Dropped counts deliveries skipped because a subscriber buffer was full.
func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
