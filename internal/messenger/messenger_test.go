package messenger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procbot/internal/transport"
	logx "procbot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []string
	err   error
	block bool
	panic bool
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if f.panic {
		panic("adapter exploded")
	}
	if f.block {
		<-ctx.Done()
		return transport.MessageRef{}, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return transport.MessageRef{}, f.err
	}
	f.sent = append(f.sent, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func TestSendOK(t *testing.T) {
	fa := &fakeAdapter{}
	m := New(Config{}, fa, logx.Nop())
	res := m.Send(context.Background(), 10, "hi")
	assert.True(t, res.OK)
	assert.NoError(t, res.Err)
	assert.Equal(t, []string{"hi"}, fa.sent)
	assert.Equal(t, Stats{Sent: 1}, m.Stats())
}

func TestSendFailureIsAValue(t *testing.T) {
	m := New(Config{}, &fakeAdapter{err: errors.New("chat not found")}, logx.Nop())
	res := m.Send(context.Background(), 10, "hi")
	assert.False(t, res.OK)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "chat not found")
	assert.Equal(t, Stats{Failed: 1}, m.Stats())
}

func TestSendTimesOut(t *testing.T) {
	m := New(Config{Timeout: 50 * time.Millisecond}, &fakeAdapter{block: true}, logx.Nop())
	start := time.Now()
	res := m.Send(context.Background(), 10, "hi")
	assert.False(t, res.OK)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSendRecoversPanic(t *testing.T) {
	m := New(Config{}, &fakeAdapter{panic: true}, logx.Nop())
	res := m.Send(context.Background(), 10, "hi")
	assert.False(t, res.OK)
	assert.Contains(t, res.Err.Error(), "panicked")
}

func TestSendWithoutTransport(t *testing.T) {
	res := New(Config{}, nil, logx.Nop()).Send(context.Background(), 1, "x")
	assert.False(t, res.OK)
}
