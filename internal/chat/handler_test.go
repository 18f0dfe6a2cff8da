package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procbot/internal/clock"
	"procbot/internal/eventbus"
	"procbot/internal/messenger"
	"procbot/internal/storage"
	"procbot/internal/transport"
	logx "procbot/pkg/logx"
)

type fakeReplier struct {
	mu      sync.Mutex
	replies []string
	targets []transport.ChatTarget
}

func (f *fakeReplier) SendTo(ctx context.Context, to transport.ChatTarget, text string) messenger.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	f.targets = append(f.targets, to)
	return messenger.Result{OK: true}
}

func (f *fakeReplier) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

func (f *fakeReplier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

type brokenStore struct{ storage.Store }

func (brokenStore) GetUser(ctx context.Context, id int64) (storage.User, error) {
	return storage.User{}, errors.New("database is locked")
}

type fixture struct {
	h     *Handler
	st    storage.Store
	reply *fakeReplier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := storage.NewMemory()
	_, err := st.AddProcesses(context.Background(), []storage.Process{
		{Name: "Fill KPIs", OwnerName: "Иван", Periodicity: "daily by 10:30", Deadline: clock.TimeOfDay{Hour: 10, Minute: 30}},
		{Name: "Check ads", OwnerName: "Иван", Periodicity: "daily by 12:00", Deadline: clock.TimeOfDay{Hour: 12}},
		{Name: "Metrics table", OwnerName: "Кирилл", Deadline: clock.TimeOfDay{Hour: 23, Minute: 59}},
	})
	require.NoError(t, err)
	r := &fakeReplier{}
	h := New(Config{Offsets: []int{120, 60}, Location: time.UTC}, st, r, nil, logx.Nop())
	return fixture{h: h, st: st, reply: r}
}

func (f fixture) say(t *testing.T, from int64, text string) string {
	t.Helper()
	req := f.h.newRequest(transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ChatID: from, FromID: from, FromUsername: "user", Text: text, IsPrivate: true,
	}})
	require.NoError(t, f.h.Handle(context.Background(), req))
	return f.reply.last()
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in, cmd, args string
		ok            bool
	}{
		{"/start", "start", "", true},
		{"/check 15-12-2025 09:00", "check", "15-12-2025 09:00", true},
		{"/Check@ProcBot  15.12.2025 9:00", "check", "15.12.2025 9:00", true},
		{"/check\t15-12-2025 09:00", "check", "15-12-2025 09:00", true},
		{"/check\n15-12-2025 09:00", "check", "15-12-2025 09:00", true},
		{"/", "", "", true},
		{"/ Иван", "", "Иван", true},
		{"Иван", "", "", false},
	}
	for _, tt := range tests {
		cmd, args, ok := parseCommand(tt.in)
		assert.Equal(t, tt.cmd, cmd, tt.in)
		assert.Equal(t, tt.args, args, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestBareSlashNeverRegisters(t *testing.T) {
	f := newFixture(t)
	for _, text := range []string{"/", "/ Иван", "/@ProcBot"} {
		got := f.say(t, 77, text)
		assert.Equal(t, helpText(false), got, text)
	}
	_, err := f.st.GetUser(context.Background(), 77)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	f.say(t, 77, "Иван")
	assert.Equal(t, helpText(true), f.say(t, 77, "/"))
}

func TestCheckArgumentAfterTab(t *testing.T) {
	f := newFixture(t)
	f.say(t, 1, "Иван")
	got := f.say(t, 1, "/check\t15-12-2025 09:00")
	assert.True(t, strings.HasPrefix(got, "Check at 15-12-2025 09:00:"), got)
}

func TestStartAlwaysOnboards(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, onboardingText, f.say(t, 1, "/start"))
	f.say(t, 1, "Иван")
	assert.Equal(t, onboardingText, f.say(t, 1, "/start"))
}

func TestUnregisteredCommandGetsHelpWithPrompt(t *testing.T) {
	f := newFixture(t)
	for _, cmd := range []string{"/my", "/check 15-12-2025 09:00", "/help"} {
		got := f.say(t, 1, cmd)
		assert.Contains(t, got, "/check DD-MM-YYYY HH:MM")
		assert.Contains(t, got, registrationPrompt)
		assert.NotContains(t, got, "Fill KPIs")
	}
	_, err := f.st.GetUser(context.Background(), 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPlainTextRegistersThenMyLists(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, registeredText("Иван"), f.say(t, 1, "  Иван "))

	u, err := f.st.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Иван", u.Name)
	assert.Equal(t, "user", u.Username)

	got := f.say(t, 1, "/my")
	want := "Your processes (Иван):\n" +
		"• Fill KPIs — daily by 10:30, deadline 10:30.\n" +
		"• Check ads — daily by 12:00, deadline 12:00.\n\n" +
		"Reminders: 120 min before, 60 min before"
	assert.Equal(t, want, got)
}

func TestRegisteredPlainTextGetsHelp(t *testing.T) {
	f := newFixture(t)
	f.say(t, 1, "Иван")
	got := f.say(t, 1, "Пётр")
	assert.Equal(t, helpText(true), got)

	u, err := f.st.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Иван", u.Name)
}

func TestMyWithoutProcesses(t *testing.T) {
	f := newFixture(t)
	f.say(t, 1, "Ольга")
	assert.Equal(t, "No processes are assigned to Ольга.", f.say(t, 1, "/my"))
}

func TestCheck(t *testing.T) {
	f := newFixture(t)
	f.say(t, 1, "Иван")

	got := f.say(t, 1, "/check 15-12-2025 09:00")
	assert.True(t, strings.HasPrefix(got, "Check at 15-12-2025 09:00:"), got)
	assert.Contains(t, got, "• Fill KPIs — deadline 10:30 — ✅ succeed, remaining in 1 hours 30 minutes")
	assert.Contains(t, got, "• Check ads — deadline 12:00 — ✅ succeed, remaining in 3 hours 0 minutes")

	got = f.say(t, 1, "/check 15.12.2025 11:00")
	assert.Contains(t, got, "⚠️ deadline passed, overdue by 30 minutes")

	for _, bad := range []string{"/check", "/check 15-12-2025", "/check 31-02-2025 10:00"} {
		assert.Equal(t, checkUsageText, f.say(t, 1, bad), bad)
	}
}

func TestCheckWithoutProcesses(t *testing.T) {
	f := newFixture(t)
	f.say(t, 1, "Ольга")
	assert.Equal(t, "No processes to evaluate.", f.say(t, 1, "/check 15-12-2025 09:00"))
}

func TestEmptyTextIgnored(t *testing.T) {
	f := newFixture(t)
	f.say(t, 1, "   ")
	assert.Zero(t, f.reply.count())
}

func TestRegistrationPublishesEvent(t *testing.T) {
	f := newFixture(t)
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(1)
	defer unsub()
	f.h.bus = bus

	f.say(t, 42, "Иван")
	ev := <-ch
	assert.Equal(t, eventbus.TypeUserRegistered, ev.Type)
	assert.Equal(t, int64(42), ev.Data)
}

func TestRunRepliesToSourceChatAndSurvivesErrors(t *testing.T) {
	r := &fakeReplier{}
	h := New(Config{Location: time.UTC}, brokenStore{storage.NewMemory()}, r, nil, logx.Nop())

	updates := make(chan transport.Update)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, updates) }()

	updates <- transport.Update{Message: &transport.Message{ChatID: -100, ThreadID: 7, FromID: 5, Text: "/my"}}
	updates <- transport.Update{Message: &transport.Message{ChatID: -100, FromID: 5, Text: "/start"}}
	close(updates)
	require.NoError(t, <-done)
	cancel()

	require.Equal(t, 2, r.count())
	assert.Equal(t, internalErrorText, r.replies[0])
	assert.Equal(t, transport.ChatTarget{ChatID: -100, ThreadID: 7}, r.targets[0])
	assert.Equal(t, onboardingText, r.replies[1])
}

func TestMiddlewareRecoversPanic(t *testing.T) {
	h := Chain(func(ctx context.Context, req *Request) error { panic("boom") }, MWPanicRecover(), MWRequestLog())
	err := h(context.Background(), &Request{Logger: logx.Nop()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestMiddlewareTimeout(t *testing.T) {
	h := Chain(func(ctx context.Context, req *Request) error {
		<-ctx.Done()
		return ctx.Err()
	}, MWTimeout(10*time.Millisecond))
	assert.ErrorIs(t, h(context.Background(), &Request{}), context.DeadlineExceeded)
}
