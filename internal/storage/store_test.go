package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procbot/internal/clock"
	logx "procbot/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "procbot.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{"sqlite": sq, "memory": NewMemory()}
}

func sampleProcesses() []Process {
	return []Process{
		{Name: "Fill KPIs", OwnerName: "Ivan", Periodicity: "daily by 10:30", Deadline: clock.TimeOfDay{Hour: 10, Minute: 30}, Reminders: []int{720, 120}},
		{Name: "Metrics table", OwnerName: "Kirill", Periodicity: "daily", Deadline: clock.TimeOfDay{Hour: 23, Minute: 59}},
		{Name: "Check ads", OwnerName: "Ivan", Periodicity: "daily by 12:00", Deadline: clock.TimeOfDay{Hour: 12, Minute: 0}, Reminders: []int{60}},
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.GetUser(ctx, 42)
			assert.True(t, errors.Is(err, ErrNotFound))

			u, err := st.UpsertUser(ctx, 42, "Ivan", "ivan_tg")
			require.NoError(t, err)
			assert.Equal(t, "Ivan", u.Name)
			assert.Equal(t, "ivan_tg", u.Username)

			u2, err := st.UpsertUser(ctx, 42, "Ivan Petrov", "")
			require.NoError(t, err)
			assert.Equal(t, u.ID, u2.ID)
			assert.Equal(t, "Ivan Petrov", u2.Name)
			assert.Equal(t, "", u2.Username)

			_, err = st.UpsertUser(ctx, 7, "Kirill", "")
			require.NoError(t, err)

			all, err := st.AllUsers(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, int64(42), all[0].TelegramID)
			assert.Equal(t, int64(7), all[1].TelegramID)
		})
	}
}

func TestProcesses(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			n, err := st.CountProcesses(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)

			added, err := st.AddProcesses(ctx, sampleProcesses())
			require.NoError(t, err)
			assert.Equal(t, 3, added)

			ivan, err := st.ProcessesForOwner(ctx, "Ivan")
			require.NoError(t, err)
			require.Len(t, ivan, 2)
			assert.Equal(t, "Fill KPIs", ivan[0].Name)
			assert.Equal(t, clock.TimeOfDay{Hour: 10, Minute: 30}, ivan[0].Deadline)
			assert.Equal(t, []int{720, 120}, ivan[0].Reminders)
			assert.Equal(t, "Check ads", ivan[1].Name)
			assert.Equal(t, []int{60}, ivan[1].Reminders)
			assert.Less(t, ivan[0].ID, ivan[1].ID)

			none, err := st.ProcessesForOwner(ctx, "ivan")
			require.NoError(t, err)
			assert.Empty(t, none)

			all, err := st.AllProcesses(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"Ivan", "Ivan", "Kirill"}, []string{all[0].OwnerName, all[1].OwnerName, all[2].OwnerName})
			assert.Empty(t, all[2].Reminders)
		})
	}
}

func TestTryRecordDispatchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			u, err := st.UpsertUser(ctx, 1, "Ivan", "")
			require.NoError(t, err)
			_, err = st.AddProcesses(ctx, sampleProcesses()[:1])
			require.NoError(t, err)
			procs, err := st.ProcessesForOwner(ctx, "Ivan")
			require.NoError(t, err)

			k := DispatchKey{UserID: u.ID, ProcessID: procs[0].ID, Date: "2025-12-15", Slot: 1}
			ok, err := st.TryRecordDispatch(ctx, k, time.Now())
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = st.TryRecordDispatch(ctx, k, time.Now())
			require.NoError(t, err)
			assert.False(t, ok)

			k2 := k
			k2.Slot = 2
			ok, err = st.TryRecordDispatch(ctx, k2, time.Now())
			require.NoError(t, err)
			assert.True(t, ok)

			k3 := k
			k3.Date = "2025-12-16"
			ok, err = st.TryRecordDispatch(ctx, k3, time.Now())
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestTryRecordDispatchConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			u, err := st.UpsertUser(ctx, 1, "Ivan", "")
			require.NoError(t, err)
			_, err = st.AddProcesses(ctx, sampleProcesses()[:1])
			require.NoError(t, err)
			procs, err := st.ProcessesForOwner(ctx, "Ivan")
			require.NoError(t, err)
			k := DispatchKey{UserID: u.ID, ProcessID: procs[0].ID, Date: "2025-12-15", Slot: 1}

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := st.TryRecordDispatch(ctx, k, time.Now())
					assert.NoError(t, err)
					if ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, wins)
		})
	}
}

func TestSQLiteDispatchSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "procbot.db")

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	u, err := st.UpsertUser(ctx, 1, "Ivan", "")
	require.NoError(t, err)
	_, err = st.AddProcesses(ctx, sampleProcesses()[:1])
	require.NoError(t, err)
	procs, err := st.ProcessesForOwner(ctx, "Ivan")
	require.NoError(t, err)
	k := DispatchKey{UserID: u.ID, ProcessID: procs[0].ID, Date: "2025-12-15", Slot: 1}
	ok, err := st.TryRecordDispatch(ctx, k, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	ok, err = st.TryRecordDispatch(ctx, k, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := st.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ivan", got.Name)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)
}

func TestMemoryHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory().AllUsers(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
