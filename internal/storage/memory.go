package storage

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

type memoryStore struct {
	mu        sync.Mutex
	users     []User
	processes []Process
	sent      map[DispatchKey]time.Time
	nextUser  int64
	nextProc  int64
}

// NewMemory returns a store that lives for the lifetime of the process.
func NewMemory() Store {
	return &memoryStore{sent: map[DispatchKey]time.Time{}}
}

func (m *memoryStore) GetUser(ctx context.Context, telegramID int64) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.TelegramID == telegramID {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *memoryStore) UpsertUser(ctx context.Context, telegramID int64, name, username string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	username = strings.TrimSpace(username)
	for i := range m.users {
		if m.users[i].TelegramID == telegramID {
			m.users[i].Name = name
			m.users[i].Username = username
			m.users[i].UpdatedAt = now
			return m.users[i], nil
		}
	}
	m.nextUser++
	u := User{ID: m.nextUser, TelegramID: telegramID, Name: name, Username: username, CreatedAt: now, UpdatedAt: now}
	m.users = append(m.users, u)
	return u, nil
}

func (m *memoryStore) AllUsers(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.users), nil
}

func (m *memoryStore) ProcessesForOwner(ctx context.Context, name string) ([]Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Process
	for _, p := range m.processes {
		if p.OwnerName == name {
			out = append(out, cloneProcess(p))
		}
	}
	return out, nil
}

func (m *memoryStore) AllProcesses(ctx context.Context) ([]Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := make([]Process, 0, len(m.processes))
	for _, p := range m.processes {
		out = append(out, cloneProcess(p))
	}
	m.mu.Unlock()
	slices.SortStableFunc(out, func(a, b Process) int {
		if c := strings.Compare(a.OwnerName, b.OwnerName); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return out, nil
}

func (m *memoryStore) AddProcesses(ctx context.Context, procs []Process) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, p := range procs {
		m.nextProc++
		p = cloneProcess(p)
		p.ID = m.nextProc
		if len(p.Reminders) > 2 {
			p.Reminders = p.Reminders[:2]
		}
		p.CreatedAt = now
		m.processes = append(m.processes, p)
	}
	return len(procs), nil
}

func (m *memoryStore) CountProcesses(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.processes), nil
}

func (m *memoryStore) TryRecordDispatch(ctx context.Context, k DispatchKey, sentAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sent[k]; ok {
		return false, nil
	}
	m.sent[k] = sentAt
	return true, nil
}

func (m *memoryStore) Close() error { return nil }

func cloneProcess(p Process) Process {
	p.Reminders = slices.Clone(p.Reminders)
	return p
}
