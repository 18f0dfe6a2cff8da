package storage

import (
	"context"
	"errors"
	"time"

	"procbot/internal/clock"
)

var ErrNotFound = errors.New("not found")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

type User struct {
	ID         int64
	TelegramID int64
	// Name joins the user to processes by exact match on OwnerName.
	Name      string
	Username  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Process struct {
	ID          int64
	Name        string
	OwnerName   string
	Periodicity string
	Deadline    clock.TimeOfDay
	// Reminders are the catalog's lead times in minutes (at most two). The
	// reminder engine schedules from its configured offsets instead.
	Reminders []int
	CreatedAt time.Time
}

// DispatchKey identifies one reminder slot of one process for one user on
// one calendar date. Slot is 1-based.
type DispatchKey struct {
	UserID    int64
	ProcessID int64
	Date      string // YYYY-MM-DD
	Slot      int
}

type Store interface {
	GetUser(ctx context.Context, telegramID int64) (User, error)
	// UpsertUser creates the user or refreshes name and username.
	UpsertUser(ctx context.Context, telegramID int64, name, username string) (User, error)
	AllUsers(ctx context.Context) ([]User, error)

	// ProcessesForOwner returns processes whose owner equals name, ordered by id.
	ProcessesForOwner(ctx context.Context, name string) ([]Process, error)
	// AllProcesses returns every process ordered by owner, then id.
	AllProcesses(ctx context.Context) ([]Process, error)
	AddProcesses(ctx context.Context, procs []Process) (int, error)
	CountProcesses(ctx context.Context) (int, error)

	// TryRecordDispatch atomically records k. It returns true only for the
	// call that created the record.
	TryRecordDispatch(ctx context.Context, k DispatchKey, sentAt time.Time) (bool, error)

	Close() error
}
