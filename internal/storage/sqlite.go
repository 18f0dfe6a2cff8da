package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"procbot/internal/clock"
	logx "procbot/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; the scheduler and the chat loop share it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	for _, p := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(p); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", p), logx.Err(err))
		}
	}

	st := &sqliteStore{db: db, log: log}
	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ts(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTS(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

const userCols = `id, telegram_id, COALESCE(tg_username, ''), name, created_at, updated_at`

func scanUser(sc interface{ Scan(...any) error }) (User, error) {
	var u User
	var created, updated string
	if err := sc.Scan(&u.ID, &u.TelegramID, &u.Username, &u.Name, &created, &updated); err != nil {
		return User{}, err
	}
	u.CreatedAt, u.UpdatedAt = parseTS(created), parseTS(updated)
	return u, nil
}

func (s *sqliteStore) GetUser(ctx context.Context, telegramID int64) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE telegram_id = ?`, telegramID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *sqliteStore) UpsertUser(ctx context.Context, telegramID int64, name, username string) (User, error) {
	now := ts(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(telegram_id, tg_username, name, created_at, updated_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(telegram_id) DO UPDATE SET tg_username=excluded.tg_username, name=excluded.name, updated_at=excluded.updated_at`,
		telegramID, nullStr(username), name, now, now,
	)
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}
	return s.GetUser(ctx, telegramID)
}

func (s *sqliteStore) AllUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const processCols = `id, name, owner_name, periodicity, deadline_time, reminder_minutes_before_1, reminder_minutes_before_2, created_at`

func (s *sqliteStore) queryProcesses(ctx context.Context, q string, args ...any) ([]Process, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Process
	for rows.Next() {
		var (
			p        Process
			deadline string
			created  string
			r1, r2   sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.OwnerName, &p.Periodicity, &deadline, &r1, &r2, &created); err != nil {
			return nil, err
		}
		if p.Deadline, err = clock.ParseTimeOfDay(deadline); err != nil {
			return nil, fmt.Errorf("process %d: %w", p.ID, err)
		}
		for _, r := range []sql.NullInt64{r1, r2} {
			if r.Valid {
				p.Reminders = append(p.Reminders, int(r.Int64))
			}
		}
		p.CreatedAt = parseTS(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ProcessesForOwner(ctx context.Context, name string) ([]Process, error) {
	out, err := s.queryProcesses(ctx, `SELECT `+processCols+` FROM processes WHERE owner_name = ? ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("processes for owner: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) AllProcesses(ctx context.Context) ([]Process, error) {
	out, err := s.queryProcesses(ctx, `SELECT `+processCols+` FROM processes ORDER BY owner_name, id`)
	if err != nil {
		return nil, fmt.Errorf("all processes: %w", err)
	}
	return out, nil
}

func (s *sqliteStore) AddProcesses(ctx context.Context, procs []Process) (int, error) {
	if len(procs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("add processes: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := ts(time.Now())
	for _, p := range procs {
		r := reminderArgs(p.Reminders)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO processes(name, owner_name, periodicity, deadline_time, reminder_minutes_before_1, reminder_minutes_before_2, created_at, updated_at)
			 VALUES(?,?,?,?,?,?,?,?)`,
			p.Name, p.OwnerName, p.Periodicity, p.Deadline.String(), r[0], r[1], now, now,
		); err != nil {
			return 0, fmt.Errorf("add process %q: %w", p.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("add processes: %w", err)
	}
	return len(procs), nil
}

func reminderArgs(r []int) [2]any {
	var out [2]any
	for i := 0; i < len(r) && i < 2; i++ {
		out[i] = r[i]
	}
	return out
}

func (s *sqliteStore) CountProcesses(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count processes: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) TryRecordDispatch(ctx context.Context, k DispatchKey, sentAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder_logs(user_id, process_id, deadline_date, reminder_idx, sent_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(user_id, process_id, deadline_date, reminder_idx) DO NOTHING`,
		k.UserID, k.ProcessID, k.Date, k.Slot, ts(sentAt),
	)
	if err != nil {
		return false, fmt.Errorf("record dispatch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record dispatch: %w", err)
	}
	return n == 1, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
