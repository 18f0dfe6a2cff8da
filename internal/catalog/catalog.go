// Package catalog holds the process definitions the bot starts with and
// loads additional ones from YAML files.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"procbot/internal/clock"
	"procbot/internal/storage"
)

const maxReminders = 2

// Defaults returns the built-in process list seeded into an empty store.
func Defaults() []storage.Process {
	endOfDay := clock.TimeOfDay{Hour: 23, Minute: 59}
	return []storage.Process{
		{
			Name:        "Заполнить таблицу показателей",
			OwnerName:   "Кирилл",
			Periodicity: "ежедневно (конец дня)",
			Deadline:    endOfDay,
			Reminders:   []int{24 * 60, 2 * 60},
		},
		{
			Name:        "Посмотреть просмотры конкурентов",
			OwnerName:   "Кирилл",
			Periodicity: "ежедневно (конец дня)",
			Deadline:    endOfDay,
			Reminders:   []int{24 * 60, 2 * 60},
		},
		{
			Name:        "Заполнить КОПы",
			OwnerName:   "Иван",
			Periodicity: "ежедневно до 10:30",
			Deadline:    clock.TimeOfDay{Hour: 10, Minute: 30},
			Reminders:   []int{12 * 60, 2 * 60},
		},
		{
			Name:        "Проверить рекламные кампании",
			OwnerName:   "Иван",
			Periodicity: "ежедневно до 12:00",
			Deadline:    clock.TimeOfDay{Hour: 12},
			Reminders:   []int{12 * 60, 2 * 60},
		},
	}
}

type fileEntry struct {
	Name        string `yaml:"name"`
	Owner       string `yaml:"owner"`
	Periodicity string `yaml:"periodicity"`
	Deadline    string `yaml:"deadline"`
	Reminders   []int  `yaml:"reminders"`
}

type file struct {
	Processes []fileEntry `yaml:"processes"`
}

// Load reads a catalog file of the form
//
//	processes:
//	  - name: Fill KPIs
//	    owner: Ivan
//	    periodicity: daily by 10:30
//	    deadline: "10:30"
//	    reminders: [720, 120]
func Load(path string) ([]storage.Process, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	procs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return procs, nil
}

// Parse decodes and validates catalog YAML. Every invalid entry is reported.
func Parse(data []byte) ([]storage.Process, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}

	var errs []error
	out := make([]storage.Process, 0, len(f.Processes))
	for i, e := range f.Processes {
		p, err := e.toProcess()
		if err != nil {
			errs = append(errs, fmt.Errorf("processes[%d]: %w", i, err))
			continue
		}
		out = append(out, p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (e fileEntry) toProcess() (storage.Process, error) {
	name := strings.TrimSpace(e.Name)
	owner := strings.TrimSpace(e.Owner)
	if name == "" {
		return storage.Process{}, errors.New("name is required")
	}
	if owner == "" {
		return storage.Process{}, errors.New("owner is required")
	}
	tod, err := clock.ParseTimeOfDay(strings.TrimSpace(e.Deadline))
	if err != nil {
		return storage.Process{}, fmt.Errorf("deadline: %w", err)
	}
	if len(e.Reminders) > maxReminders {
		return storage.Process{}, fmt.Errorf("at most %d reminders allowed, got %d", maxReminders, len(e.Reminders))
	}
	for _, m := range e.Reminders {
		if m <= 0 {
			return storage.Process{}, fmt.Errorf("reminder lead time must be positive, got %d", m)
		}
	}
	return storage.Process{
		Name:        name,
		OwnerName:   owner,
		Periodicity: strings.TrimSpace(e.Periodicity),
		Deadline:    tod,
		Reminders:   append([]int(nil), e.Reminders...),
	}, nil
}

// Seed inserts procs only when the store has no processes yet. It reports
// how many rows were added.
func Seed(ctx context.Context, store storage.Store, procs []storage.Process) (int, error) {
	n, err := store.CountProcesses(ctx)
	if err != nil {
		return 0, fmt.Errorf("count processes: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	return Import(ctx, store, procs)
}

// Import appends procs regardless of what the store already holds.
func Import(ctx context.Context, store storage.Store, procs []storage.Process) (int, error) {
	if len(procs) == 0 {
		return 0, nil
	}
	n, err := store.AddProcesses(ctx, procs)
	if err != nil {
		return 0, fmt.Errorf("add processes: %w", err)
	}
	return n, nil
}
