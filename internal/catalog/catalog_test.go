package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procbot/internal/clock"
	"procbot/internal/storage"
)

func TestDefaults(t *testing.T) {
	procs := Defaults()
	require.Len(t, procs, 4)

	owners := map[string]int{}
	for _, p := range procs {
		owners[p.OwnerName]++
		assert.True(t, p.Deadline.Valid(), p.Name)
		assert.Len(t, p.Reminders, 2, p.Name)
	}
	assert.Equal(t, map[string]int{"Кирилл": 2, "Иван": 2}, owners)
	assert.Equal(t, clock.TimeOfDay{Hour: 10, Minute: 30}, procs[2].Deadline)
	assert.Equal(t, []int{720, 120}, procs[2].Reminders)

	// callers may mutate the returned slice
	procs[0].Reminders[0] = 1
	assert.Equal(t, 1440, Defaults()[0].Reminders[0])
}

func TestParse(t *testing.T) {
	procs, err := Parse([]byte(`
processes:
  - name: " Fill KPIs "
    owner: Ivan
    periodicity: daily by 10:30
    deadline: "10:30"
    reminders: [720, 120]
  - name: Weekly report
    owner: Kirill
    deadline: "9:05"
`))
	require.NoError(t, err)
	require.Len(t, procs, 2)
	assert.Equal(t, "Fill KPIs", procs[0].Name)
	assert.Equal(t, "daily by 10:30", procs[0].Periodicity)
	assert.Equal(t, []int{720, 120}, procs[0].Reminders)
	assert.Equal(t, clock.TimeOfDay{Hour: 9, Minute: 5}, procs[1].Deadline)
	assert.Empty(t, procs[1].Reminders)
}

func TestParseEmpty(t *testing.T) {
	procs, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, procs)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "processes:\n  - name: a\n    owner: b\n    deadline: \"10:00\"\n    color: red\n", "color"},
		{"missing name", "processes:\n  - owner: b\n    deadline: \"10:00\"\n", "processes[0]: name is required"},
		{"missing owner", "processes:\n  - name: a\n    deadline: \"10:00\"\n", "owner is required"},
		{"bad deadline", "processes:\n  - name: a\n    owner: b\n    deadline: \"25:00\"\n", "deadline"},
		{"too many reminders", "processes:\n  - name: a\n    owner: b\n    deadline: \"10:00\"\n    reminders: [1, 2, 3]\n", "at most 2"},
		{"non-positive reminder", "processes:\n  - name: a\n    owner: b\n    deadline: \"10:00\"\n    reminders: [0]\n", "must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseReportsEveryInvalidEntry(t *testing.T) {
	_, err := Parse([]byte("processes:\n  - owner: b\n    deadline: \"10:00\"\n  - name: a\n    owner: b\n    deadline: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processes[0]")
	assert.Contains(t, err.Error(), "processes[1]")
	assert.ErrorIs(t, err, clock.ErrInvalidTimeOfDay)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processes:\n  - name: a\n    owner: b\n    deadline: \"10:00\"\n"), 0o600))

	procs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, procs, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSeedOnlyIntoEmptyStore(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()

	n, err := Seed(ctx, st, Defaults())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = Seed(ctx, st, Defaults())
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := st.CountProcesses(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestImportAppends(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_, err := Seed(ctx, st, Defaults())
	require.NoError(t, err)

	n, err := Import(ctx, st, []storage.Process{{Name: "Extra", OwnerName: "Иван", Deadline: clock.TimeOfDay{Hour: 18}}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	procs, err := st.ProcessesForOwner(ctx, "Иван")
	require.NoError(t, err)
	require.Len(t, procs, 3)
	assert.Equal(t, "Extra", procs[2].Name)
}
