package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseYAMLAndResolveDefaults(t *testing.T) {
	p := writeFile(t, "procbot.yaml", `
telegram:
  token: "123:abc"
  group_log: "-100200"
logging:
  level: DEBUG
  console: true
storage:
  driver: memory
reminders:
  offsets: [90, 30]
  timezone: UTC
`)
	cfg, err := NewConfigManager(p, Env{}).Load()
	require.NoError(t, err)

	s, err := Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, "123:abc", s.Token)
	assert.Equal(t, int64(-100200), s.GroupLog)
	assert.Equal(t, "memory", s.StorageDriver)
	assert.Equal(t, []int{90, 30}, s.Offsets)
	assert.Equal(t, "UTC", s.Location.String())
	assert.Equal(t, DefaultInterval, s.Interval)
	assert.Equal(t, DefaultSendTimeout, s.SendTimeout)
	assert.Equal(t, DefaultWorksheet, s.Worksheet)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	p := writeFile(t, "procbot.json", `{"telegram":{"token":"x"},"plugins":{}}`)
	_, err := NewConfigManager(p, Env{}).Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugins")
}

func TestParseRejectsTrailingData(t *testing.T) {
	p := writeFile(t, "procbot.json", `{"telegram":{}} {"logging":{}}`)
	_, err := NewConfigManager(p, Env{}).Parse()
	assert.Error(t, err)
}

func TestEmptyPathUsesEnvOnly(t *testing.T) {
	cfg, err := NewConfigManager("", Env{TelegramToken: "t", DBPath: "/tmp/x.db"}).Load()
	require.NoError(t, err)
	s, err := Resolve(cfg)
	require.NoError(t, err)
	assert.NoError(t, s.RequireToken())
	assert.Equal(t, "/tmp/x.db", s.StoragePath)
	assert.Equal(t, "sqlite", s.StorageDriver)
	assert.Equal(t, DefaultOffsets, s.Offsets)
}

func TestEnvOverlayWins(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "file"}, Export: ExportConfig{SheetID: "a"}}
	Env{TelegramToken: "env", SheetID: " "}.Overlay(cfg)
	assert.Equal(t, "env", cfg.Telegram.Token)
	assert.Equal(t, "a", cfg.Export.SheetID)
}

func TestReadEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("PROCBOT_TIMEZONE", "Europe/Moscow")
	e, err := ReadEnv()
	require.NoError(t, err)
	assert.Equal(t, "from-env", e.TelegramToken)
	assert.Equal(t, "Europe/Moscow", e.Timezone)
}

func TestLoadEnvFile(t *testing.T) {
	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	p := writeFile(t, "procbot.env", "PROCBOT_DB_PATH=/var/lib/procbot/test.db\n")
	t.Setenv("PROCBOT_DB_PATH", "")
	require.NoError(t, os.Unsetenv("PROCBOT_DB_PATH"))
	require.NoError(t, LoadEnvFile(p))
	assert.Equal(t, "/var/lib/procbot/test.db", os.Getenv("PROCBOT_DB_PATH"))
}

func TestResolveValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"bad driver", Config{Storage: StorageConfig{Driver: "postgres"}}, "storage.driver"},
		{"bad duration", Config{Reminders: RemindersConfig{Interval: "soon"}}, "reminders.interval"},
		{"tiny interval", Config{Reminders: RemindersConfig{Interval: "10ms"}}, "at least 1s"},
		{"bad offset", Config{Reminders: RemindersConfig{Offsets: []int{120, 0}}}, "reminders.offsets[1]"},
		{"bad tz", Config{Reminders: RemindersConfig{Timezone: "Mars/Olympus"}}, "reminders.timezone"},
		{"bad group", Config{Telegram: TelegramConfig{GroupLog: "@admins"}}, "telegram.group_log"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(&tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRequireToken(t *testing.T) {
	s, err := Resolve(nil)
	require.NoError(t, err)
	assert.Error(t, s.RequireToken())
}

func TestSummarizeConfigChange(t *testing.T) {
	a := &Config{Logging: LoggingConfig{Level: "INFO"}, Reminders: RemindersConfig{Interval: "60s"}}
	b := &Config{Logging: LoggingConfig{Level: "DEBUG"}, Reminders: RemindersConfig{Interval: "30s"}}
	changed, _ := SummarizeConfigChange(a, b)
	assert.Equal(t, []string{"logging", "reminders"}, changed)
	assert.Equal(t, []string{"reminders"}, RestartRequired(changed))
}

func TestWatchPublishesChanges(t *testing.T) {
	p := writeFile(t, "procbot.json", `{"logging":{"level":"INFO"}}`)
	m := NewConfigManager(p, Env{})
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(p, []byte(`{"logging":{"level":"DEBUG"}}`), 0o600))

	select {
	case cfg := <-ch:
		assert.Equal(t, "DEBUG", cfg.Logging.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload published")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestDurationKeys(t *testing.T) {
	s, err := Resolve(&Config{
		Telegram:  TelegramConfig{PollTimeout: " 30s ", SendTimeout: "0s"},
		Reminders: RemindersConfig{Interval: "2m"},
	})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, s.PollTimeout)
	assert.Equal(t, DefaultSendTimeout, s.SendTimeout)
	assert.Equal(t, 2*time.Minute, s.Interval)
	assert.Equal(t, DefaultTickTimeout, s.TickTimeout)

	_, err = Resolve(&Config{
		Telegram:  TelegramConfig{PollTimeout: "500ms"},
		Reminders: RemindersConfig{TickTimeout: "-1s"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.poll_timeout: must be at least 1s, got 500ms")
	assert.Contains(t, err.Error(), "reminders.tick_timeout: must not be negative")
}

func TestYAMLDocuments(t *testing.T) {
	empty := writeFile(t, "empty.yml", "# nothing yet\n")
	cfg, err := NewConfigManager(empty, Env{}).Parse()
	require.NoError(t, err)
	assert.Equal(t, Config{}, *cfg)

	two := writeFile(t, "two.yaml", "telegram:\n  token: a\n---\ntelegram:\n  token: b\n")
	_, err = NewConfigManager(two, Env{}).Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one document")

	unknown := writeFile(t, "unknown.yaml", "reminders:\n  offsets: [30]\n  jitter: 5s\n")
	_, err = NewConfigManager(unknown, Env{}).Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jitter")
}

func TestJSONTreeKeys(t *testing.T) {
	got := jsonTree(map[any]any{1: "one", "n": []any{map[any]any{true: "yes"}}})
	assert.Equal(t, map[string]any{"1": "one", "n": []any{map[string]any{"true": "yes"}}}, got)
}
