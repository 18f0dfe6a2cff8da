package config

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings ("10s", "1m"); Resolve turns the raw file into Settings.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Reminders RemindersConfig `json:"reminders"`
	Catalog   CatalogConfig   `json:"catalog"`
	Export    ExportConfig    `json:"export"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// GroupLog is the admin chat id that receives forwarded log lines.
	GroupLog    string `json:"group_log,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the record store.
//
//	"storage": { "driver": "sqlite", "path": "./procbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type RemindersConfig struct {
	Interval string `json:"interval,omitempty"`
	// Offsets are lead times in minutes before the deadline, one reminder
	// slot per entry in list order.
	Offsets     []int  `json:"offsets,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	TickTimeout string `json:"tick_timeout,omitempty"`
}

type CatalogConfig struct {
	// File is an optional YAML catalog used to seed an empty process table.
	File string `json:"file,omitempty"`
}

type ExportConfig struct {
	SheetID         string `json:"sheet_id,omitempty"`
	CredentialsFile string `json:"credentials_file,omitempty"`
	Worksheet       string `json:"worksheet,omitempty"`
}
