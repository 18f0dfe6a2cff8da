package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPollTimeout  = 25 * time.Second
	DefaultSendTimeout  = 10 * time.Second
	DefaultRatePerSec   = 20
	DefaultDBPath       = "./procbot.db"
	DefaultBusyTimeout  = time.Second
	DefaultInterval     = 60 * time.Second
	DefaultTickTimeout  = 50 * time.Second
	DefaultWorksheet    = "Processes"
	maxReminderOffsetMn = 24 * 60
)

// DefaultOffsets are the reminder lead times in minutes (slot 1, slot 2).
var DefaultOffsets = []int{120, 60}

// Settings is the validated, typed view of a Config.
type Settings struct {
	Token       string
	GroupLog    int64
	PollTimeout time.Duration
	SendTimeout time.Duration
	RatePerSec  int

	StorageDriver string
	StoragePath   string
	BusyTimeout   time.Duration

	Interval    time.Duration
	Offsets     []int
	Location    *time.Location
	TickTimeout time.Duration

	CatalogFile string
	LogLevel    string

	SheetID         string
	CredentialsFile string
	Worksheet       string
}

// Resolve applies defaults and validates cfg. It does not require a Telegram
// token; callers that poll call RequireToken.
func Resolve(cfg *Config) (*Settings, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	s := &Settings{
		Token:           strings.TrimSpace(cfg.Telegram.Token),
		RatePerSec:      cfg.Telegram.RatePerSec,
		StorageDriver:   strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		StoragePath:     strings.TrimSpace(cfg.Storage.Path),
		CatalogFile:     strings.TrimSpace(cfg.Catalog.File),
		LogLevel:        strings.TrimSpace(cfg.Logging.Level),
		SheetID:         strings.TrimSpace(cfg.Export.SheetID),
		CredentialsFile: strings.TrimSpace(cfg.Export.CredentialsFile),
		Worksheet:       strings.TrimSpace(cfg.Export.Worksheet),
	}
	errs := resolveDurations(cfg, s)
	var err error

	if gl := strings.TrimSpace(cfg.Telegram.GroupLog); gl != "" {
		if s.GroupLog, err = strconv.ParseInt(gl, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("telegram.group_log: invalid chat id %q", gl))
		}
	}
	if s.RatePerSec <= 0 {
		s.RatePerSec = DefaultRatePerSec
	}

	switch s.StorageDriver {
	case "":
		s.StorageDriver = "sqlite"
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q (want sqlite or memory)", cfg.Storage.Driver))
	}
	if s.StoragePath == "" {
		s.StoragePath = DefaultDBPath
	}
	s.Offsets = append([]int(nil), cfg.Reminders.Offsets...)
	if len(s.Offsets) == 0 {
		s.Offsets = append([]int(nil), DefaultOffsets...)
	}
	for i, o := range s.Offsets {
		if o <= 0 || o > maxReminderOffsetMn {
			errs = append(errs, fmt.Errorf("reminders.offsets[%d]: %d out of range 1..%d", i, o, maxReminderOffsetMn))
		}
	}
	s.Location = time.Local
	if tz := strings.TrimSpace(cfg.Reminders.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			errs = append(errs, fmt.Errorf("reminders.timezone: %w", err))
		} else {
			s.Location = loc
		}
	}

	if s.Worksheet == "" {
		s.Worksheet = DefaultWorksheet
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return s, nil
}

// RequireToken reports a startup error when no bot token is configured.
func (s *Settings) RequireToken() error {
	if s.Token == "" {
		return errors.New("telegram token is not set (telegram.token or TELEGRAM_BOT_TOKEN)")
	}
	return nil
}
