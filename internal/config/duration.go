package config

import (
	"fmt"
	"strings"
	"time"
)

// durationKey describes one duration setting of the config file.
type durationKey struct {
	key string
	raw string
	def time.Duration
	min time.Duration
	dst *time.Duration
}

// parse returns def for an empty or zero value. Negative values and values
// below min are rejected.
func (k durationKey) parse() (time.Duration, error) {
	s := strings.TrimSpace(k.raw)
	if s == "" {
		return k.def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", k.key, k.raw)
	}
	switch {
	case d < 0:
		return 0, fmt.Errorf("%s: must not be negative, got %s", k.key, d)
	case d == 0:
		return k.def, nil
	case d < k.min:
		return 0, fmt.Errorf("%s: must be at least %s, got %s", k.key, k.min, d)
	}
	return d, nil
}

// durationKeys lists every duration setting Resolve fills in s.
func durationKeys(cfg *Config, s *Settings) []durationKey {
	return []durationKey{
		{key: "telegram.poll_timeout", raw: cfg.Telegram.PollTimeout, def: DefaultPollTimeout, min: time.Second, dst: &s.PollTimeout},
		{key: "telegram.send_timeout", raw: cfg.Telegram.SendTimeout, def: DefaultSendTimeout, dst: &s.SendTimeout},
		{key: "storage.busy_timeout", raw: cfg.Storage.BusyTimeout, def: DefaultBusyTimeout, dst: &s.BusyTimeout},
		{key: "reminders.interval", raw: cfg.Reminders.Interval, def: DefaultInterval, min: time.Second, dst: &s.Interval},
		{key: "reminders.tick_timeout", raw: cfg.Reminders.TickTimeout, def: DefaultTickTimeout, dst: &s.TickTimeout},
	}
}

// resolveDurations fills every duration of s and returns one error per bad key.
func resolveDurations(cfg *Config, s *Settings) []error {
	var errs []error
	for _, k := range durationKeys(cfg, s) {
		d, err := k.parse()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*k.dst = d
	}
	return errs
}
