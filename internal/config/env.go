package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Env holds the environment overrides. Set variables win over the file.
type Env struct {
	TelegramToken   string `envconfig:"TELEGRAM_BOT_TOKEN"`
	DBPath          string `envconfig:"PROCBOT_DB_PATH"`
	SheetID         string `envconfig:"GOOGLE_SHEET_ID"`
	CredentialsFile string `envconfig:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	Timezone        string `envconfig:"PROCBOT_TIMEZONE"`
	LogLevel        string `envconfig:"PROCBOT_LOG_LEVEL"`
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. An empty path means ".env";
// a missing default file is not an error.
func LoadEnvFile(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func ReadEnv() (Env, error) {
	var e Env
	if err := envconfig.Process("", &e); err != nil {
		return Env{}, fmt.Errorf("read environment: %w", err)
	}
	return e, nil
}

// Overlay copies every non-empty override into cfg.
func (e Env) Overlay(cfg *Config) {
	if cfg == nil {
		return
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, e.TelegramToken)
	set(&cfg.Storage.Path, e.DBPath)
	set(&cfg.Export.SheetID, e.SheetID)
	set(&cfg.Export.CredentialsFile, e.CredentialsFile)
	set(&cfg.Reminders.Timezone, e.Timezone)
	set(&cfg.Logging.Level, e.LogLevel)
}
