package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rpattn/regwatch/internal/db"
	"github.com/rpattn/regwatch/internal/logger"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Scraper  ScraperConfig
	Log      logger.Options
	// Source records whether a config file was found; empty means defaults
	// and environment only.
	Source string
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string
	CORSOrigins []string
}

// ScraperConfig configures the register scraper.
type ScraperConfig struct {
	Endpoint string
	Timeout  time.Duration
	// Interval between scheduled scrapes when serving; zero disables them.
	Interval time.Duration
	// ArchiveDir receives a CSV copy of every scrape; empty disables it.
	ArchiveDir string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		Scraper: ScraperConfig{
			Endpoint: "https://www.ttipattorney.gov.au//sxa/search/results/",
			Timeout:  2 * time.Minute,
			Interval: 24 * time.Hour,
		},
		Log: logger.Options{Level: "info"},
	}
}

// Load reads config.yaml from configPath (when present) and applies
// REGWATCH_ environment overrides, e.g. REGWATCH_DATABASE_HOST.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("REGWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // allow environment overrides

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"database.driver", "database.host", "database.port", "database.user",
		"database.password", "database.dbname", "database.sslmode", "database.path",
		"server.addr", "server.cors_origins",
		"scraper.endpoint", "scraper.timeout", "scraper.interval", "scraper.archive_dir",
		"log.json", "log.level",
	} {
		if err := v.BindEnv(key); err != nil {
			return cfg, errors.Wrapf(err, "bind env %s", key)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, errors.Wrap(err, "failed to read config")
		}
	} else {
		cfg.Source = v.ConfigFileUsed()
	}

	// Override defaults if values exist
	if v.IsSet("database.driver") {
		cfg.Database.Driver = v.GetString("database.driver")
	}
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.path") {
		cfg.Database.Path = v.GetString("database.path")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.cors_origins") {
		cfg.Server.CORSOrigins = v.GetStringSlice("server.cors_origins")
	}

	if v.IsSet("scraper.endpoint") {
		cfg.Scraper.Endpoint = v.GetString("scraper.endpoint")
	}
	if v.IsSet("scraper.timeout") {
		cfg.Scraper.Timeout = v.GetDuration("scraper.timeout")
	}
	if v.IsSet("scraper.interval") {
		cfg.Scraper.Interval = v.GetDuration("scraper.interval")
	}
	if v.IsSet("scraper.archive_dir") {
		cfg.Scraper.ArchiveDir = v.GetString("scraper.archive_dir")
	}

	if v.IsSet("log.json") {
		cfg.Log.JSON = v.GetBool("log.json")
	}
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}

	return cfg, nil
}
