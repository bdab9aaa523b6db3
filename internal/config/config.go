package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "conf/config.yaml"

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`
	// AdminToken protects refresh and delete. Empty means a token file in
	// DataDir is created on first start.
	AdminToken string `yaml:"admin_token"`

	Database  Database  `yaml:"database"`
	Lichess   Lichess   `yaml:"lichess"`
	Redis     Redis     `yaml:"redis"`
	Sync      Sync      `yaml:"sync"`
	Log       Log       `yaml:"log"`
	RateLimit RateLimit `yaml:"rate_limit"`

	// Path is the config file that was read, empty if none.
	Path string `yaml:"-"`
}

type Database struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

type Lichess struct {
	BaseURL           string        `yaml:"base_url"`
	Token             string        `yaml:"token"`
	TokenFile         string        `yaml:"token_file"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

type Redis struct {
	URL string        `yaml:"url"`
	TTL time.Duration `yaml:"ttl"`
}

type Sync struct {
	UserStale     time.Duration `yaml:"user_stale"`
	GamesStale    time.Duration `yaml:"games_stale"`
	InitialWindow time.Duration `yaml:"initial_window"`
	Interval      time.Duration `yaml:"interval"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type RateLimit struct {
	// PerMinute is the request budget per client IP; 0 disables the limiter.
	PerMinute int `yaml:"per_minute"`
	Burst     int `yaml:"burst"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		DataDir:    "./data",
		Database:   Database{Driver: "sqlite"},
		Lichess: Lichess{
			BaseURL:           "https://lichess.org",
			TokenFile:         "conf/token.txt",
			RequestsPerSecond: 1,
			Timeout:           60 * time.Second,
		},
		Redis: Redis{TTL: 10 * time.Minute},
		Sync: Sync{
			UserStale:     10 * 24 * time.Hour,
			GamesStale:    5 * time.Minute,
			InitialWindow: 10 * 24 * time.Hour,
			Interval:      30 * time.Minute,
			MaxConcurrent: 2,
		},
		Log:       Log{Level: "info", Format: "console"},
		RateLimit: RateLimit{PerMinute: 120, Burst: 30},
	}
}

// Load reads the YAML file at path (CHESSINSIGHT_CONFIG or conf/config.yaml
// when path is empty) and then applies environment overrides. A missing file
// is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = getenv("CHESSINSIGHT_CONFIG", DefaultPath)
	}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
		cfg.Path = path
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if cfg.Database.URL == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.URL = filepath.Join(cfg.DataDir, "chessinsight.sqlite")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str(&c.ListenAddr, "CHESSINSIGHT_LISTEN_ADDR")
	str(&c.DataDir, "CHESSINSIGHT_DATA_DIR")
	str(&c.AdminToken, "CHESSINSIGHT_ADMIN_TOKEN")
	str(&c.Database.Driver, "CHESSINSIGHT_DB_DRIVER")
	str(&c.Database.URL, "CHESSINSIGHT_DB_URL", "DATABASE_URL")
	str(&c.Lichess.BaseURL, "CHESSINSIGHT_LICHESS_URL")
	str(&c.Lichess.Token, "LICHESS_TOKEN")
	str(&c.Lichess.TokenFile, "CHESSINSIGHT_LICHESS_TOKEN_FILE")
	dur(&c.Lichess.Timeout, "CHESSINSIGHT_LICHESS_TIMEOUT")
	if v := os.Getenv("CHESSINSIGHT_LICHESS_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CHESSINSIGHT_LICHESS_RPS: %w", err))
		} else {
			c.Lichess.RequestsPerSecond = f
		}
	}
	str(&c.Redis.URL, "REDIS_URL")
	dur(&c.Redis.TTL, "CHESSINSIGHT_REDIS_TTL")
	dur(&c.Sync.UserStale, "CHESSINSIGHT_USER_STALE")
	dur(&c.Sync.GamesStale, "CHESSINSIGHT_GAMES_STALE")
	dur(&c.Sync.InitialWindow, "CHESSINSIGHT_INITIAL_WINDOW")
	dur(&c.Sync.Interval, "SYNC_INTERVAL")
	num(&c.Sync.MaxConcurrent, "SYNC_MAX_CONCURRENT")
	str(&c.Log.Level, "LOG_LEVEL")
	str(&c.Log.Format, "LOG_FORMAT")
	str(&c.Log.File, "LOG_FILE")
	num(&c.RateLimit.PerMinute, "CHESSINSIGHT_RATE_LIMIT")
	num(&c.RateLimit.Burst, "CHESSINSIGHT_RATE_BURST")

	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var problems []string
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			problems = append(problems, "database.url is required for postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown database.driver %q", c.Database.Driver))
	}
	if c.Sync.Interval <= 0 {
		problems = append(problems, "sync.interval must be positive")
	}
	if c.Sync.UserStale <= 0 || c.Sync.GamesStale <= 0 || c.Sync.InitialWindow <= 0 {
		problems = append(problems, "sync thresholds must be positive")
	}
	if c.RateLimit.PerMinute < 0 {
		problems = append(problems, "rate_limit.per_minute must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getenv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
