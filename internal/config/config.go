package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/DoyleJ11/groupsync/internal/transport"
)

type Config struct {
	WSBaseURL string
	GroupID   string // auto-join on start when set together with Token
	Token     string

	ListenAddr  string
	LogLevel    string
	LibraryPath string // JSON array of songs for the virtual player

	DriftThreshold  time.Duration
	MaxNetworkDelay time.Duration
	SinkTimeout     time.Duration

	Reconnect struct {
		Enabled      bool
		MaxAttempts  int
		InitialDelay time.Duration
		MaxDelay     time.Duration
	}
}

func Default() *Config {
	cfg := &Config{
		WSBaseURL:       "ws://localhost:8080",
		ListenAddr:      "127.0.0.1:7070",
		LogLevel:        "info",
		DriftThreshold:  time.Second,
		MaxNetworkDelay: 5 * time.Second,
		SinkTimeout:     5 * time.Second,
	}
	cfg.Reconnect.Enabled = true
	cfg.Reconnect.MaxAttempts = 10
	cfg.Reconnect.InitialDelay = time.Second
	cfg.Reconnect.MaxDelay = 30 * time.Second
	return cfg
}

// Load reads the optional .env files (default ./.env), then GROUPSYNC_* variables over the
// defaults. Variables already set in the environment win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := Default()
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("GROUPSYNC_WS_BASE_URL", &cfg.WSBaseURL)
	str("GROUPSYNC_GROUP_ID", &cfg.GroupID)
	str("GROUPSYNC_TOKEN", &cfg.Token)
	str("GROUPSYNC_LISTEN_ADDR", &cfg.ListenAddr)
	str("GROUPSYNC_LOG_LEVEL", &cfg.LogLevel)
	str("GROUPSYNC_LIBRARY", &cfg.LibraryPath)
	dur("GROUPSYNC_DRIFT_THRESHOLD", &cfg.DriftThreshold)
	dur("GROUPSYNC_MAX_NETWORK_DELAY", &cfg.MaxNetworkDelay)
	dur("GROUPSYNC_SINK_TIMEOUT", &cfg.SinkTimeout)
	flag("GROUPSYNC_RECONNECT", &cfg.Reconnect.Enabled)
	num("GROUPSYNC_RECONNECT_MAX_ATTEMPTS", &cfg.Reconnect.MaxAttempts)
	dur("GROUPSYNC_RECONNECT_INITIAL_DELAY", &cfg.Reconnect.InitialDelay)
	dur("GROUPSYNC_RECONNECT_MAX_DELAY", &cfg.Reconnect.MaxDelay)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and normalizes the socket base URL.
func (c *Config) Validate() error {
	var errs []error
	u, err := transport.NormalizeWSURL(c.WSBaseURL)
	if err != nil {
		errs = append(errs, fmt.Errorf("ws base url: %w", err))
	} else {
		c.WSBaseURL = u
	}
	if (c.GroupID == "") != (c.Token == "") {
		errs = append(errs, errors.New("group id and token must be set together"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log level %q: want debug, info, warn or error", c.LogLevel))
	}
	if c.DriftThreshold <= 0 {
		errs = append(errs, errors.New("drift threshold must be positive"))
	}
	if c.MaxNetworkDelay < 0 {
		errs = append(errs, errors.New("max network delay must not be negative"))
	}
	if c.SinkTimeout <= 0 {
		errs = append(errs, errors.New("sink timeout must be positive"))
	}
	if c.Reconnect.InitialDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		errs = append(errs, errors.New("reconnect delays: need 0 < initial <= max"))
	}
	return errors.Join(errs...)
}
