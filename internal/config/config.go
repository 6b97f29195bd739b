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

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	EnableCommands string
	Timeout        string
	Retries        int
	MaxStale       string
	NoStale        bool
	NoCache        bool
	FeedURL        string
	AggregatorURL  string
	WalletURL      string
	PollInterval   string
	GraceCycles    int
}

type Settings struct {
	OutputMode         string
	EnableCommands     []string
	Timeout            time.Duration
	Retries            int
	MaxStale           time.Duration
	NoStale            bool
	CacheEnabled       bool
	CachePath          string
	CacheLockPath      string
	TranscriptPath     string
	TranscriptLockPath string
	FeedURL            string
	AggregatorURL      string
	WalletURL          string
	PollInterval       time.Duration
	GraceCycles        uint
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Feed    struct {
		URL          string `yaml:"url"`
		PollInterval string `yaml:"poll_interval"`
		GraceCycles  *int   `yaml:"grace_cycles"`
	} `yaml:"feed"`
	Aggregator struct {
		URL string `yaml:"url"`
	} `yaml:"aggregator"`
	Wallet struct {
		URL string `yaml:"url"`
	} `yaml:"wallet"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		MaxStale string `yaml:"max_stale"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	Transcript struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"transcript"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.MaxStale < 0 {
		settings.MaxStale = 5 * time.Minute
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 30 * time.Second
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	cachePath, lockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode:         "json",
		Timeout:            10 * time.Second,
		Retries:            2,
		MaxStale:           5 * time.Minute,
		CacheEnabled:       true,
		CachePath:          cachePath,
		CacheLockPath:      lockPath,
		TranscriptPath:     filepath.Join(cacheDir, "transcript.db"),
		TranscriptLockPath: filepath.Join(cacheDir, "transcript.lock"),
		FeedURL:            "http://localhost:8000",
		AggregatorURL:      "http://localhost:8001",
		WalletURL:          "http://localhost:8010",
		PollInterval:       30 * time.Second,
		GraceCycles:        2,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "insight", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "insight")
	return filepath.Join(dir, "snapshots.db"), filepath.Join(dir, "snapshots.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Feed.URL != "" {
		settings.FeedURL = cfg.Feed.URL
	}
	if cfg.Feed.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Feed.PollInterval)
		if err != nil {
			return fmt.Errorf("config feed.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if cfg.Feed.GraceCycles != nil {
		if *cfg.Feed.GraceCycles < 0 {
			return fmt.Errorf("config feed.grace_cycles must be >= 0")
		}
		settings.GraceCycles = uint(*cfg.Feed.GraceCycles)
	}
	if cfg.Aggregator.URL != "" {
		settings.AggregatorURL = cfg.Aggregator.URL
	}
	if cfg.Wallet.URL != "" {
		settings.WalletURL = cfg.Wallet.URL
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.MaxStale != "" {
		d, err := time.ParseDuration(cfg.Cache.MaxStale)
		if err != nil {
			return fmt.Errorf("config cache.max_stale: %w", err)
		}
		settings.MaxStale = d
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.Transcript.Path != "" {
		settings.TranscriptPath = cfg.Transcript.Path
	}
	if cfg.Transcript.LockPath != "" {
		settings.TranscriptLockPath = cfg.Transcript.LockPath
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("INSIGHT_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("INSIGHT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("INSIGHT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("INSIGHT_FEED_URL"); v != "" {
		settings.FeedURL = v
	}
	if v := os.Getenv("INSIGHT_AGGREGATOR_URL"); v != "" {
		settings.AggregatorURL = v
	}
	if v := os.Getenv("INSIGHT_WALLET_URL"); v != "" {
		settings.WalletURL = v
	}
	if v := os.Getenv("INSIGHT_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.PollInterval = d
		}
	}
	if v := os.Getenv("INSIGHT_MAX_STALE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.MaxStale = d
		}
	}
	if v := os.Getenv("INSIGHT_NO_STALE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.NoStale = b
		}
	}
	if v := os.Getenv("INSIGHT_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("INSIGHT_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("INSIGHT_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("INSIGHT_TRANSCRIPT_PATH"); v != "" {
		settings.TranscriptPath = v
	}
	if v := os.Getenv("INSIGHT_TRANSCRIPT_LOCK_PATH"); v != "" {
		settings.TranscriptLockPath = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}

	if strings.TrimSpace(flags.EnableCommands) != "" {
		parts := strings.Split(flags.EnableCommands, ",")
		allowed := make([]string, 0, len(parts))
		for _, part := range parts {
			v := strings.TrimSpace(part)
			if v != "" {
				allowed = append(allowed, v)
			}
		}
		settings.EnableCommands = allowed
	}

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.MaxStale != "" {
		d, err := time.ParseDuration(flags.MaxStale)
		if err != nil {
			return fmt.Errorf("parse --max-stale: %w", err)
		}
		settings.MaxStale = d
	}
	if flags.NoStale {
		settings.NoStale = true
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if strings.TrimSpace(flags.FeedURL) != "" {
		settings.FeedURL = flags.FeedURL
	}
	if strings.TrimSpace(flags.AggregatorURL) != "" {
		settings.AggregatorURL = flags.AggregatorURL
	}
	if strings.TrimSpace(flags.WalletURL) != "" {
		settings.WalletURL = flags.WalletURL
	}
	if flags.PollInterval != "" {
		d, err := time.ParseDuration(flags.PollInterval)
		if err != nil {
			return fmt.Errorf("parse --poll-interval: %w", err)
		}
		settings.PollInterval = d
	}
	if flags.GraceCycles >= 0 {
		settings.GraceCycles = uint(flags.GraceCycles)
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}
