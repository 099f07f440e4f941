// Package config holds the runner configuration for the file watcher
// daemon, loaded from CLI flags, an optional YAML file, and environment
// variables.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/maverikod/vvz-file-watcher/pkg/version"
)

// NoSpawnEnvVar is the environment flag the runner sets before constructing
// a catalog adapter, signaling "do not spawn a catalog worker from this
// process".
const NoSpawnEnvVar = "VVZ_FILE_WATCHER_DB_WORKER_NO_SPAWN"

// Config holds the runner configuration.
type Config struct {
	DBPath         string   `mapstructure:"db-path"`
	WatchDirs      []string `mapstructure:"watch-dirs"`
	LocksDir       string   `mapstructure:"locks-dir"`
	ScanInterval   int      `mapstructure:"scan-interval"`
	VersionDir     string   `mapstructure:"version-dir"`
	IgnorePatterns []string `mapstructure:"ignore-patterns"`

	WorkerLogPath  string `mapstructure:"worker-log-path"`
	LogMaxBytes    int64  `mapstructure:"log-max-bytes"`
	LogBackupCount int    `mapstructure:"log-backup-count"`

	// LiveTrigger supplements periodic scanning with an optional fsnotify
	// fast path; off by default, never required for correctness.
	LiveTriggerEnabled  bool `mapstructure:"live-trigger-enabled"`
	LiveTriggerDebounce int  `mapstructure:"live-trigger-debounce-ms"`
}

// Load parses CLI flags (and an optional --config YAML file / environment
// variables under the FILEWATCHER_ prefix) into a Config.
func Load() (*Config, error) {
	pflag.String("config", "", "Path to YAML configuration file")

	pflag.String("db-path", "./filewatcher.db", "Absolute path to the catalog database file")
	pflag.StringSlice("watch-dirs", nil, "Absolute directories to watch for projects (repeatable)")
	pflag.String("locks-dir", "./locks", "Directory for inter-process lock files")
	pflag.Int("scan-interval", 60, "Seconds between successive scan cycles")
	pflag.String("version-dir", "", "Directory for archived deletions (deletions are errors if unset)")
	pflag.StringSlice("ignore-patterns", nil, "Additional glob patterns to exclude from scanning")

	pflag.String("worker-log-path", "", "Optional rotating log file path")
	pflag.Int64("log-max-bytes", 10*1024*1024, "Log rotation size threshold in bytes")
	pflag.Int("log-backup-count", 5, "Number of rotated log generations to keep")

	pflag.Bool("live-trigger-enabled", false, "Enable an fsnotify-based fast path alongside periodic scanning")
	pflag.Int("live-trigger-debounce-ms", 300, "Debounce window in milliseconds for the live-trigger fast path")

	flag.Bool("version", false, "Print version and exit")
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	if ver := pflag.Lookup("version"); ver != nil && ver.Value.String() == "true" {
		fmt.Println(version.Describe())
		os.Exit(0)
	}

	v := viper.New()

	configPath := pflag.Lookup("config").Value.String()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	} else if homeDir, err := os.UserHomeDir(); err == nil {
		standardPath := standardConfigPath(homeDir)
		if _, statErr := os.Stat(standardPath); statErr == nil {
			v.SetConfigFile(standardPath)
			if err := v.ReadInConfig(); err == nil {
				slog.Info("config: using configuration file from standard location", "path", standardPath)
			}
		}
	}

	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return nil, fmt.Errorf("config: bind pflags: %w", err)
	}

	v.SetEnvPrefix("FILEWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func standardConfigPath(homeDir string) string {
	if runtime.GOOS == "darwin" {
		return filepath.Join(homeDir, "Library", "Application Support", "vvz-file-watcher", "config.yaml")
	}
	return filepath.Join(homeDir, ".config", "vvz-file-watcher", "config.yaml")
}

// Validate checks that the configuration is usable before the runner
// builds any manager from it.
func (c *Config) Validate() error {
	if len(c.WatchDirs) == 0 {
		return errors.New("config: at least one watch directory must be configured")
	}
	if c.LocksDir == "" {
		return errors.New("config: locks-dir must be set")
	}
	if c.ScanInterval <= 0 {
		return errors.New("config: scan-interval must be positive")
	}
	return nil
}

// SetupLogging configures slog to write structured text to stdout and,
// optionally, a size-rotated worker log file. The returned closer owns the
// rotating file handle.
func (c *Config) SetupLogging() (io.Closer, error) {
	writers := []io.Writer{os.Stdout}
	var closer io.Closer = nopCloser{}

	if c.WorkerLogPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.WorkerLogPath), 0o755); err != nil {
			return nil, fmt.Errorf("config: create dir for worker log: %w", err)
		}
		rl := &lumberjack.Logger{
			Filename:   c.WorkerLogPath,
			MaxSize:    int(maxBytesToMegabytes(c.LogMaxBytes)),
			MaxBackups: c.LogBackupCount,
			Compress:   false,
		}
		writers = append(writers, rl)
		closer = rl
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	return closer, nil
}

// maxBytesToMegabytes converts the byte-denominated log-max-bytes option
// into lumberjack's MB-denominated MaxSize, rounding up so a configured
// threshold is never silently loosened; a zero or sub-MB value rounds up to
// 1 MB, lumberjack's own minimum granularity.
func maxBytesToMegabytes(maxBytes int64) int64 {
	const mib = 1024 * 1024
	mb := (maxBytes + mib - 1) / mib
	if mb < 1 {
		mb = 1
	}
	return mb
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
