// Package main is the entry point for the file-watcher daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maverikod/vvz-file-watcher/internal/catalog"
	"github.com/maverikod/vvz-file-watcher/internal/config"
	"github.com/maverikod/vvz-file-watcher/internal/ignore"
	"github.com/maverikod/vvz-file-watcher/internal/livetrigger"
	"github.com/maverikod/vvz-file-watcher/internal/pathutil"
	"github.com/maverikod/vvz-file-watcher/internal/runner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logCloser, err := cfg.SetupLogging()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	watchDirs := make([]string, 0, len(cfg.WatchDirs))
	for _, dir := range cfg.WatchDirs {
		norm, err := pathutil.NormalizeDir(dir)
		if err != nil {
			slog.Error("main: skipping unusable watch dir", "dir", dir, "error", err)
			continue
		}
		watchDirs = append(watchDirs, norm)
	}
	if len(watchDirs) == 0 {
		slog.Error("main: no usable watch directories, exiting")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy := ignore.New(cfg.IgnorePatterns, nil)

	dbPath := cfg.DBPath
	opener := func(ctx context.Context) (catalog.Catalog, error) {
		// The adapter must never spawn a catalog worker from this process;
		// the flag has to be visible before construction.
		os.Setenv(config.NoSpawnEnvVar, "1")

		cat, err := catalog.OpenSQLite(dbPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", catalog.ErrUnavailable, err)
		}
		cat.SetWatchDirs(watchDirs)
		if err := cat.Ping(ctx); err != nil {
			cat.Close()
			return nil, err
		}
		return cat, nil
	}

	r := runner.New(opener, watchDirs, cfg.LocksDir, time.Duration(cfg.ScanInterval)*time.Second, cfg.VersionDir, policy)

	if cfg.LiveTriggerEnabled {
		trigger, err := livetrigger.Start(ctx, watchDirs, time.Duration(cfg.LiveTriggerDebounce)*time.Millisecond)
		if err != nil {
			slog.Warn("main: live trigger disabled, failed to start", "error", err)
		} else {
			defer trigger.Stop()
			r.WakeEarly = trigger.Changed()
		}
	}

	go func() {
		<-ctx.Done()
		slog.Info("main: shutdown signal received, stopping runner")
		r.Stop()
	}()

	stats := r.Run(ctx)
	slog.Info("main: runner stopped",
		"cycles", stats.Cycles,
		"scanned_dirs", stats.ScannedDirs,
		"new_files", stats.NewFiles,
		"changed_files", stats.ChangedFiles,
		"deleted_files", stats.DeletedFiles,
		"errors", stats.Errors,
		"watch_dirs", stats.WatchDirs,
	)
}
