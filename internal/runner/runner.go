// Package runner drives the file-watcher cycle: project discovery, scan,
// delta, and queue across every watched root, on a schedule with
// catalog-availability backoff. The whole loop is cooperative and
// single-goroutine; a stop channel is polled at every sleep tick.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/maverikod/vvz-file-watcher/internal/catalog"
	"github.com/maverikod/vvz-file-watcher/internal/delta"
	"github.com/maverikod/vvz-file-watcher/internal/ignore"
	"github.com/maverikod/vvz-file-watcher/internal/lock"
	"github.com/maverikod/vvz-file-watcher/internal/pathutil"
	"github.com/maverikod/vvz-file-watcher/internal/project"
	"github.com/maverikod/vvz-file-watcher/internal/queue"
	"github.com/maverikod/vvz-file-watcher/internal/scanner"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second

	// lockOwnerID scopes every watched root's lock under one subdirectory:
	// this process is the lock manager's only owner, regardless of how many
	// roots it watches.
	lockOwnerID = "filewatcher"
)

// state is the runner's internal scheduling state.
type state int

const (
	stateInit state = iota
	stateConnecting
	stateRunning
	stateStopping
	stateDone
)

// Stats is the statistics object returned when the runner stops.
type Stats struct {
	ScannedDirs  int
	NewFiles     int
	ChangedFiles int
	DeletedFiles int
	Errors       int
	Cycles       int
	WatchDirs    int
}

// CatalogOpener constructs a fresh catalog handle; it is called once per
// CONNECTING attempt so the runner can recover from a dropped connection
// without the caller managing reconnection itself.
type CatalogOpener func(ctx context.Context) (catalog.Catalog, error)

// Runner drives one worker process's cycle loop.
type Runner struct {
	Open         CatalogOpener
	WatchDirs    []string
	LocksDir     string
	ScanInterval time.Duration
	VersionDir   string
	IgnorePolicy *ignore.Policy

	// WakeEarly is optional: when set (e.g. to a livetrigger.Trigger's
	// Changed() channel), a receive on it cuts the scan_interval sleep short.
	// It never bypasses the scan→delta→queue pipeline, only schedules it
	// sooner.
	WakeEarly <-chan struct{}

	stop chan struct{}

	stats Stats

	cat         catalog.Catalog
	dbAvailable bool
	dbLogged    bool
	backoff     time.Duration
}

// New builds a Runner. watchDirs must already be normalized absolute paths.
func New(open CatalogOpener, watchDirs []string, locksDir string, scanInterval time.Duration, versionDir string, ignorePolicy *ignore.Policy) *Runner {
	return &Runner{
		Open:         open,
		WatchDirs:    watchDirs,
		LocksDir:     locksDir,
		ScanInterval: scanInterval,
		VersionDir:   versionDir,
		IgnorePolicy: ignorePolicy,
		stop:         make(chan struct{}),
		backoff:      initialBackoff,
		stats:        Stats{WatchDirs: len(watchDirs)},
	}
}

// Stop signals the runner to exit at its next sleep tick or cycle boundary.
// Single-shot: calling it twice panics on a closed channel.
func (r *Runner) Stop() {
	close(r.stop)
}

// Run executes the INIT → CONNECTING ⇄ RUNNING → STOPPING → DONE loop until
// Stop is called, returning the accumulated statistics.
func (r *Runner) Run(ctx context.Context) Stats {
	st := stateInit
	for {
		select {
		case <-r.stop:
			if st != stateDone {
				st = stateStopping
			}
		default:
		}

		switch st {
		case stateInit:
			st = stateConnecting

		case stateConnecting:
			cat, err := r.Open(ctx)
			if err != nil {
				r.logAvailability(false, err)
				if r.sleepInterruptible(r.backoff) {
					st = stateStopping
					continue
				}
				r.backoff *= 2
				if r.backoff > maxBackoff {
					r.backoff = maxBackoff
				}
				continue
			}
			r.cat = cat
			r.backoff = initialBackoff
			r.logAvailability(true, nil)
			st = stateRunning

		case stateRunning:
			catalogLost := r.runCycle(ctx)
			if catalogLost {
				r.cat.Close()
				r.cat = nil
				st = stateConnecting
				continue
			}
			if r.sleepScanInterval() {
				st = stateStopping
			}

		case stateStopping:
			if r.cat != nil {
				r.cat.Close()
				r.cat = nil
			}
			st = stateDone

		case stateDone:
			return r.stats
		}
	}
}

// sleepInterruptible sleeps for d, polling the stop flag once per second,
// returning true iff Stop fired during the sleep.
func (r *Runner) sleepInterruptible(d time.Duration) bool {
	tick := time.Second
	elapsed := time.Duration(0)
	for elapsed < d {
		select {
		case <-r.stop:
			return true
		default:
		}
		wait := tick
		if d-elapsed < tick {
			wait = d - elapsed
		}
		time.Sleep(wait)
		elapsed += wait
	}
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// sleepScanInterval sleeps for ScanInterval like sleepInterruptible, but
// also returns early (without stopping) if WakeEarly fires — the only point
// where the optional live-trigger fast path influences scheduling.
func (r *Runner) sleepScanInterval() bool {
	if r.WakeEarly == nil {
		return r.sleepInterruptible(r.ScanInterval)
	}
	select {
	case <-r.stop:
		return true
	case <-r.WakeEarly:
		return false
	case <-time.After(r.ScanInterval):
		return false
	}
}

// logAvailability logs a catalog availability transition exactly once; a
// repeated failure in the same state stays silent.
func (r *Runner) logAvailability(available bool, err error) {
	if r.dbLogged && r.dbAvailable == available {
		return
	}
	r.dbAvailable = available
	r.dbLogged = true
	if available {
		slog.Info("runner: catalog is now available")
	} else {
		slog.Warn("runner: catalog is now unavailable", "error", err)
	}
}

// runCycle processes every watched root sequentially, logging a cycle
// summary at the end. It returns true if the cycle's errors indicate the
// catalog connection itself was lost (CATALOG_LOST transition).
func (r *Runner) runCycle(ctx context.Context) bool {
	r.stats.Cycles++
	cycleStats := Stats{}
	var catalogErr error

	for _, root := range r.WatchDirs {
		err := r.scanWatchDir(ctx, root, &cycleStats)
		if err != nil {
			cycleStats.Errors++
			if isCatalogConnectionError(err) {
				catalogErr = err
			}
		}
	}

	r.stats.ScannedDirs += cycleStats.ScannedDirs
	r.stats.NewFiles += cycleStats.NewFiles
	r.stats.ChangedFiles += cycleStats.ChangedFiles
	r.stats.DeletedFiles += cycleStats.DeletedFiles
	r.stats.Errors += cycleStats.Errors

	slog.Info("runner: cycle summary",
		"cycle", r.stats.Cycles,
		"watch_dirs", len(r.WatchDirs),
		"scanned_dirs", cycleStats.ScannedDirs,
		"new_files", cycleStats.NewFiles,
		"changed_files", cycleStats.ChangedFiles,
		"deleted_files", cycleStats.DeletedFiles,
		"errors", cycleStats.Errors,
	)

	if catalogErr != nil {
		r.logAvailability(false, catalogErr)
		return true
	}
	return false
}

// scanWatchDir processes one watched root: acquire its lock, discover
// projects, scan, compute deltas, and apply them.
func (r *Runner) scanWatchDir(ctx context.Context, watchDir string, cycleStats *Stats) error {
	norm, err := pathutil.NormalizeDir(watchDir)
	if err != nil {
		slog.Error("runner: skipping watch dir", "watch_dir", watchDir, "error", err)
		return err
	}

	mgr, err := lock.New(r.LocksDir, lockOwnerID)
	if err != nil {
		return fmt.Errorf("runner: build lock manager: %w", err)
	}
	acquired, err := mgr.Acquire(norm, os.Getpid())
	if err != nil {
		if errors.Is(err, lock.ErrBusy) {
			slog.Warn("runner: watch dir locked by another process, skipping this cycle", "watch_dir", norm)
			return err
		}
		return fmt.Errorf("runner: acquire lock: %w", err)
	}
	if !acquired {
		return lock.ErrBusy
	}
	defer mgr.Release(norm)

	projects, skipped, err := project.Discover(norm)
	if err != nil {
		slog.Error("runner: project enumeration failed, no catalog writes attempted for this root", "watch_dir", norm, "error", err)
		return err
	}
	cycleStats.Errors += len(skipped)

	if err := r.syncProjects(ctx, projects); err != nil {
		return err
	}

	sc := scanner.New(r.IgnorePolicy, r.WatchDirs)
	scanned, err := sc.Scan(norm)
	if err != nil {
		return fmt.Errorf("runner: scan %s: %w", norm, err)
	}
	cycleStats.ScannedDirs++

	eng := delta.New(r.cat)
	deltas, deltaErrs := eng.Compute(ctx, scanned)
	cycleStats.Errors += len(deltaErrs)
	for _, derr := range deltaErrs {
		if isCatalogConnectionError(derr) {
			return derr
		}
	}

	q := queue.New(r.cat, r.VersionDir)
	for _, p := range projects {
		d, ok := deltas[p.ID]
		if !ok {
			continue
		}
		stats, err := q.Apply(ctx, p.ID, p.RootPath, d)
		cycleStats.NewFiles += stats.NewFiles
		cycleStats.ChangedFiles += stats.ChangedFiles
		cycleStats.DeletedFiles += stats.DeletedFiles
		cycleStats.Errors += stats.Errors
		if err != nil {
			return err
		}
	}

	return nil
}

// syncProjects reconciles the catalog's project rows with what was
// discovered on disk this cycle. A conflicting identity (same id bound to a
// different root_path, or vice versa) is refused and logged; the catalog's
// primary key is never rewritten.
func (r *Runner) syncProjects(ctx context.Context, projects []project.Project) error {
	for _, p := range projects {
		existing, err := r.cat.GetProject(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("runner: get project %s: %w", p.ID, err)
		}

		if existing != nil {
			if existing.RootPath != p.RootPath {
				slog.Error("runner: refusing to reassign project id to a new root path",
					"project_id", p.ID, "catalog_root", existing.RootPath, "discovered_root", p.RootPath)
				continue
			}
			if existing.Description != p.Description {
				if err := r.cat.UpdateProjectDescription(ctx, p.ID, p.Description); err != nil {
					return fmt.Errorf("runner: update project description: %w", err)
				}
			}
			continue
		}

		if otherID, ok, err := r.cat.GetProjectID(ctx, p.RootPath); err != nil {
			return fmt.Errorf("runner: get project id by root: %w", err)
		} else if ok && otherID != p.ID {
			slog.Error("runner: refusing to rewrite project id for existing root path",
				"root", p.RootPath, "catalog_project_id", otherID, "discovered_project_id", p.ID)
			continue
		}

		if err := r.cat.CreateProject(ctx, p.ID, p.RootPath, p.RootPath, p.Description); err != nil {
			return fmt.Errorf("runner: create project: %w", err)
		}
	}
	return nil
}

// isCatalogConnectionError reports whether the catalog connection itself was
// lost, which drops the handle and re-enters the connecting state. The
// adapter wraps every connection-level failure in ErrUnavailable, so this is
// a variant check, not a message-text match.
func isCatalogConnectionError(err error) bool {
	return errors.Is(err, catalog.ErrUnavailable)
}
