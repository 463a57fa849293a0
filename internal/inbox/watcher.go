// Package inbox imports export files dropped into a directory on a schedule.
//
// Each sweep imports the matching files in name order. A committed file is
// moved to imported/, a file that failed for its own reasons is moved to
// failed/ next to a .error note, and a file that only failed because the
// store or the importer was busy stays in place for the next sweep.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/xerimport/internal/config"
	"github.com/JonMunkholm/xerimport/internal/core"
	"github.com/robfig/cron/v3"
)

const (
	importedDir = "imported"
	failedDir   = "failed"
)

// Importer stores one export file.
type Importer interface {
	ImportFile(ctx context.Context, path string) (*core.ImportResult, error)
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Imported int
	Failed   int
	Deferred int
}

// Watcher runs inbox sweeps on a cron schedule.
type Watcher struct {
	dir      string
	ext      string
	schedule string
	importer Importer
	cron     *cron.Cron
	now      func() time.Time

	// committed holds files whose import committed but which could not be
	// moved out of the inbox. They are never imported again while unchanged.
	mu        sync.Mutex
	committed map[string]fileStamp
}

// fileStamp identifies one version of a file on disk.
type fileStamp struct {
	size    int64
	modTime time.Time
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{size: info.Size(), modTime: info.ModTime()}
}

func (s fileStamp) matches(info os.FileInfo) bool {
	return s.size == info.Size() && s.modTime.Equal(info.ModTime())
}

// New creates a watcher for cfg.Dir. The schedule is checked here so a bad
// expression fails at startup.
func New(cfg config.InboxConfig, importer Importer) (*Watcher, error) {
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("inbox schedule %q: %w", cfg.Schedule, err)
	}
	return &Watcher{
		dir:      cfg.Dir,
		ext:      cfg.Extension,
		schedule: cfg.Schedule,
		importer: importer,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		now:      time.Now,

		committed: make(map[string]fileStamp),
	}, nil
}

// Start runs one sweep right away and then schedules the rest.
// Sweeps stop when ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.prepare(); err != nil {
		return err
	}
	if _, err := w.cron.AddFunc(w.schedule, func() { w.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule inbox sweep: %w", err)
	}

	slog.Info("inbox watcher started", "dir", w.dir, "schedule", w.schedule, "extension", w.ext)
	w.Sweep(ctx)
	w.cron.Start()
	return nil
}

// Stop halts scheduling and returns a context that is done once any
// running sweep has finished.
func (w *Watcher) Stop() context.Context {
	ctx := w.cron.Stop()
	slog.Info("inbox watcher stopped")
	return ctx
}

// Sweep imports every pending file in the inbox once.
func (w *Watcher) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	start := time.Now()

	files, err := w.pending()
	if err != nil {
		slog.Error("inbox sweep failed", "dir", w.dir, "error", err)
		return res
	}
	if len(files) == 0 {
		slog.Debug("inbox empty", "dir", w.dir)
		return res
	}

	for _, path := range files {
		if ctx.Err() != nil {
			break
		}

		result, err := w.importer.ImportFile(ctx, path)
		switch {
		case err == nil:
			res.Imported++
			if mvErr := w.move(path, importedDir); mvErr != nil {
				slog.Error("could not move imported file, it will not be imported again",
					"file", path, "import_id", result.ImportID, "error", mvErr)
				w.remember(path)
			}
		case deferrable(err):
			res.Deferred++
			slog.Warn("import deferred to next sweep", "file", path, "reason", core.FormatUserError(err))
		default:
			res.Failed++
			w.quarantine(path, err)
		}
	}

	slog.Info("inbox sweep complete",
		"imported", res.Imported,
		"failed", res.Failed,
		"deferred", res.Deferred,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}

// deferrable reports failures that say nothing about the file itself.
func deferrable(err error) bool {
	return errors.Is(err, core.ErrTooManyImports) ||
		errors.Is(err, core.ErrStoreBusy) ||
		errors.Is(err, context.Canceled)
}

func (w *Watcher) prepare() error {
	for _, d := range []string{w.dir, filepath.Join(w.dir, importedDir), filepath.Join(w.dir, failedDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create inbox directory: %w", err)
		}
	}
	return nil
}

// pending lists regular files with the inbox extension, sorted by name.
func (w *Watcher) pending() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if core.CheckExtension(path, w.ext) != nil {
			continue
		}
		if w.alreadyCommitted(path) {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// remember records a committed file that is still in the inbox.
func (w *Watcher) remember(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.committed[path] = stampOf(info)
	w.mu.Unlock()
}

// alreadyCommitted reports whether path is an unchanged, already imported
// file, retrying its move to imported/ on the way. A file replaced since
// its import is forgotten and imported again.
func (w *Watcher) alreadyCommitted(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	stamp, ok := w.committed[path]
	if !ok {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || !stamp.matches(info) {
		delete(w.committed, path)
		return false
	}
	if err := w.move(path, importedDir); err == nil {
		delete(w.committed, path)
	}
	return true
}

func (w *Watcher) quarantine(path string, cause error) {
	slog.Error("import failed, moving file aside", "file", path, "error", cause)

	dest, err := w.moveTo(path, failedDir)
	if err != nil {
		slog.Error("could not move failed file", "file", path, "error", err)
		return
	}

	note := fmt.Sprintf("%s\n%s\n%v\n", w.now().UTC().Format(time.RFC3339), core.FormatUserError(cause), cause)
	if err := os.WriteFile(dest+".error", []byte(note), 0o644); err != nil {
		slog.Warn("could not write failure note", "file", dest, "error", err)
	}
}

func (w *Watcher) move(path, sub string) error {
	_, err := w.moveTo(path, sub)
	return err
}

// moveTo renames path into a subdirectory of the inbox, suffixing the name
// with a timestamp if a file of that name is already there.
func (w *Watcher) moveTo(path, sub string) (string, error) {
	name := filepath.Base(path)
	dest := filepath.Join(w.dir, sub, name)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(name)
		stamp := w.now().UTC().Format("20060102T150405.000000000")
		dest = filepath.Join(w.dir, sub, strings.TrimSuffix(name, ext)+"-"+stamp+ext)
	}
	if err := os.Rename(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}
