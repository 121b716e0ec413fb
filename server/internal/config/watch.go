package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle coalesces the burst of events an editor produces for one save.
const settle = 50 * time.Millisecond

// Sections that only take effect on restart.
var restartSections = map[string]bool{"http_port": true, "auth": true, "ingest": true}

// Diff names the server sections that differ between a and b, in file order.
// A nil a differs in every section.
func Diff(a, b *Config) []string {
	if a == nil {
		return []string{"http_port", "auth", "log", "evaluation", "ingest", "alerts"}
	}
	sa, sb := a.Server, b.Server
	var out []string
	add := func(name string, x, y interface{}) {
		if !reflect.DeepEqual(x, y) {
			out = append(out, name)
		}
	}
	add("http_port", sa.HTTPPort, sb.HTTPPort)
	add("auth", sa.Auth, sb.Auth)
	add("log", sa.Log, sb.Log)
	add("evaluation", sa.Evaluation, sb.Evaluation)
	add("ingest", sa.Ingest, sb.Ingest)
	add("alerts", sa.Alerts, sb.Alerts)
	return out
}

// RestartRequired reports whether any of the changed sections is only read
// at startup.
func RestartRequired(changed []string) bool {
	for _, s := range changed {
		if restartSections[s] {
			return true
		}
	}
	return false
}

// Watch monitors path and calls onChange with the reloaded Config and the
// sections that changed since the last good load. It runs until ctx is
// cancelled.
//
// The parent directory is watched so atomic saves (write to a temp file,
// rename over path) are seen. A reload that fails validation or changes
// nothing is logged and skipped.
func Watch(ctx context.Context, path string, onChange func(cfg *Config, changed []string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	prev, err := Load(path)
	if err != nil {
		slog.Warn("config: initial load for watch failed", "path", path, "err", err)
	}
	slog.Info("config: watching for changes", "path", path)

	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(settle)

		case <-timer.C:
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			changed := Diff(prev, cfg)
			if len(changed) == 0 {
				slog.Debug("config: file rewritten without changes", "path", path)
				continue
			}
			prev = cfg

			slog.Info("config: reloaded", "path", path, "changed", changed)
			if RestartRequired(changed) {
				slog.Warn("config: some changes apply after restart", "changed", changed)
			}
			onChange(cfg, changed)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
