package config

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/latticedb/resolver/internal/resolver"
)

// debounceDelay matches the teacher's own file-watch debounce window
// (cmd/bd's watchIssues): rapid successive writes from an editor's save
// collapse into one reload instead of one per fsync.
const debounceDelay = 500 * time.Millisecond

// WatchRules watches the directory containing rulesPath and invokes reload
// with the freshly parsed rule spec every time the file's content changes,
// until ctx is cancelled. Parse errors are logged and skipped — a bad edit
// never tears down the already-running ruleset.
func WatchRules(ctx context.Context, rulesPath string, reload func(map[string]resolver.TableRuleSpec)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(rulesPath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer func() { _ = watcher.Close() }()

		var debounce *time.Timer
		fire := func() {
			spec, err := LoadRules(rulesPath)
			if err != nil {
				log.Printf("config: rules.yaml reload failed, keeping previous ruleset: %v", err)
				return
			}
			reload(spec)
		}

		for {
			select {
			case <-ctx.Done():
				if debounce != nil {
					debounce.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filepath.Base(rulesPath) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, fire)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config: watcher error on %s: %v", dir, err)
			}
		}
	}()

	return nil
}
