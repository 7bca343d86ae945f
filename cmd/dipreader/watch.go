package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/indexer"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a package directory and re-index on manifest changes",
	Long: `Watches the package directory and triggers a full re-index whenever the
manifest or a sidecar changes. Bursts of filesystem events collapse into one
run; events arriving during a run schedule exactly one follow-up.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var debounce time.Duration

func init() {
	watchCmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "Quiet period before re-indexing")
}

func runWatch(cmd *cobra.Command, args []string) error {
	root := cfg.Archive.Root
	if len(args) > 0 {
		root = args[0]
	}

	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()
	ix := indexer.New(s.store, s.semantic)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the root and every directory below it; fsnotify is not recursive.
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var group singleflight.Group
	reindex := func() {
		// Concurrent triggers collapse into the in-flight run.
		_, err, _ := group.Do("reindex", func() (interface{}, error) {
			stats, err := ix.Reindex(ctx, root)
			if err != nil {
				return nil, err
			}
			logger.Info("Re-index complete",
				zap.Int("documents", stats.Documents),
				zap.Int("embedded", stats.Embedded),
				zap.Int("failures", stats.Failures))
			return stats, nil
		})
		if err != nil {
			logger.Error("Re-index failed", zap.Error(err))
		}
	}

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", root)
	reindex()

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	schedule := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Stopped.")
			return nil
		case <-fire:
			reindex()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event) {
				continue
			}
			logger.Debug("Package changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			// New directories need their own watch before their files change.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			schedule()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

// relevantEvent filters out noise that cannot change the archive: chmods and
// the store's own database files.
func relevantEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Base(event.Name)
	switch filepath.Ext(name) {
	case ".db", ".db-wal", ".db-shm", ".log":
		return false
	}
	return true
}
