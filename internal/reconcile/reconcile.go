package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/erroralex/Image-Generation-Toolbox-sub000/internal/library"
	"github.com/erroralex/Image-Generation-Toolbox-sub000/pkg/log"
)

// Reconciler walks a directory tree and repairs path/identity links after
// files moved on disk outside the application's knowledge. The walk is
// long-running and cancellable; every batch commit is a consistent
// checkpoint, so interruption never corrupts state.
type Reconciler struct {
	lib *library.Library
	log log.LoggerService
}

// Config contains configuration for a reconciliation run
type Config struct {
	Extensions []string // file suffixes treated as media (default: common image types)
	BatchSize  int      // repairs committed per transaction (default: 100)
	Workers    int      // concurrent hashers (default: runtime.NumCPU())

	// Progress, when set, is invoked after each committed batch with the
	// number of candidates applied so far and the total
	Progress func(done, total int)
}

// Stats reports what a run did
type Stats struct {
	Scanned  int32 // media files seen
	Skipped  int32 // already tracked at their current path
	Repaired int32 // identities whose path was rewritten
	Created  int32 // brand-new identities
	Failed   int32 // files that could not be hashed
	Duration time.Duration
}

// New creates a Reconciler over an open library
func New(lib *library.Library, logger log.LoggerService) *Reconciler {
	return &Reconciler{lib: lib, log: logger}
}

// Run reconciles every media file under root
func (r *Reconciler) Run(ctx context.Context, root string, config *Config) (*Stats, error) {
	if config == nil {
		config = &Config{}
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".png", ".jpg", ".jpeg", ".webp", ".gif"}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}

	startTime := time.Now()
	stats := &Stats{}

	files, err := discoverFiles(root, config.Extensions)
	if err != nil {
		return nil, err
	}
	stats.Scanned = int32(len(files))

	candidates, err := r.hashUntracked(ctx, files, config.Workers, stats)
	if err != nil {
		return nil, err
	}

	if err := r.applyBatches(ctx, candidates, config, stats); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(startTime)
	r.log.Info("reconciled %s: %d scanned, %d repaired, %d created, %d skipped, %d failed in %s",
		root, stats.Scanned, stats.Repaired, stats.Created, stats.Skipped, stats.Failed, stats.Duration)
	return stats, nil
}

// discoverFiles finds all media files under root, skipping hidden directories
func discoverFiles(root string, extensions []string) ([]string, error) {
	var files []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		for _, candidate := range extensions {
			if ext == candidate {
				files = append(files, path)
				return nil
			}
		}
		return nil
	})

	return files, err
}

// hashUntracked filters out already-tracked paths (the cheap check comes
// first, no rehash for the common case) and hashes the rest concurrently.
func (r *Reconciler) hashUntracked(ctx context.Context, files []string, workers int, stats *Stats) ([]library.Candidate, error) {
	var mu sync.Mutex
	candidates := make([]library.Candidate, 0)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, path := range files {
		select {
		case <-gctx.Done():
			return nil, gctx.Err()
		default:
		}

		if r.lib.IsTracked(gctx, path) {
			atomic.AddInt32(&stats.Skipped, 1)
			continue
		}

		path := path
		g.Go(func() error {
			hash, err := library.HashFile(path)
			if err != nil {
				// Unreadable files are counted, not fatal
				atomic.AddInt32(&stats.Failed, 1)
				r.log.Warn("failed to hash %s: %v", path, err)
				return nil
			}
			mu.Lock()
			candidates = append(candidates, library.Candidate{Path: path, Hash: hash})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// applyBatches runs move detection over the candidates, committing every
// batch so transaction size stays bounded on large trees
func (r *Reconciler) applyBatches(ctx context.Context, candidates []library.Candidate, config *Config, stats *Stats) error {
	for start := 0; start < len(candidates); start += config.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + config.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		repaired, created, err := r.lib.RepairBatch(ctx, candidates[start:end])
		if err != nil {
			return err
		}
		atomic.AddInt32(&stats.Repaired, int32(repaired))
		atomic.AddInt32(&stats.Created, int32(created))

		if config.Progress != nil {
			config.Progress(end, len(candidates))
		}
	}
	return nil
}
