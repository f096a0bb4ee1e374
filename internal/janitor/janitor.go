package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/studieo-app/studieo-api/internal/objectstore"
	"github.com/studieo-app/studieo-api/internal/storage"
)

// batchSize caps how many orphans one cycle retries
const batchSize = 100

// Janitor retries deletes of storage objects that a compensating
// rollback failed to remove. Each cycle drains the recorded orphans; a
// path stays recorded until its delete succeeds.
type Janitor struct {
	repo     storage.Repository
	store    objectstore.Store
	interval time.Duration
}

// NewJanitor creates a new orphaned file janitor
func NewJanitor(repo storage.Repository, store objectstore.Store, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	return &Janitor{
		repo:     repo,
		store:    store,
		interval: interval,
	}
}

// Start begins the janitor in a goroutine
func (j *Janitor) Start(ctx context.Context) {
	go j.run(ctx)
}

// run is the main loop for the janitor
func (j *Janitor) run(ctx context.Context) {
	slog.Info("janitor started", "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	j.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("janitor stopped")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// sweep retries one batch of orphaned deletes
func (j *Janitor) sweep(ctx context.Context) {
	slog.Debug("running janitor cycle")

	paths, err := j.repo.ListOrphanedFiles(ctx, batchSize)
	if err != nil {
		slog.Error("failed to list orphaned files", "error", err)
		return
	}

	if len(paths) == 0 {
		slog.Debug("no orphaned files found")
		return
	}

	slog.Info("found orphaned files", "count", len(paths))

	for _, path := range paths {
		if err := j.store.Remove(ctx, []string{path}); err != nil {
			slog.Error("failed to remove orphaned file", "error", err, "path", path)
			continue
		}

		if err := j.repo.DeleteOrphanedFile(ctx, path); err != nil {
			slog.Error("failed to clear orphaned file record", "error", err, "path", path)
			continue
		}

		slog.Info("orphaned file removed", "path", path)
	}
}
