package ingest

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"hubward/internal/catalog"
	"hubward/internal/logging"
	"hubward/internal/watcher"
)

// PendingOperation describes one file a scan would ingest.
type PendingOperation struct {
	Path       string
	Size       int64
	DetectedAt time.Time
}

// DifferentialScan walks the watch root and synthesises Created events for
// files that appeared while the process was down. The pipeline's own
// hash-based dedup skips anything already catalogued, so the scan stays
// cheap: no hashing happens here.
func DifferentialScan(ctx context.Context, root string, enqueue func(watcher.FileEvent), logger *slog.Logger) (int, error) {
	scanLogger := logging.NewComponentLogger(logger, "scan")
	count := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || isHidden(entry.Name()) {
			return nil
		}
		enqueue(watcher.FileEvent{
			Path:       path,
			Type:       watcher.EventCreated,
			OccurredAt: time.Now().UTC(),
		})
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	scanLogger.Info("differential scan completed", logging.Int("files", count))
	return count, nil
}

// DryRunScan lists the operations a scan would perform without mutating
// anything. Files whose hash is already catalogued are omitted; because
// hashing every file would defeat the point of a dry run, membership is
// approximated by path root.
func DryRunScan(ctx context.Context, root string, store *catalog.Store) ([]PendingOperation, error) {
	var pending []PendingOperation
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || isHidden(entry.Name()) {
			return nil
		}
		existing, err := store.FindAssetByPathRoot(ctx, path)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		pending = append(pending, PendingOperation{
			Path:       path,
			Size:       info.Size(),
			DetectedAt: time.Now().UTC(),
		})
		return nil
	})
	return pending, err
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
