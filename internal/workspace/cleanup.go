package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"captioner/internal/logging"
)

// CleanResult contains the outcome of a stale workspace sweep.
type CleanResult struct {
	Removed []string
	Skipped []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes job workspaces under root older than maxAge whose lock
// is free. A held lock means a running job owns the directory, whatever its age.
func CleanStale(ctx context.Context, root string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	result := CleanResult{}
	if logger == nil {
		logger = logging.NewNop()
	}

	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}

		dirPath := filepath.Join(root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		lock := flock.New(filepath.Join(dirPath, lockFileName))
		locked, err := lock.TryLock()
		if err != nil || !locked {
			result.Skipped = append(result.Skipped, dirPath)
			logger.Debug("skipping locked workspace", logging.String("path", dirPath))
			continue
		}

		err = os.RemoveAll(dirPath)
		_ = lock.Unlock()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logging.WarnWithContext(logger, "failed to remove stale workspace", "workspace_cleanup_failed",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check workspace_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logger.Info("removed stale workspace",
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "workspace_cleanup"),
		)
	}

	return result
}

// DirInfo contains metadata about a workspace directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
	Locked  bool
}

// List returns every job workspace under root with its size and lock state.
func List(root string) ([]DirInfo, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirPath := filepath.Join(root, entry.Name())
		size, _ := dirSize(dirPath)
		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
			Locked:  isLocked(dirPath),
		})
	}
	return dirs, nil
}

func isLocked(dir string) bool {
	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return true
	}
	if locked {
		_ = lock.Unlock()
		return false
	}
	return true
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
