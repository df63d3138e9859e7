package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"captioner/internal/services"
)

const (
	dirPrefix    = "job-"
	lockFileName = ".lock"
	framesDir    = "frames"
	audioFile    = "audio.mka"
	outputFile   = "output.mp4"
)

// Manager creates workspaces under Root.
type Manager struct {
	Root string
}

// NewManager returns a manager rooted at root.
func NewManager(root string) *Manager {
	return &Manager{Root: strings.TrimSpace(root)}
}

// Workspace is one job's scratch directory.
type Workspace struct {
	ID        string
	Dir       string
	FramesDir string

	mu      sync.Mutex
	lock    *flock.Flock
	removed bool
}

// Create makes the workspace for jobID and takes its lock. An existing
// directory for the same ID is treated as a collision rather than reused.
func (m *Manager) Create(jobID string) (*Workspace, error) {
	jobID = strings.TrimSpace(jobID)
	if m == nil || m.Root == "" {
		return nil, services.Wrap(services.ErrWorkspace, "workspace", "create", "workspace root not configured", nil)
	}
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return nil, services.Wrap(services.ErrWorkspace, "workspace", "create", fmt.Sprintf("invalid job id %q", jobID), nil)
	}
	if err := os.MkdirAll(m.Root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrWorkspace, "workspace", "create", "create workspace root", err)
	}

	dir := filepath.Join(m.Root, dirPrefix+jobID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, services.Wrap(services.ErrWorkspace, "workspace", "create", "workspace already exists for job "+jobID, err)
		}
		return nil, services.Wrap(services.ErrWorkspace, "workspace", "create", "create job directory", err)
	}

	ws := &Workspace{
		ID:        jobID,
		Dir:       dir,
		FramesDir: filepath.Join(dir, framesDir),
		lock:      flock.New(filepath.Join(dir, lockFileName)),
	}
	locked, err := ws.lock.TryLock()
	if err != nil || !locked {
		_ = os.RemoveAll(dir)
		return nil, services.Wrap(services.ErrWorkspace, "workspace", "create", "lock job directory", err)
	}
	if err := os.Mkdir(ws.FramesDir, 0o755); err != nil {
		_ = ws.Remove()
		return nil, services.Wrap(services.ErrWorkspace, "workspace", "create", "create frames directory", err)
	}
	return ws, nil
}

// AudioPath is where the extracted audio track is written.
func (w *Workspace) AudioPath() string { return filepath.Join(w.Dir, audioFile) }

// OutputPath is where the encoder writes before delivery.
func (w *Workspace) OutputPath() string { return filepath.Join(w.Dir, outputFile) }

// Remove deletes the workspace and releases its lock. Calling it again is a
// no-op, so it is safe to defer alongside explicit cleanup.
func (w *Workspace) Remove() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removed {
		return nil
	}
	removeErr := os.RemoveAll(w.Dir)
	var unlockErr error
	if w.lock != nil {
		unlockErr = w.lock.Unlock()
	}
	if removeErr != nil {
		return services.Wrap(services.ErrWorkspace, "workspace", "remove", w.Dir, removeErr)
	}
	w.removed = true
	if unlockErr != nil {
		return services.Wrap(services.ErrWorkspace, "workspace", "remove", "release lock", unlockErr)
	}
	return nil
}
