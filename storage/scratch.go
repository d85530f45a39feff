package storage

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nijaru/interview-feedback/errors"
	"github.com/nijaru/interview-feedback/utils"
	"github.com/sirupsen/logrus"
)

const (
	scratchPrefix = "temp_"

	// keeps prefix + name + "_frames" well under NAME_MAX
	maxOriginalName = 100
)

// Store is the local scratch area for in-flight uploads.
type Store struct {
	dir    string
	logger *logrus.Logger
	now    func() time.Time
}

func NewStore(dir string, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.IO("Store.New", err, "failed to prepare scratch directory")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{dir: dir, logger: logger, now: time.Now}, nil
}

func (s *Store) Dir() string { return s.dir }

// NewWorkspace reserves a uniquely named slot for one request. Nothing is
// written until SaveVideo or FrameDir is called.
func (s *Store) NewWorkspace(originalName string) *Workspace {
	name := fmt.Sprintf("%s%d_%s_%s",
		scratchPrefix,
		s.now().UnixMilli(),
		uuid.New().String()[:8],
		utils.TruncateFilename(utils.SanitizeFilename(originalName), maxOriginalName),
	)
	return &Workspace{
		store:     s,
		name:      name,
		videoPath: filepath.Join(s.dir, name),
		frameDir:  filepath.Join(s.dir, name+"_frames"),
	}
}

// Workspace owns every scratch artifact of a single request.
type Workspace struct {
	store     *Store
	name      string
	videoPath string
	frameDir  string

	mu       sync.Mutex
	created  []string
	once     sync.Once
	released error
}

func (w *Workspace) Name() string      { return w.name }
func (w *Workspace) VideoPath() string { return w.videoPath }

// SaveVideo streams r into the workspace's video file and returns the bytes written.
func (w *Workspace) SaveVideo(r io.Reader) (int64, error) {
	const op = "Workspace.SaveVideo"

	f, err := os.OpenFile(w.videoPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, errors.IO(op, err, "failed to create scratch file")
	}
	w.track(w.videoPath)

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, errors.IO(op, err, "failed to write scratch file")
	}
	return n, nil
}

// FrameDir creates and returns the directory frames are extracted into.
func (w *Workspace) FrameDir() (string, error) {
	const op = "Workspace.FrameDir"

	if err := os.MkdirAll(w.frameDir, 0o700); err != nil {
		return "", errors.IO(op, err, "failed to create frame directory")
	}
	w.track(w.frameDir)
	return w.frameDir, nil
}

func (w *Workspace) track(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.created {
		if p == path {
			return
		}
	}
	w.created = append(w.created, path)
}

// Release removes everything the workspace created. Later calls return the
// first call's result. Artifacts that are already gone are not errors.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		w.mu.Lock()
		paths := append([]string(nil), w.created...)
		w.mu.Unlock()

		var errs []error
		for i := len(paths) - 1; i >= 0; i-- {
			if err := os.RemoveAll(paths[i]); err != nil && !os.IsNotExist(err) {
				w.store.logger.WithFields(logrus.Fields{
					"path":  paths[i],
					"error": err,
				}).Warn("Failed to remove scratch artifact")
				errs = append(errs, err)
			}
		}
		w.released = stderrors.Join(errs...)
	})
	return w.released
}

// Sweep removes scratch artifacts older than maxAge, left behind by a previous
// process that exited mid-request. It returns how many entries were removed.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	const op = "Store.Sweep"

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, errors.IO(op, err, "failed to list scratch directory")
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), scratchPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.logger.WithFields(logrus.Fields{"path": path, "error": err}).Warn("Failed to sweep scratch artifact")
			continue
		}
		removed++
	}
	return removed, nil
}
