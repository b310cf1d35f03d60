package state

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"dip_bot/internal/models"
)

// FileStore keeps the state as a JSON document on local disk.
type FileStore struct {
	path    string
	now     Clock
	syncDir func(dir string) error

	mu sync.Mutex
}

func NewFileStore(path string, now Clock) *FileStore {
	if now == nil {
		now = time.Now
	}
	return &FileStore{path: path, now: now, syncDir: syncDir}
}

// syncDir flushes the directory entry so a completed rename survives power loss.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load(_ context.Context) (*models.PositionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.NewPositionState(f.now()), nil
		}
		return nil, errors.Wrapf(err, "read %s", f.path)
	}

	st, err := decode(b, f.now())
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", f.path)
	}
	return st, nil
}

// Save writes a temp file next to the target, fsyncs it, renames it over
// the target and fsyncs the directory, so a reader sees either the old or the
// new record.
func (f *FileStore) Save(_ context.Context, st *models.PositionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := encode(st)
	if err != nil {
		return errors.Wrap(err, "encode state")
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "mkdir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return errors.Wrapf(err, "rename %s", tmpName)
	}
	committed = true

	if err := f.syncDir(dir); err != nil {
		return errors.Wrapf(err, "sync dir %s", dir)
	}
	return nil
}
