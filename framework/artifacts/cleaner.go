package artifacts

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/celestiaorg/poa-devnet/framework/types"
)

// Cleaner removes generated artifacts on a best-effort basis.
// Failures are logged and never returned; callers that need a clean slate
// must check for themselves afterwards.
type Cleaner struct {
	logger *zap.Logger

	// filesystem calls used by the manual tree walk.
	remove  func(name string) error
	readDir func(name string) ([]os.DirEntry, error)
}

// NewCleaner returns a Cleaner logging to logger.
func NewCleaner(logger *zap.Logger) *Cleaner {
	return &Cleaner{
		logger:  logger.With(zap.String("component", "cleanup")),
		remove:  os.Remove,
		readDir: os.ReadDir,
	}
}

// Cleanup removes each file, then each directory tree. Absent items are skipped.
func (c *Cleaner) Cleanup(files, dirs []string) {
	c.logger.Info("removing old data")
	for _, f := range files {
		c.removeFile(f)
	}
	for _, d := range dirs {
		c.removeDir(d)
	}
}

func (c *Cleaner) removeFile(path string) {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err := os.Remove(path); err != nil {
		c.logger.Error("failed to remove file", zap.String("path", path), zap.Error(err))
		return
	}
	c.logger.Info("removed file", zap.String("path", path))
}

func (c *Cleaner) removeDir(path string) {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err := os.RemoveAll(path); err == nil {
		c.logger.Info("removed directory", zap.String("path", path))
		return
	}
	// fall back to a manual walk that clears write protection as it goes.
	if err := c.removeTree(path); err != nil {
		c.logger.Error("failed to remove directory", zap.String("path", path), zap.Error(err))
		return
	}
	c.logger.Info("removed directory", zap.String("path", path))
}

func (c *Cleaner) removeTree(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	if info.IsDir() {
		entries, err := c.readDir(path)
		if err != nil && errors.Is(err, fs.ErrPermission) {
			c.clearReadOnly(path, err)
			entries, err = c.readDir(path)
		}
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := c.removeTree(filepath.Join(path, e.Name())); err != nil {
				return err
			}
		}
	}

	err = c.remove(path)
	if err != nil && errors.Is(err, fs.ErrPermission) {
		c.clearReadOnly(path, err)
		c.clearReadOnly(filepath.Dir(path), err)
		err = c.remove(path)
	}
	return err
}

// clearReadOnly adds the owner write bit to path.
func (c *Cleaner) clearReadOnly(path string, cause error) {
	c.logger.Debug("clearing read-only attribute", zap.Error(&types.PermissionError{Path: path, Err: cause}))
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&fs.ModeSymlink != 0 {
		return
	}
	mode := info.Mode().Perm() | 0o200
	if info.IsDir() {
		mode |= 0o700
	}
	if err := os.Chmod(path, mode); err != nil {
		c.logger.Warn("failed to clear read-only attribute", zap.String("path", path), zap.Error(err))
	}
}
