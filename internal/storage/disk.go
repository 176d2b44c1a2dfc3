package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"cadastra/pkg/platform/sentinel"
)

// Disk stores payloads as files under a data directory.
//
// Writes follow temp file -> write -> fsync -> atomic rename, so a crash
// mid-write never leaves a partially written payload at its final path.
type Disk struct {
	dataDir string
}

// NewDisk creates the data directory if it does not exist.
func NewDisk(dataDir string) (*Disk, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}
	return &Disk{dataDir: dataDir}, nil
}

func (d *Disk) Save(ctx context.Context, b []byte, originalFilename, ownerID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	storageName := generateStorageName(originalFilename, ownerID)
	fullPath := filepath.Join(d.dataDir, storageName)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write payload: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("fsync payload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close payload: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("atomic rename: %w", err)
	}

	return storageName, nil
}

func (d *Disk) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(d.dataDir, filepath.Clean(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

func (d *Disk) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(d.dataDir, filepath.Clean(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", path, sentinel.ErrNotFound)
		}
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (d *Disk) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(d.dataDir, filepath.Clean(path)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return true, nil
}

// generateStorageName produces {base}_{owner}_{timestamp}_{uuid}{ext},
// flattening any path separators out of the original name.
func generateStorageName(originalFilename, ownerID string) string {
	base := filepath.Base(originalFilename)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	return fmt.Sprintf("%s_%s_%d_%s%s", name, ownerID, time.Now().UnixNano(), uuid.NewString(), ext)
}
