// Package storage is the removable-volume collaborator consumed by the backup
// and restore pipelines. A Volume is mounted once per process and then reused.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrorNoImages = errors.New("no images found")

// File is an open handle on the volume.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

type Volume interface {
	// Mount prepares the volume. Idempotent; later calls are no-ops.
	Mount() error
	// Create opens name for writing, creating or truncating it.
	Create(name string) (File, error)
	// Open opens name for reading.
	Open(name string) (File, error)
	// List returns the file names with the given extension, sorted ascending.
	List(ext string) ([]string, error)
	// Latest returns the name of the newest file with the given extension.
	Latest(ext string) (string, error)
}

// DirVolume is a Volume backed by a directory on the host filesystem.
type DirVolume struct {
	root    string
	mounted bool
}

func NewDirVolume(root string) *DirVolume {
	return &DirVolume{root: root}
}

func (v *DirVolume) Mount() error {
	if v.mounted {
		return nil
	}
	if err := os.MkdirAll(v.root, 0o755); err != nil {
		return fmt.Errorf("mount %s: %w", v.root, err)
	}
	v.mounted = true
	return nil
}

func (v *DirVolume) path(name string) string {
	return filepath.Join(v.root, filepath.Base(name))
}

func (v *DirVolume) Create(name string) (File, error) {
	f, err := os.Create(v.path(name))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return f, nil
}

func (v *DirVolume) Open(name string) (File, error) {
	f, err := os.Open(v.path(name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

func (v *DirVolume) List(ext string) ([]string, error) {
	entries, err := os.ReadDir(v.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", v.root, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Latest picks the newest matching file by modification time, falling back to
// the lexicographically larger name when times are equal or unavailable.
func (v *DirVolume) Latest(ext string) (string, error) {
	entries, err := os.ReadDir(v.root)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", v.root, err)
	}

	best := ""
	var bestMod int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}

		var mod int64
		if info, err := e.Info(); err == nil {
			mod = info.ModTime().UnixNano()
		}

		newer := best == "" || mod > bestMod ||
			(mod == bestMod && e.Name() > best)
		if newer {
			best = e.Name()
			bestMod = mod
		}
	}

	if best == "" {
		return "", ErrorNoImages
	}
	return best, nil
}
