package backup

import (
	"context"
	"os"
	"path/filepath"

	"github.com/kjk/tinykv/atomicfile"
)

// Destination is where backups are stored.
type Destination interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

// Dir stores backups as files in a local directory
type Dir struct {
	Dir string
}

var _ Destination = &Dir{}

func (d *Dir) Put(_ context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return err
	}
	return atomicfile.WriteFile(filepath.Join(d.Dir, name), data)
}

func (d *Dir) Get(_ context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(d.Dir, name))
}
