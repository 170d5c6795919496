// Package backup stores compressed snapshots of a logkv store in a Destination
// (local directory, S3, SFTP or HTTP server) and restores them.
//
// A backup consists of 2 objects:
//   - <name>.log<ext>: snapshot of the store (a compacted log), compressed
//   - <name>.json: Manifest with codec, sizes and xxh3 checksum of the snapshot
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kjk/tinykv/atomicfile"
	"github.com/kjk/tinykv/logkv"
)

var ErrChecksumMismatch = errors.New("backup: checksum mismatch")

func newName(t time.Time) string {
	return fmt.Sprintf("logkv-%s-%s", t.Format("20060102-150405"), uuid.Must(uuid.NewV7()).String())
}

// Create writes a snapshot of s to dst.
func Create(ctx context.Context, s *logkv.Store, dst Destination, codec Codec) (*Manifest, error) {
	var buf bytes.Buffer
	if err := s.WriteSnapshot(&buf); err != nil {
		return nil, err
	}
	raw := buf.Bytes()
	compressed, err := Compress(codec, raw)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	m := &Manifest{
		Name:           newName(now),
		Codec:          codec,
		Size:           int64(len(raw)),
		CompressedSize: int64(len(compressed)),
		Checksum:       checksum(raw),
		Keys:           s.Len(),
		CreatedMs:      now.UnixMilli(),
	}
	if err = dst.Put(ctx, m.DataName(), compressed); err != nil {
		return nil, fmt.Errorf("backup: upload of '%s' failed: %w", m.DataName(), err)
	}
	// manifest goes last so that a manifest always points to complete data
	d, err := m.Marshal()
	if err != nil {
		return nil, err
	}
	if err = dst.Put(ctx, manifestName(m.Name), d); err != nil {
		return nil, fmt.Errorf("backup: upload of '%s' failed: %w", manifestName(m.Name), err)
	}
	return m, nil
}

// Fetch downloads backup name from src, verifies it and returns
// the manifest and uncompressed snapshot.
func Fetch(ctx context.Context, src Destination, name string) (*Manifest, []byte, error) {
	if err := validateName(name); err != nil {
		return nil, nil, err
	}
	d, err := src.Get(ctx, manifestName(name))
	if err != nil {
		return nil, nil, fmt.Errorf("backup: download of '%s' failed: %w", manifestName(name), err)
	}
	m, err := UnmarshalManifest(d)
	if err != nil {
		return nil, nil, err
	}
	if m.Name != name {
		return nil, nil, fmt.Errorf("%w: manifest '%s' is for backup '%s'", ErrInvalidName, manifestName(name), m.Name)
	}
	compressed, err := src.Get(ctx, m.DataName())
	if err != nil {
		return nil, nil, fmt.Errorf("backup: download of '%s' failed: %w", m.DataName(), err)
	}
	raw, err := Decompress(m.Codec, compressed)
	if err != nil {
		return nil, nil, fmt.Errorf("backup: decompressing '%s' failed: %w", m.DataName(), err)
	}
	if int64(len(raw)) != m.Size || checksum(raw) != m.Checksum {
		return nil, nil, fmt.Errorf("%w: '%s'", ErrChecksumMismatch, m.DataName())
	}

	kv := map[string]string{}
	stats, err := logkv.ReplayReader(bytes.NewReader(raw), kv)
	if err != nil {
		return nil, nil, err
	}
	if stats.Skipped > 0 || stats.TornTail > 0 || len(kv) != m.Keys {
		return nil, nil, fmt.Errorf("backup: '%s' has %d keys and %d invalid lines, expected %d keys", m.DataName(), len(kv), stats.Skipped, m.Keys)
	}
	return m, raw, nil
}

// Restore downloads backup name from src and atomically writes it as
// the log at path. The store at path must not be open.
func Restore(ctx context.Context, src Destination, name string, path string) (*Manifest, error) {
	m, raw, err := Fetch(ctx, src, name)
	if err != nil {
		return nil, err
	}
	if err = atomicfile.WriteFile(path, raw); err != nil {
		return nil, err
	}
	return m, nil
}
