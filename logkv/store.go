package logkv

import (
	"fmt"
	"io"
	"iter"
	"maps"
	"os"
	"slices"
)

// logFile is what Store needs from the log file.
// *os.File implements it.
type logFile interface {
	io.Writer
	Sync() error
	Truncate(size int64) error
	Close() error
}

type Store struct {
	// Path of the log file
	Path string
	// optional, called for diagnostic messages
	Logf func(format string, args ...any)

	m     map[string]string
	file  logFile
	size  int64
	stats ReplayStats
	// set when a failed append couldn't be undone, see rollback()
	err error
}

func (s *Store) logf(format string, args ...any) {
	if s.Logf != nil {
		s.Logf(format, args...)
	}
}

// replaced in tests
var openLog = openLogForAppend

func openLogForAppend(path string) (logFile, int64, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, 0, err
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, 0, err
	}
	return file, st.Size(), nil
}

// OpenStore replays the log at s.Path and opens it for appending.
// The log file is created if it doesn't exist.
// If s was already open, it's closed first.
func OpenStore(s *Store) error {
	if s.Path == "" {
		return fmt.Errorf("logkv: Path is not set")
	}
	if err := s.Close(); err != nil {
		return err
	}

	m, stats, err := ReplayWithStats(s.Path)
	if err != nil {
		return err
	}
	file, size, err := openLog(s.Path)
	if err != nil {
		return fmt.Errorf("logkv: failed to open '%s' for appending: %w", s.Path, err)
	}
	if stats.TornTail > 0 {
		// appending after the torn line would complete it into a record
		size -= stats.TornTail
		if err = file.Truncate(size); err != nil {
			file.Close()
			return fmt.Errorf("logkv: failed to remove unterminated last line of '%s': %w", s.Path, err)
		}
		s.logf("logkv: removed unterminated last line (%d bytes) of '%s'\n", stats.TornTail, s.Path)
	}

	s.m = m
	s.file = file
	s.size = size
	s.stats = stats
	s.err = nil
	if stats.Skipped > 0 {
		s.logf("logkv: skipped %d malformed lines in '%s'\n", stats.Skipped, s.Path)
	}
	s.logf("logkv: opened '%s', %d records, %d keys, %d bytes\n", s.Path, stats.Records, len(m), size)
	return nil
}

// Open opens (or creates) the log at path and loads the store from it.
func Open(path string) (*Store, error) {
	s := &Store{Path: path}
	if err := OpenStore(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the log file. It's safe to call multiple times
// and on a nil Store.
func (s *Store) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// append writes rec to the log and syncs it to disk.
// On failure the log is rolled back to its previous size.
func (s *Store) append(rec *Record) error {
	if s.file == nil {
		return ErrClosed
	}
	if s.err != nil {
		return s.err
	}
	line := rec.MarshalLine()
	n, err := io.WriteString(s.file, line)
	if err != nil {
		if n > 0 {
			s.rollback()
		}
		return fmt.Errorf("logkv: append to '%s' failed: %w", s.Path, err)
	}
	if err = s.file.Sync(); err != nil {
		s.rollback()
		return fmt.Errorf("logkv: sync of '%s' failed: %w", s.Path, err)
	}
	s.size += int64(n)
	return nil
}

// rollback removes a record that was written, fully or partially, but not
// synced. If the log can't be truncated it holds a record that the map
// doesn't reflect, so all further writes fail until the store is reopened.
func (s *Store) rollback() {
	err := s.file.Truncate(s.size)
	if err == nil {
		return
	}
	s.err = fmt.Errorf("%w: truncating '%s' to %d bytes failed: %w", ErrFailed, s.Path, s.size, err)
	s.logf("logkv: %s\n", s.err)
}

// Get returns the value for key. It doesn't do any I/O.
func (s *Store) Get(key string) (string, bool) {
	v, ok := s.m[key]
	return v, ok
}

// Set records key=value in the log and then updates the in-memory map.
// If writing to the log fails, the map is not changed.
func (s *Store) Set(key string, value string) error {
	if key == "" {
		return ErrInvalidKey
	}
	rec := Record{Kind: KindSet, Key: key, Value: value}
	if err := s.append(&rec); err != nil {
		return err
	}
	s.m[key] = value
	return nil
}

// Delete records deletion of key in the log and removes it from the map.
// The record is written even if key doesn't exist.
// Returns true if key was present.
func (s *Store) Delete(key string) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	rec := Record{Kind: KindDel, Key: key}
	if err := s.append(&rec); err != nil {
		return false, err
	}
	_, wasPresent := s.m[key]
	delete(s.m, key)
	return wasPresent, nil
}

// Len returns number of keys
func (s *Store) Len() int {
	return len(s.m)
}

// Keys returns all keys, sorted
func (s *Store) Keys() []string {
	return slices.Sorted(maps.Keys(s.m))
}

// All iterates over key-value pairs in key order.
func (s *Store) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, k := range s.Keys() {
			if !yield(k, s.m[k]) {
				return
			}
		}
	}
}

// Size returns the size of the log file in bytes
func (s *Store) Size() int64 {
	return s.size
}

// Stats returns what was read from the log when the store was opened
func (s *Store) Stats() ReplayStats {
	return s.stats
}
