package logkv

import (
	"bufio"
	"fmt"
	"io"

	"github.com/kjk/tinykv/atomicfile"
)

// WriteSnapshot writes a SET record for every key, in key order.
// The result is a valid log that replays to the current state.
func (s *Store) WriteSnapshot(w io.Writer) error {
	bw := bufio.NewWriter(w)
	rec := Record{Kind: KindSet}
	for k, v := range s.All() {
		rec.Key = k
		rec.Value = v
		if _, err := bw.WriteString(rec.MarshalLine()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Compact atomically replaces the log with a snapshot of the current state,
// dropping overwritten values and deletions.
// It's never called implicitly.
// If writing the snapshot fails, the original log is left in place and the
// store remains usable. If the new log can't be reopened for appending, the
// store is closed and writes return ErrClosed until it's reopened.
// A store in ErrFailed state is usable again after Compact.
func (s *Store) Compact() error {
	if s.file == nil {
		return ErrClosed
	}
	sizeBefore := s.size
	err := atomicfile.WriteWith(s.Path, s.WriteSnapshot)
	if err != nil {
		return fmt.Errorf("logkv: compaction of '%s' failed: %w", s.Path, err)
	}

	// the old handle points to the replaced file
	errClose := s.file.Close()
	s.file = nil
	if errClose != nil {
		s.logf("logkv: closing old log '%s' failed: %v\n", s.Path, errClose)
	}
	file, size, err := openLog(s.Path)
	if err != nil {
		return fmt.Errorf("logkv: failed to reopen '%s' after compaction: %w", s.Path, err)
	}
	s.file = file
	s.size = size
	s.err = nil
	s.logf("logkv: compacted '%s' from %d to %d bytes, %d keys\n", s.Path, sizeBefore, size, len(s.m))
	return nil
}
