// Package logkv is a small durable key-value store: an in-memory map
// backed by an append-only, line-oriented log file.
//
// # Log Format
//
// Each mutation is one line of text:
//
//	SET <key> <value>
//	DEL <key>
//
// The value is the remainder of the line after the key and can contain spaces.
// Keys that contain whitespace (or start with '"') and values that contain
// line terminators (or start with '"') are written as Go quoted strings, with
// spaces in quoted keys escaped as \x20.
//
// Lines that are not well-formed records are skipped when the log is replayed.
//
// # Basic Usage
//
//	s, err := logkv.Open("store.log")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	err = s.Set("name", "John Doe")
//	v, ok := s.Get("name")
//	wasPresent, err := s.Delete("name")
//
// Every Set and Delete is written and fsync'ed before the in-memory map
// is updated. The log only grows, unless Compact is called explicitly.
//
// If a write or fsync fails, the record is truncated from the log and the map
// is not changed. If the truncate fails too, the Store returns ErrFailed
// from all writes until it's reopened or compacted. An unterminated last line
// is what's left of an interrupted write: it's not applied and Open removes it.
//
// # Thread Safety
//
// A Store is not safe for concurrent use. Two processes opening the same log
// don't see each other's writes until they re-open it.
package logkv
