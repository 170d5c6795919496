package logkv

import (
	"strconv"
	"strings"
	"unicode"
)

const (
	KindSet = "SET"
	KindDel = "DEL"
)

// Record is a single mutation as stored in the log.
type Record struct {
	// KindSet or KindDel
	Kind  string
	Key   string
	Value string
}

func needsKeyQuoting(key string) bool {
	return strings.HasPrefix(key, `"`) || strings.IndexFunc(key, unicode.IsSpace) >= 0
}

func needsValueQuoting(v string) bool {
	return strings.HasPrefix(v, `"`) || strings.ContainsAny(v, "\r\n")
}

// quoted key must be a single token so spaces are escaped too
func encodeKey(key string) string {
	if !needsKeyQuoting(key) {
		return key
	}
	return strings.ReplaceAll(strconv.Quote(key), " ", `\x20`)
}

func encodeValue(v string) string {
	if !needsValueQuoting(v) {
		return v
	}
	return strconv.Quote(v)
}

func decodeKey(s string) (string, bool) {
	if !strings.HasPrefix(s, `"`) {
		return s, true
	}
	key, err := strconv.Unquote(s)
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

// values written by older writers may start with a quote without being
// a valid literal, so those are kept as-is
func decodeValue(s string) string {
	if !strings.HasPrefix(s, `"`) {
		return s
	}
	if v, err := strconv.Unquote(s); err == nil {
		return v
	}
	return s
}

// MarshalLine returns the log line for r, including the terminating newline.
func (r *Record) MarshalLine() string {
	if r.Kind == KindDel {
		return KindDel + " " + encodeKey(r.Key) + "\n"
	}
	return KindSet + " " + encodeKey(r.Key) + " " + encodeValue(r.Value) + "\n"
}

// splitFields splits a line into at most 3 fields separated by a single space.
// The last field is the remainder of the line and can contain spaces.
func splitFields(line string, parts *[3]string) int {
	cmd, rest, ok := strings.Cut(line, " ")
	parts[0] = cmd
	if !ok {
		if cmd == "" {
			return 0
		}
		return 1
	}
	key, value, ok := strings.Cut(rest, " ")
	parts[1] = key
	if !ok {
		return 2
	}
	parts[2] = value
	return 3
}

// ParseLine parses a single log line (without the line terminator) into rec.
// rec is passed in to allow re-using Record.
// Returns false for lines that are not well-formed records.
func ParseLine(line string, rec *Record) bool {
	var parts [3]string
	n := splitFields(line, &parts)
	if n < 2 || parts[1] == "" {
		return false
	}
	key, ok := decodeKey(parts[1])
	if !ok {
		return false
	}
	switch {
	case parts[0] == KindSet && n == 3:
		rec.Kind = KindSet
		rec.Key = key
		rec.Value = decodeValue(parts[2])
	case parts[0] == KindDel && n == 2:
		rec.Kind = KindDel
		rec.Key = key
		rec.Value = ""
	default:
		return false
	}
	return true
}

// Apply folds r into m.
func (r *Record) Apply(m map[string]string) {
	if r.Kind == KindDel {
		delete(m, r.Key)
		return
	}
	m[r.Key] = r.Value
}
