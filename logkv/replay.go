package logkv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// ReplayStats describes what was read from a log.
type ReplayStats struct {
	// number of records applied
	Records int
	// number of non-empty lines that were not valid records
	Skipped int
	// size of the unterminated last line, if any. Records are always
	// written with a terminator so it's a leftover of an interrupted
	// append and is not applied.
	TornTail int64
}

// ReplayReader applies all records read from r to m, in order.
// Malformed lines are skipped. Only read errors are returned.
func ReplayReader(r io.Reader, m map[string]string) (ReplayStats, error) {
	var stats ReplayStats
	reader := bufio.NewReader(r)
	var rec Record
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			stats.TornTail = int64(len(line))
			break
		}
		if err != nil {
			return stats, fmt.Errorf("error reading log: %w", err)
		}

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		if !ParseLine(line, &rec) {
			stats.Skipped++
			continue
		}
		rec.Apply(m)
		stats.Records++
	}
	return stats, nil
}

// ReplayWithStats rebuilds the key-value map from the log at path.
// A missing file is not an error and results in an empty map.
func ReplayWithStats(path string) (map[string]string, ReplayStats, error) {
	m := map[string]string{}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, ReplayStats{}, nil
		}
		return nil, ReplayStats{}, err
	}
	defer file.Close()

	stats, err := ReplayReader(file, m)
	if err != nil {
		return nil, stats, fmt.Errorf("replay of '%s' failed: %w", path, err)
	}
	return m, stats, nil
}

// Replay rebuilds the key-value map from the log at path.
func Replay(path string) (map[string]string, error) {
	m, _, err := ReplayWithStats(path)
	return m, err
}
