// Package log writes diagnostics of tinykv.
//
// Messages are echoed to Stdout and, after Init, appended to daily files:
//
//	<Dir>/log/YYYY-MM-DD.txt     Logf, Verbosef, Errorf
//	<Dir>/errors/YYYY-MM-DD.txt  Errorf, with callstack
//	<Dir>/events/YYYY-MM-DD.txt  Event, toon-encoded key/value pairs
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/toon-format/toon-go"
)

var (
	// if true, Verbosef() will log messages
	Verbose bool

	// where messages are echoed, nil disables
	Stdout io.Writer = os.Stdout

	mu        sync.Mutex
	logFile   *dailyFile
	errorFile *dailyFile
	eventFile *dailyFile
)

// dailyFile appends to <dir>/YYYY-MM-DD.txt, switching files
// when the UTC day changes. The file is created on first write.
type dailyFile struct {
	dir  string
	day  string
	file *os.File
}

func (f *dailyFile) Write(d []byte) (int, error) {
	day := time.Now().UTC().Format("2006-01-02")
	if f.file != nil && f.day != day {
		f.close()
	}
	if f.file == nil {
		if err := os.MkdirAll(f.dir, 0755); err != nil {
			return 0, err
		}
		path := filepath.Join(f.dir, day+".txt")
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return 0, err
		}
		f.file = file
		f.day = day
	}
	return f.file.Write(d)
}

func (f *dailyFile) close() error {
	if f == nil || f.file == nil {
		return nil
	}
	err := f.file.Sync()
	if errClose := f.file.Close(); err == nil {
		err = errClose
	}
	f.file = nil
	return err
}

// write appends s to f if it's configured. Errors are dropped.
func write(f *dailyFile, s string) {
	if f != nil {
		_, _ = io.WriteString(f, s)
	}
}

type Config struct {
	// directory for log files, with a sub-directory per kind of log
	// if empty, we only log to Stdout
	Dir string
}

// Init starts logging to files in config.Dir
func Init(config *Config) {
	Close()
	if config == nil || config.Dir == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	logFile = &dailyFile{dir: filepath.Join(config.Dir, "log")}
	errorFile = &dailyFile{dir: filepath.Join(config.Dir, "errors")}
	eventFile = &dailyFile{dir: filepath.Join(config.Dir, "events")}
}

// Close flushes and closes log files. Logging continues to Stdout.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	for _, f := range []**dailyFile{&logFile, &errorFile, &eventFile} {
		(*f).close()
		*f = nil
	}
}

func Logf(format string, args ...any) {
	s := format
	if len(args) > 0 {
		s = fmt.Sprintf(format, args...)
	}
	mu.Lock()
	defer mu.Unlock()
	if Stdout != nil {
		io.WriteString(Stdout, s)
	}
	write(logFile, s)
}

func Verbosef(format string, args ...any) {
	if Verbose {
		Logf(format, args...)
	}
}

// callstack returns "file:line" of callers, skipping the runtime
func callstack(skip int) string {
	var pcs [32]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	var lines []string
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, "runtime.") {
			lines = append(lines, frame.File+":"+strconv.Itoa(frame.Line))
		}
		if !more {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// Errorf logs a message. The errors log also gets the callstack.
func Errorf(format string, args ...any) {
	s := format
	if len(args) > 0 {
		s = fmt.Sprintf(format, args...)
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	Logf("%s", s)
	cs := callstack(1)
	mu.Lock()
	defer mu.Unlock()
	write(errorFile, s+cs+"\n")
}

// IfErrf logs err and returns true if err is not nil.
//
//	IfErrf(err)                         logs err.Error()
//	IfErrf(err, "open of '%s'", path)   logs the formatted message
func IfErrf(err error, args ...any) bool {
	if err == nil {
		return false
	}
	if len(args) == 0 {
		Errorf("%s", err)
		return true
	}
	format, ok := args[0].(string)
	if !ok {
		format = fmt.Sprint(args[0])
	}
	Errorf(format, args[1:]...)
	return true
}

// marshalEvent formats an event as:
// <name> <unix ms> <len>\n<toon data>\n
func marshalEvent(name string, t time.Time, vals []any) ([]byte, error) {
	if len(vals)%2 != 0 {
		return nil, fmt.Errorf("odd number of key/value args: %d", len(vals))
	}
	var d []byte
	if len(vals) > 0 {
		m := make(map[string]any, len(vals)/2)
		for i := 0; i < len(vals); i += 2 {
			k, ok := vals[i].(string)
			if !ok {
				return nil, fmt.Errorf("key at %d is %T, not string", i, vals[i])
			}
			m[k] = vals[i+1]
		}
		var err error
		if d, err = toon.Marshal(m); err != nil {
			return nil, err
		}
	}
	res := fmt.Appendf(nil, "%s %d %d\n", name, t.UnixMilli(), len(d))
	res = append(res, d...)
	return append(res, '\n'), nil
}

// Event records a named event with key/value pairs in the events log.
// Keys must be strings.
func Event(name string, vals ...any) {
	d, err := marshalEvent(name, time.Now().UTC(), vals)
	if err != nil {
		Errorf("Event('%s'): %v", name, err)
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if eventFile != nil {
		_, _ = eventFile.Write(d)
	}
}

// EventWithDuration is Event with "durmicro" set to dur
func EventWithDuration(name string, dur time.Duration, vals ...any) {
	Event(name, append(vals, "durmicro", dur.Microseconds())...)
}
