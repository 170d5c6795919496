package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kjk/tinykv/backup"
	"github.com/kjk/tinykv/log"
	"github.com/kjk/tinykv/logkv"
	"github.com/tidwall/pretty"
)

const usage = `usage: tinykv [flags] <command> [args]

commands:
  set <key> <value...>  set key to value (remaining args joined with a space)
  get <key>             print value of key
  delete <key>          delete key
  compact               rewrite the log with only live keys
  dump                  print all keys and values as JSON
  stats                 print information about the log
  backup                store a compressed snapshot in backup destination
  restore <name>        replace the log with a backup

flags:
`

const (
	exitOK       = 0
	exitNotFound = 1
	exitError    = 2
	exitUsage    = 64
)

var errUsage = errors.New("usage error")

type app struct {
	config Config
	stdout io.Writer
	stderr io.Writer
	ctx    context.Context
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}

// minimum number of arguments per command
var commandArgs = map[string]int{
	"set":     2,
	"get":     1,
	"delete":  1,
	"compact": 0,
	"dump":    0,
	"stats":   0,
	"backup":  0,
	"restore": 1,
}

// checkArgs validates arguments before anything is opened or created
func (a *app) checkArgs(cmd string, args []string) error {
	n, ok := commandArgs[cmd]
	if !ok {
		return fmt.Errorf("%w: unknown command '%s'", errUsage, cmd)
	}
	if len(args) < n {
		return fmt.Errorf("%w: '%s' needs %d argument(s)", errUsage, cmd, n)
	}
	switch cmd {
	case "set", "get", "delete":
		if args[0] == "" {
			return logkv.ErrInvalidKey
		}
	case "backup":
		if _, err := backup.ParseCodec(a.config.BackupCodec); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
	}
	return nil
}

func (a *app) openStore() (*logkv.Store, error) {
	s := &logkv.Store{
		Path: a.config.DBPath,
		Logf: log.Verbosef,
	}
	if err := logkv.OpenStore(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *app) runCommand(cmd string, args []string) (int, error) {
	if err := a.checkArgs(cmd, args); err != nil {
		return exitUsage, err
	}
	if cmd == "restore" {
		// the log must not be open while it's replaced
		return a.cmdRestore(args)
	}

	s, err := a.openStore()
	if err != nil {
		return exitError, err
	}
	defer func() {
		err := s.Close()
		log.IfErrf(err, "closing '%s' failed with '%s'", s.Path, err)
	}()

	switch cmd {
	case "set":
		return a.cmdSet(s, args)
	case "get":
		return a.cmdGet(s, args)
	case "delete":
		return a.cmdDelete(s, args)
	case "compact":
		return a.cmdCompact(s)
	case "dump":
		return a.cmdDump(s)
	case "stats":
		return a.cmdStats(s)
	}
	return a.cmdBackup(s)
}

func (a *app) cmdSet(s *logkv.Store, args []string) (int, error) {
	key := args[0]
	value := strings.Join(args[1:], " ")
	timeStart := time.Now()
	if err := s.Set(key, value); err != nil {
		return exitError, err
	}
	log.EventWithDuration("set", time.Since(timeStart), "key", key, "size", len(value))
	a.printf("OK\n")
	return exitOK, nil
}

func (a *app) cmdGet(s *logkv.Store, args []string) (int, error) {
	v, ok := s.Get(args[0])
	if !ok {
		fmt.Fprintf(a.stderr, "Key not found\n")
		return exitNotFound, nil
	}
	a.printf("%s\n", v)
	return exitOK, nil
}

func (a *app) cmdDelete(s *logkv.Store, args []string) (int, error) {
	wasPresent, err := s.Delete(args[0])
	if err != nil {
		return exitError, err
	}
	log.Event("delete", "key", args[0], "found", wasPresent)
	if !wasPresent {
		a.printf("Key not found\n")
		return exitNotFound, nil
	}
	a.printf("Deleted\n")
	return exitOK, nil
}

func (a *app) cmdCompact(s *logkv.Store) (int, error) {
	sizeBefore := s.Size()
	timeStart := time.Now()
	if err := s.Compact(); err != nil {
		return exitError, err
	}
	log.EventWithDuration("compact", time.Since(timeStart), "before", sizeBefore, "after", s.Size())
	a.printf("compacted from %d to %d bytes\n", sizeBefore, s.Size())
	return exitOK, nil
}

func (a *app) cmdDump(s *logkv.Store) (int, error) {
	m := map[string]string{}
	for k, v := range s.All() {
		m[k] = v
	}
	d, err := json.Marshal(m)
	if err != nil {
		return exitError, err
	}
	a.stdout.Write(pretty.Pretty(d))
	return exitOK, nil
}

func (a *app) cmdStats(s *logkv.Store) (int, error) {
	stats := s.Stats()
	a.printf("path: %s\n", s.Path)
	a.printf("keys: %d\n", s.Len())
	a.printf("size: %d bytes\n", s.Size())
	a.printf("records: %d\n", stats.Records)
	a.printf("skipped lines: %d\n", stats.Skipped)
	a.printf("removed unterminated bytes: %d\n", stats.TornTail)
	return exitOK, nil
}

func (a *app) cmdBackup(s *logkv.Store) (int, error) {
	codec, _ := backup.ParseCodec(a.config.BackupCodec)
	dst, closeDst, err := a.config.backupDestination(a.ctx)
	if err != nil {
		return exitError, err
	}
	defer closeDst()
	timeStart := time.Now()
	m, err := backup.Create(a.ctx, s, dst, codec)
	if err != nil {
		return exitError, err
	}
	log.EventWithDuration("backup", time.Since(timeStart), "name", m.Name, "codec", string(m.Codec), "size", m.CompressedSize)
	a.printf("%s\n", m.Name)
	return exitOK, nil
}

func (a *app) cmdRestore(args []string) (int, error) {
	dst, closeDst, err := a.config.backupDestination(a.ctx)
	if err != nil {
		return exitError, err
	}
	defer closeDst()
	m, err := backup.Restore(a.ctx, dst, args[0], a.config.DBPath)
	if err != nil {
		return exitError, err
	}
	log.Event("restore", "name", m.Name, "keys", m.Keys)
	a.printf("restored %d keys from %s\n", m.Keys, m.Name)
	return exitOK, nil
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	a := &app{
		stdout: stdout,
		stderr: stderr,
		ctx:    context.Background(),
	}
	fs := newFlagSet(&a.config, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	a.config.loadEnv()
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	// stdout is for command output, diagnostics only go there with -v
	log.Stdout = nil
	log.Verbose = a.config.Verbose
	if a.config.Verbose {
		log.Stdout = stderr
	}
	log.Init(&log.Config{Dir: a.config.LogDir})
	defer log.Close()

	cmd := fs.Arg(0)
	code, err := a.runCommand(cmd, fs.Args()[1:])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		if errors.Is(err, errUsage) || errors.Is(err, logkv.ErrInvalidKey) {
			fs.Usage()
			return exitUsage
		}
		log.Errorf("tinykv %s failed: %s", cmd, err)
	}
	return code
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
