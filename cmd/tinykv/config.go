package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"

	"github.com/kjk/tinykv/backup"
	"github.com/kjk/tinykv/log"
)

type Config struct {
	DBPath  string
	LogDir  string
	Verbose bool

	BackupDir   string
	BackupCodec string
	S3          backup.S3Config
	SFTP        backup.SFTPConfig
	HTTP        backup.HTTP
}

func envOr(name string, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func newFlagSet(c *Config, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("tinykv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&c.DBPath, "db", envOr("TINYKV_PATH", "store.log"), "path of the log file")
	fs.StringVar(&c.LogDir, "log-dir", envOr("TINYKV_LOG_DIR", ""), "directory for log files, empty logs only to stdout")
	fs.BoolVar(&c.Verbose, "v", false, "verbose logging")
	fs.StringVar(&c.BackupDir, "backup-dir", envOr("TINYKV_BACKUP_DIR", ""), "directory for backups")
	fs.StringVar(&c.BackupCodec, "codec", "zstd", "backup compression: none, zstd, brotli, snappy, lz4")
	fs.Usage = func() {
		io.WriteString(stderr, usage)
		fs.PrintDefaults()
	}
	return fs
}

// remote destinations are only configured from env variables
// as they include secrets
func (c *Config) loadEnv() {
	c.S3 = backup.S3Config{
		Access:   os.Getenv("TINYKV_S3_ACCESS"),
		Secret:   os.Getenv("TINYKV_S3_SECRET"),
		Bucket:   os.Getenv("TINYKV_S3_BUCKET"),
		Endpoint: os.Getenv("TINYKV_S3_ENDPOINT"),
		Region:   os.Getenv("TINYKV_S3_REGION"),
		Prefix:   os.Getenv("TINYKV_S3_PREFIX"),
	}
	c.SFTP = backup.SFTPConfig{
		User:           os.Getenv("TINYKV_SFTP_USER"),
		Host:           os.Getenv("TINYKV_SFTP_HOST"),
		PrivateKeyPath: os.Getenv("TINYKV_SFTP_KEY"),
		Dir:            os.Getenv("TINYKV_SFTP_DIR"),
	}
	c.HTTP = backup.HTTP{
		BaseURL: os.Getenv("TINYKV_BACKUP_URL"),
		ApiKey:  os.Getenv("TINYKV_BACKUP_API_KEY"),
	}
}

var errNoBackupDestination = errors.New("no backup destination: set -backup-dir or TINYKV_S3_*, TINYKV_SFTP_* or TINYKV_BACKUP_URL env variables")

// backupDestination picks the first configured destination.
// The returned func releases its resources.
func (c *Config) backupDestination(ctx context.Context) (backup.Destination, func(), error) {
	noop := func() {}
	switch {
	case c.BackupDir != "":
		return &backup.Dir{Dir: c.BackupDir}, noop, nil
	case c.S3.Bucket != "":
		dst, err := backup.NewS3(ctx, &c.S3)
		return dst, noop, err
	case c.SFTP.Host != "":
		dst, err := backup.NewSFTP(&c.SFTP)
		if err != nil {
			return nil, noop, err
		}
		return dst, func() { log.IfErrf(dst.Close()) }, nil
	case c.HTTP.BaseURL != "":
		return &c.HTTP, noop, nil
	}
	return nil, noop, errNoBackupDestination
}
