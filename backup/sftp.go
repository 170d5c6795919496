package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/melbahja/goph"
	"github.com/pkg/sftp"
)

type SFTPConfig struct {
	User           string
	Host           string
	PrivateKeyPath string
	// directory on the server where backups are stored
	Dir string
}

// SFTP stores backups on a server over ssh
type SFTP struct {
	config SFTPConfig
	client *goph.Client
	sftp   *sftp.Client
}

var _ Destination = &SFTP{}

func NewSFTP(config *SFTPConfig) (*SFTP, error) {
	if config == nil {
		return nil, errors.New("must provide config")
	}
	c := config
	if c.User == "" || c.Host == "" || c.PrivateKeyPath == "" || c.Dir == "" {
		return nil, errors.New("must provide User, Host, PrivateKeyPath and Dir in config")
	}
	auth, err := goph.Key(c.PrivateKeyPath, "")
	if err != nil {
		return nil, fmt.Errorf("goph.Key() failed with '%w'", err)
	}
	client, err := goph.New(c.User, c.Host, auth)
	if err != nil {
		return nil, fmt.Errorf("goph.New() failed with '%w'", err)
	}
	sc, err := client.NewSftp()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("client.NewSftp() failed with '%w'", err)
	}
	if err = sc.MkdirAll(c.Dir); err != nil {
		sc.Close()
		client.Close()
		return nil, fmt.Errorf("sftp.MkdirAll('%s') failed with '%w'", c.Dir, err)
	}
	return &SFTP{
		config: *config,
		client: client,
		sftp:   sc,
	}, nil
}

// Put uploads to a temporary file and renames it so that
// a partial upload is never visible under name
func (s *SFTP) Put(_ context.Context, name string, data []byte) error {
	dst := path.Join(s.config.Dir, name)
	tmp := dst + ".tmp"
	f, err := s.sftp.Create(tmp)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	errClose := f.Close()
	if err == nil {
		err = errClose
	}
	if err != nil {
		_ = s.sftp.Remove(tmp)
		return err
	}
	return s.sftp.PosixRename(tmp, dst)
}

func (s *SFTP) Get(_ context.Context, name string) ([]byte, error) {
	f, err := s.sftp.Open(path.Join(s.config.Dir, name))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *SFTP) Close() error {
	err := s.sftp.Close()
	err2 := s.client.Close()
	if err != nil {
		return err
	}
	return err2
}
