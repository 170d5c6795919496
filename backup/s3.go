package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Access   string
	Secret   string
	Bucket   string
	Endpoint string
	Region   string
	// optional, objects are stored under this prefix
	Prefix string
	// use http instead of https, for local minio
	Insecure bool
}

// S3 stores backups in S3-compatible storage
type S3 struct {
	Client *minio.Client
	config S3Config
}

var _ Destination = &S3{}

func NewS3(ctx context.Context, config *S3Config) (*S3, error) {
	if config == nil {
		return nil, errors.New("must provide config")
	}
	c := config
	if c.Access == "" || c.Secret == "" || c.Bucket == "" || c.Endpoint == "" {
		return nil, errors.New("must provide Access, Secret, Bucket and Endpoint in config")
	}
	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	found, err := mc.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}
	return &S3{
		Client: mc,
		config: *config,
	}, nil
}

func (s *S3) remotePath(name string) string {
	return path.Join(s.config.Prefix, name)
}

func (s *S3) Put(ctx context.Context, name string, data []byte) error {
	opts := minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}
	r := bytes.NewReader(data)
	_, err := s.Client.PutObject(ctx, s.config.Bucket, s.remotePath(name), r, int64(len(data)), opts)
	return err
}

func (s *S3) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.Client.GetObject(ctx, s.config.Bucket, s.remotePath(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}
