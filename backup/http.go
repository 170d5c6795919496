package backup

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/carlmjohnson/requests"
)

// HTTP stores backups on a server that accepts PUT and GET under BaseURL
type HTTP struct {
	BaseURL string
	// optional, sent as X-Api-Key header
	ApiKey string
	// per request, defaults to 60 seconds
	Timeout time.Duration
}

var _ Destination = &HTTP{}

func (h *HTTP) request(name string) (*requests.Builder, error) {
	uri, err := url.JoinPath(h.BaseURL, name)
	if err != nil {
		return nil, err
	}
	rb := requests.URL(uri)
	if h.ApiKey != "" {
		rb = rb.Header("X-Api-Key", h.ApiKey)
	}
	return rb, nil
}

func (h *HTTP) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := h.Timeout
	if timeout == 0 {
		timeout = time.Second * 60
	}
	return context.WithTimeout(ctx, timeout)
}

func (h *HTTP) Put(ctx context.Context, name string, data []byte) error {
	rb, err := h.request(name)
	if err != nil {
		return err
	}
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	return rb.
		Method(http.MethodPut).
		BodyBytes(data).
		ContentType("application/octet-stream").
		Fetch(ctx)
}

func (h *HTTP) Get(ctx context.Context, name string) ([]byte, error) {
	rb, err := h.request(name)
	if err != nil {
		return nil, err
	}
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()
	var buf bytes.Buffer
	err = rb.ToBytesBuffer(&buf).Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
