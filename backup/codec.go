package backup

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec is the compression used for backup data.
type Codec string

const (
	CodecNone   Codec = "none"
	CodecZstd   Codec = "zstd"
	CodecBrotli Codec = "brotli"
	CodecSnappy Codec = "snappy"
	CodecLZ4    Codec = "lz4"
)

var ErrUnknownCodec = errors.New("backup: unknown codec")

var codecExt = map[Codec]string{
	CodecNone:   "",
	CodecZstd:   ".zst",
	CodecBrotli: ".br",
	CodecSnappy: ".sz",
	CodecLZ4:    ".lz4",
}

// ParseCodec returns codec for name. Empty name means zstd.
func ParseCodec(name string) (Codec, error) {
	if name == "" {
		return CodecZstd, nil
	}
	c := Codec(name)
	if _, ok := codecExt[c]; !ok {
		return "", fmt.Errorf("%w: '%s'", ErrUnknownCodec, name)
	}
	return c, nil
}

// Ext returns file extension for data compressed with c
func (c Codec) Ext() string {
	return codecExt[c]
}

func Compress(c Codec, d []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return d, nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(d, nil), nil
	case CodecBrotli:
		var buf bytes.Buffer
		w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
		if _, err := w.Write(d); err != nil {
			return nil, fmt.Errorf("brotli write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("brotli close: %w", err)
		}
		return buf.Bytes(), nil
	case CodecSnappy:
		return snappy.Encode(nil, d), nil
	case CodecLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if err := w.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, fmt.Errorf("lz4 apply level: %w", err)
		}
		if _, err := w.Write(d); err != nil {
			return nil, fmt.Errorf("lz4 write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 close: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: '%s'", ErrUnknownCodec, c)
}

func Decompress(c Codec, d []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return d, nil
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer dec.Close()
		return dec.DecodeAll(d, nil)
	case CodecBrotli:
		return io.ReadAll(brotli.NewReader(bytes.NewReader(d)))
	case CodecSnappy:
		return snappy.Decode(nil, d)
	case CodecLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(d)))
	}
	return nil, fmt.Errorf("%w: '%s'", ErrUnknownCodec, c)
}
