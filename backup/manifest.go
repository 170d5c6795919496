package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/pretty"
	"github.com/zeebo/xxh3"
)

// Manifest describes a backup. It's stored as <Name>.json next to the data.
type Manifest struct {
	Name  string `json:"name"`
	Codec Codec  `json:"codec"`
	// size of uncompressed snapshot
	Size           int64 `json:"size"`
	CompressedSize int64 `json:"compressedSize"`
	// xxh3 of uncompressed snapshot, hex
	Checksum  string `json:"xxh3"`
	Keys      int    `json:"keys"`
	CreatedMs int64  `json:"createdMs"`
}

// DataName is the name of the object with backup data
func (m *Manifest) DataName() string {
	return m.Name + ".log" + m.Codec.Ext()
}

var ErrInvalidName = errors.New("backup: invalid name")

// validateName rejects names that could address objects outside
// of the destination's directory or prefix
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: '%s'", ErrInvalidName, name)
	}
	return nil
}

func manifestName(name string) string {
	return name + ".json"
}

func checksum(d []byte) string {
	return strconv.FormatUint(xxh3.Hash(d), 16)
}

func (m *Manifest) Marshal() ([]byte, error) {
	d, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return pretty.Pretty(d), nil
}

func UnmarshalManifest(d []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(d, &m); err != nil {
		return nil, fmt.Errorf("backup: invalid manifest: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("backup: manifest is missing name")
	}
	if err := validateName(m.Name); err != nil {
		return nil, err
	}
	if _, ok := codecExt[m.Codec]; !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownCodec, m.Codec)
	}
	return &m, nil
}
