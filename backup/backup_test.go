package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/tinykv/logkv"
)

var allCodecs = []Codec{CodecNone, CodecZstd, CodecBrotli, CodecSnappy, CodecLZ4}

func TestCodecs(t *testing.T) {
	d := []byte(strings.Repeat("SET key value with spaces\nDEL key\n", 1000))
	for _, c := range allCodecs {
		compressed, err := Compress(c, d)
		assert.NoError(t, err, "codec: %s", c)
		if c != CodecNone {
			assert.True(t, len(compressed) < len(d), "codec %s didn't compress", c)
		}
		got, err := Decompress(c, compressed)
		assert.NoError(t, err, "codec: %s", c)
		assert.True(t, bytes.Equal(d, got), "codec: %s", c)
	}

	_, err := Compress(Codec("gzip"), d)
	assert.True(t, errors.Is(err, ErrUnknownCodec))
	_, err = Decompress(Codec("gzip"), d)
	assert.True(t, errors.Is(err, ErrUnknownCodec))
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("")
	assert.NoError(t, err)
	assert.Equal(t, CodecZstd, c)
	for _, exp := range allCodecs {
		c, err = ParseCodec(string(exp))
		assert.NoError(t, err)
		assert.Equal(t, exp, c)
	}
	_, err = ParseCodec("rar")
	assert.True(t, errors.Is(err, ErrUnknownCodec))
}

func openStore(t *testing.T, n int) *logkv.Store {
	s, err := logkv.Open(filepath.Join(t.TempDir(), "store.log"))
	assert.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	for i := 0; i < n; i++ {
		k := "key " + strconv.Itoa(i%(n/2+1))
		assert.NoError(t, s.Set(k, "value\n"+strconv.Itoa(i)))
	}
	return s
}

func assertSameState(t *testing.T, s *logkv.Store, path string) {
	m, err := logkv.Replay(path)
	assert.NoError(t, err)
	assert.Equal(t, s.Len(), len(m))
	for k, v := range s.All() {
		assert.Equal(t, v, m[k], "key: %q", k)
	}
}

func TestCreateRestoreDir(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, 100)
	dst := &Dir{Dir: filepath.Join(t.TempDir(), "backups")}
	for _, c := range allCodecs {
		m, err := Create(ctx, s, dst, c)
		assert.NoError(t, err)
		assert.Equal(t, c, m.Codec)
		assert.Equal(t, s.Len(), m.Keys)
		assert.True(t, strings.HasPrefix(m.Name, "logkv-"))

		_, err = os.Stat(filepath.Join(dst.Dir, m.DataName()))
		assert.NoError(t, err)

		path := filepath.Join(t.TempDir(), "restored.log")
		m2, err := Restore(ctx, dst, m.Name, path)
		assert.NoError(t, err)
		assert.Equal(t, *m, *m2)
		assertSameState(t, s, path)
	}
}

func TestRestoreCorrupted(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, 10)
	dst := &Dir{Dir: t.TempDir()}
	m, err := Create(ctx, s, dst, CodecNone)
	assert.NoError(t, err)

	dataPath := filepath.Join(dst.Dir, m.DataName())
	d, err := os.ReadFile(dataPath)
	assert.NoError(t, err)
	d[0] = 'X'
	assert.NoError(t, os.WriteFile(dataPath, d, 0644))

	path := filepath.Join(t.TempDir(), "restored.log")
	_, err = Restore(ctx, dst, m.Name, path)
	assert.True(t, errors.Is(err, ErrChecksumMismatch))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = Restore(ctx, dst, "no-such-backup", path)
	assert.Error(t, err)
}

func TestRestoreChecksNames(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, 10)
	dst := &Dir{Dir: t.TempDir()}
	path := filepath.Join(t.TempDir(), "restored.log")

	for _, name := range []string{"", ".", "..", "../x", "a/b", `a\b`} {
		_, err := Restore(ctx, dst, name, path)
		assert.True(t, errors.Is(err, ErrInvalidName), "name: %q", name)
		_, err = dst.Get(ctx, name)
		assert.True(t, errors.Is(err, ErrInvalidName), "name: %q", name)
		assert.True(t, errors.Is(dst.Put(ctx, name, nil), ErrInvalidName), "name: %q", name)
	}

	// manifest of one backup stored under the name of another
	m1, err := Create(ctx, s, dst, CodecNone)
	assert.NoError(t, err)
	assert.NoError(t, s.Set("extra", "1"))
	m2, err := Create(ctx, s, dst, CodecNone)
	assert.NoError(t, err)
	d, err := os.ReadFile(filepath.Join(dst.Dir, manifestName(m2.Name)))
	assert.NoError(t, err)
	assert.NoError(t, os.WriteFile(filepath.Join(dst.Dir, manifestName(m1.Name)), d, 0644))
	_, err = Restore(ctx, dst, m1.Name, path)
	assert.True(t, errors.Is(err, ErrInvalidName))

	// manifest pointing outside of the directory
	d = []byte(`{"name":"../outside","codec":"none"}`)
	assert.NoError(t, os.WriteFile(filepath.Join(dst.Dir, "evil.json"), d, 0644))
	_, err = Restore(ctx, dst, "evil", path)
	assert.True(t, errors.Is(err, ErrInvalidName))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestUnmarshalManifest(t *testing.T) {
	m := &Manifest{Name: "b", Codec: CodecLZ4, Size: 10, Checksum: "abc", Keys: 2}
	d, err := m.Marshal()
	assert.NoError(t, err)
	m2, err := UnmarshalManifest(d)
	assert.NoError(t, err)
	assert.Equal(t, *m, *m2)
	assert.Equal(t, "b.log.lz4", m2.DataName())

	_, err = UnmarshalManifest([]byte(`{"name":"b","codec":"zip"}`))
	assert.True(t, errors.Is(err, ErrUnknownCodec))
	_, err = UnmarshalManifest([]byte(`{"codec":"none"}`))
	assert.Error(t, err)
	_, err = UnmarshalManifest([]byte(`not json`))
	assert.Error(t, err)
}

// memServer is an http server that stores PUT bodies and serves them on GET
type memServer struct {
	mu      sync.Mutex
	objects map[string][]byte
	apiKey  string
}

func (ms *memServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Api-Key") != ms.apiKey {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		d, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ms.objects[r.URL.Path] = d
	case http.MethodGet:
		d, ok := ms.objects[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(d)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func TestCreateRestoreHTTP(t *testing.T) {
	ctx := context.Background()
	ms := &memServer{objects: map[string][]byte{}, apiKey: "secret"}
	srv := httptest.NewServer(ms)
	defer srv.Close()

	s := openStore(t, 50)
	dst := &HTTP{BaseURL: srv.URL + "/backups/", ApiKey: "secret"}
	m, err := Create(ctx, s, dst, CodecZstd)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(ms.objects))
	_, ok := ms.objects["/backups/"+m.DataName()]
	assert.True(t, ok)

	path := filepath.Join(t.TempDir(), "restored.log")
	_, err = Restore(ctx, dst, m.Name, path)
	assert.NoError(t, err)
	assertSameState(t, s, path)

	bad := &HTTP{BaseURL: srv.URL + "/backups/", ApiKey: "wrong"}
	_, err = Create(ctx, s, bad, CodecZstd)
	assert.Error(t, err)
	_, _, err = Fetch(ctx, bad, m.Name)
	assert.Error(t, err)
}
