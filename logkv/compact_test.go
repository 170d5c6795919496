package logkv

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alecthomas/assert"
)

func TestCompact(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 100; i++ {
		assert.NoError(t, s.Set("k"+strconv.Itoa(i%10), "v"+strconv.Itoa(i)))
	}
	for i := 0; i < 5; i++ {
		_, err := s.Delete("k" + strconv.Itoa(i))
		assert.NoError(t, err)
	}
	sizeBefore := s.Size()
	assert.NoError(t, s.Compact())
	assert.True(t, s.Size() < sizeBefore)
	assertLogContent(t, s.Path, "SET k5 v95", "SET k6 v96", "SET k7 v97", "SET k8 v98", "SET k9 v99")
	assert.Equal(t, 5, s.Len())

	// the store keeps appending to the new log
	assert.NoError(t, s.Set("k0", "new"))
	st, err := os.Stat(s.Path)
	assert.NoError(t, err)
	assert.Equal(t, st.Size(), s.Size())

	s = reopen(t, s)
	assert.Equal(t, 6, s.Len())
	assertGet(t, s, "k0", "new")
	assertGet(t, s, "k9", "v99")
}

func TestCompactEmpty(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Set("a", "1"))
	_, err := s.Delete("a")
	assert.NoError(t, err)
	assert.NoError(t, s.Compact())
	assert.Equal(t, int64(0), s.Size())
	assertLogContent(t, s.Path)
}

func TestCompactFailureKeepsLog(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "store.log"))
	assert.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Set("a", "1"))

	if os.Getuid() != 0 {
		// can't create the temp file in a read-only dir
		assert.NoError(t, os.Chmod(dir, 0555))
		err = s.Compact()
		assert.NoError(t, os.Chmod(dir, 0755))
		assert.Error(t, err)
		assert.NoError(t, s.Set("b", "2"))
		assertLogContent(t, s.Path, "SET a 1", "SET b 2")
	}
	assert.NoError(t, s.Compact())
}

func TestWriteSnapshot(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Set("b", "two words"))
	assert.NoError(t, s.Set("a b", "x\ny"))
	var buf bytes.Buffer
	assert.NoError(t, s.WriteSnapshot(&buf))
	assert.Equal(t, "SET \"a\\x20b\" \"x\\ny\"\nSET b two words\n", buf.String())

	m := map[string]string{}
	stats, err := ReplayReader(&buf, m)
	assert.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, map[string]string{"a b": "x\ny", "b": "two words"}, m)
}

func TestCompactClosed(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Close())
	assert.Equal(t, ErrClosed, s.Compact())
}

func TestCompactReopenFailure(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Set("a", "1"))
	assert.NoError(t, s.Set("a", "2"))

	openLog = func(path string) (logFile, int64, error) {
		return nil, 0, errors.New("simulated open error")
	}
	err := s.Compact()
	openLog = openLogForAppend
	assert.Error(t, err)
	assert.Contains(t, err.Error(), s.Path)

	// the compacted log is in place but the store is closed
	assertLogContent(t, s.Path, "SET a 2")
	assert.True(t, errors.Is(s.Set("b", "1"), ErrClosed))
	assertGet(t, s, "a", "2")

	assert.NoError(t, OpenStore(s))
	assert.NoError(t, s.Set("b", "1"))
	assertGet(t, s, "a", "2")
}
