package blob

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, d *DirStore, name string) string {
	t.Helper()
	f, err := d.Open(name)
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(b)
}

func TestSaveReject(t *testing.T) {
	d, err := New(t.TempDir(), Reject)
	require.NoError(t, err)

	name, err := d.Save("notes.pdf", strings.NewReader("v1"))
	require.NoError(t, err)
	assert.Equal(t, "notes.pdf", name)

	_, err = d.Save("notes.pdf", strings.NewReader("v2"))
	require.ErrorIs(t, err, ErrBlobExists)
	assert.Equal(t, "v1", readAll(t, d, "notes.pdf"))
}

func TestSaveOverwrite(t *testing.T) {
	d, err := New(t.TempDir(), Overwrite)
	require.NoError(t, err)

	_, err = d.Save("notes.pdf", strings.NewReader("version one"))
	require.NoError(t, err)
	_, err = d.Save("notes.pdf", strings.NewReader("v2"))
	require.NoError(t, err)
	assert.Equal(t, "v2", readAll(t, d, "notes.pdf"))
	assert.True(t, d.Overwrites())
}

func TestSaveOverwriteFailedWriteKeepsOld(t *testing.T) {
	dir := t.TempDir()
	d, err := New(dir, Overwrite)
	require.NoError(t, err)

	_, err = d.Save("notes.pdf", strings.NewReader("v1"))
	require.NoError(t, err)
	_, err = d.Save("notes.pdf", iotest.ErrReader(errors.New("connection reset")))
	require.Error(t, err)
	assert.Equal(t, "v1", readAll(t, d, "notes.pdf"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestSaveRename(t *testing.T) {
	d, err := New(t.TempDir(), Rename)
	require.NoError(t, err)

	_, err = d.Save("notes.pdf", strings.NewReader("v1"))
	require.NoError(t, err)
	name, err := d.Save("notes.pdf", strings.NewReader("v2"))
	require.NoError(t, err)
	assert.Equal(t, "notes-1.pdf", name)
	name, err = d.Save("notes.pdf", strings.NewReader("v3"))
	require.NoError(t, err)
	assert.Equal(t, "notes-2.pdf", name)

	assert.Equal(t, "v1", readAll(t, d, "notes.pdf"))
	assert.Equal(t, "v2", readAll(t, d, "notes-1.pdf"))
}

func TestInvalidNames(t *testing.T) {
	d, err := New(t.TempDir(), Reject)
	require.NoError(t, err)

	for _, name := range []string{"", "..", "../etc/passwd", `a\b`, "dir/file"} {
		_, err := d.Save(name, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}

	_, err = d.Open("../secret")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = d.Open("missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnknownPolicy(t *testing.T) {
	_, err := New(t.TempDir(), Policy("merge"))
	require.Error(t, err)
}
