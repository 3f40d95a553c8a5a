package ziparchive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/apkseal/lib/zipslicer"
)

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	ret := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		blob, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		ret[f.Name] = string(blob)
	}
	return ret
}

func TestArchive(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.zip")
	a, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, a.Add(Entry{Name: "a.txt", Content: []byte("hi"), Method: zipslicer.Deflate}))
	require.NoError(t, a.Add(Entry{Name: "b.bin", Content: bytes.Repeat([]byte{7}, 1000), Method: zipslicer.Store}))
	require.NoError(t, a.Add(Entry{Name: "c.txt", Content: []byte("gone soon")}))
	assert.ErrorIs(t, a.Add(Entry{Name: "a.txt", Content: []byte("again")}), ErrExists)
	assert.Error(t, a.Add(Entry{Name: "/abs", Content: nil}))

	blob, ok, err := a.ContentOf("a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hi", string(blob))
	_, ok, err = a.ContentOf("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Delete("c.txt"))
	require.NoError(t, a.Delete("c.txt"), "deleting an absent entry is not an error")
	assert.Equal(t, []string{"a.txt", "b.bin"}, a.Names())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "nothing is written before close")

	layout, err := a.CloseWithLayout()
	require.NoError(t, err)
	assert.True(t, a.Closed())
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, st.Size(), layout.Size())
	assert.Equal(t, int64(0), layout.Payload.Offset)
	assert.Equal(t, layout.Payload.End(), layout.CentralDirectory.Offset)
	assert.Equal(t, layout.CentralDirectory.End(), layout.EndRecord.Offset)
	assert.Equal(t, int64(zipslicer.DirectoryEndLen), layout.EndRecord.Size)

	assert.Equal(t, map[string]string{
		"a.txt": "hi",
		"b.bin": string(bytes.Repeat([]byte{7}, 1000)),
	}, readZip(t, path))

	// terminal
	assert.ErrorIs(t, a.Add(Entry{Name: "d"}), ErrClosed)
	_, _, err = a.ContentOf("a.txt")
	assert.ErrorIs(t, err, ErrClosed)
	layout2, err := a.CloseWithLayout()
	require.NoError(t, err)
	assert.Equal(t, layout, layout2)
}

func TestReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.zip")
	a, err := Open(path, WithComment([]byte("note")))
	require.NoError(t, err)
	require.NoError(t, a.Add(Entry{Name: "keep", Content: []byte("kept"), Method: zipslicer.Deflate}))
	require.NoError(t, a.Add(Entry{Name: "drop", Content: []byte("dropped")}))
	require.NoError(t, a.Close())

	// existing entries and the comment carry over
	a, err = Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep", "drop"}, a.Names())
	require.NoError(t, a.Delete("drop"))
	require.NoError(t, a.Add(Entry{Name: "new", Content: []byte("fresh")}))
	layout, err := a.CloseWithLayout()
	require.NoError(t, err)
	assert.Equal(t, int64(zipslicer.DirectoryEndLen+len("note")), layout.EndRecord.Size)
	assert.Equal(t, map[string]string{"keep": "kept", "new": "fresh"}, readZip(t, path))

	a, err = Open(path, WithTruncate())
	require.NoError(t, err)
	assert.Empty(t, a.Names())
	require.NoError(t, a.Add(Entry{Name: "only", Content: []byte("1")}))
	require.NoError(t, a.Close())
	assert.Equal(t, map[string]string{"only": "1"}, readZip(t, path))
}

func TestAddFromZip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"classes.dex", "res/layout.xml", "skip.me"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("contents of " + name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	srcDir, err := zipslicer.Read(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	path := filepath.Join(dir, "out.zip")
	a, err := Open(path)
	require.NoError(t, err)
	names, err := a.AddFromZip(srcDir, func(name string) bool { return name != "skip.me" })
	require.NoError(t, err)
	assert.Equal(t, []string{"classes.dex", "res/layout.xml"}, names)
	blob, ok, err := a.ContentOf("classes.dex")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "contents of classes.dex", string(blob))
	_, err = a.AddFromZip(srcDir, nil)
	assert.ErrorIs(t, err, ErrExists)
	assert.Len(t, a.Names(), 2, "a failed copy adds nothing")
	require.NoError(t, a.Close())
	assert.Equal(t, map[string]string{
		"classes.dex":    "contents of classes.dex",
		"res/layout.xml": "contents of res/layout.xml",
	}, readZip(t, path))
	// the source directory is not disturbed by relocation
	assert.Equal(t, uint64(0), srcDir.File[0].Offset)
}
