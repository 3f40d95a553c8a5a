package zipslicer

import (
	"archive/zip"
	"bytes"
	"hash/crc32"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeZip(t *testing.T, comment string, files map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range order {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	if comment != "" {
		require.NoError(t, w.SetComment(comment))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestRead(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"a.txt":        "hi",
		"dir/b.txt":    "hello world hello world hello world",
		"empty":        "",
		"unicodé.json": "{}",
	}
	order := []string{"a.txt", "dir/b.txt", "empty", "unicodé.json"}
	t.Run("NoComment", func(t *testing.T) {
		blob := makeZip(t, "", files, order)
		d, err := Read(bytes.NewReader(blob), int64(len(blob)))
		require.NoError(t, err)
		require.Len(t, d.File, len(order))
		assert.Empty(t, d.Comment)
		assert.Equal(t, int64(len(blob)-DirectoryEndLen), d.EndLoc)
		assert.Equal(t, d.DirLoc+d.DirSize, d.EndLoc)
		for i, f := range d.File {
			assert.Equal(t, order[i], f.Name)
			contents, err := f.ReadAll()
			require.NoError(t, err)
			assert.Equal(t, files[f.Name], string(contents))
		}
		// stdlib writes data descriptors, which count toward the payload
		next, err := d.NextFileOffset()
		require.NoError(t, err)
		assert.Equal(t, d.DirLoc, next)
	})
	t.Run("Comment", func(t *testing.T) {
		blob := makeZip(t, "built by hand", files, order)
		d, err := Read(bytes.NewReader(blob), int64(len(blob)))
		require.NoError(t, err)
		assert.Equal(t, "built by hand", string(d.Comment))
		assert.Equal(t, int64(len(blob)-DirectoryEndLen-len("built by hand")), d.EndLoc)
	})
	t.Run("NotAZip", func(t *testing.T) {
		blob := bytes.Repeat([]byte("x"), 100)
		_, err := Read(bytes.NewReader(blob), int64(len(blob)))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestChecksum(t *testing.T) {
	t.Parallel()
	blob := makeZip(t, "", map[string]string{"a": "abc"}, []string{"a"})
	d, err := Read(bytes.NewReader(blob), int64(len(blob)))
	require.NoError(t, err)
	d.File[0].CRC32 ^= 1
	_, err = d.File[0].ReadAll()
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestWriteDirectory(t *testing.T) {
	t.Parallel()
	contents := []byte("stored contents")
	f, err := NewFile("stored.txt", Store, time.Date(2020, 2, 3, 4, 5, 6, 0, time.UTC), crc32.ChecksumIEEE(contents), int64(len(contents)), contents)
	require.NoError(t, err)
	var out bytes.Buffer
	n, err := f.Dump(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(fileHeaderLen+len("stored.txt")+len(contents)), n)

	f.Offset = 0
	d := &Directory{File: []*File{f}, DirLoc: int64(out.Len())}
	dirSize, endSize, err := d.WriteDirectory(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(DirectoryEndLen), endSize)
	assert.Equal(t, int64(out.Len()), d.DirLoc+dirSize+endSize)

	zr, err := zip.NewReader(bytes.NewReader(out.Bytes()), int64(out.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "stored.txt", zr.File[0].Name)
	assert.Equal(t, 2020, zr.File[0].Modified.Year())
	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	var got bytes.Buffer
	_, err = got.ReadFrom(rc)
	require.NoError(t, err)
	assert.Equal(t, contents, got.Bytes())

	end, err := ParseEndRecord(out.Bytes()[d.DirLoc+dirSize:])
	require.NoError(t, err)
	assert.Equal(t, d.DirLoc, end.DirOffset)
	assert.Equal(t, dirSize, end.DirSize)
	assert.Equal(t, 1, end.Entries)
}
