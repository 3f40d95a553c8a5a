package signedapk

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/apkseal/lib/ziparchive"
	"github.com/sassoftware/apkseal/lib/zipslicer"
)

func writeTestZip(t *testing.T, path string, opts ...ziparchive.Option) ziparchive.Layout {
	t.Helper()
	a, err := ziparchive.Open(path, opts...)
	require.NoError(t, err)
	require.NoError(t, a.Add(ziparchive.Entry{Name: "a.txt", Content: []byte("hi"), Method: zipslicer.Deflate}))
	require.NoError(t, a.Add(ziparchive.Entry{Name: "b.bin", Content: bytes.Repeat([]byte{1, 2, 3}, 500)}))
	layout, err := a.CloseWithLayout()
	require.NoError(t, err)
	return layout
}

func TestInsertSigningBlock(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.zip")
	layout := writeTestZip(t, path)
	before, err := os.ReadFile(path)
	require.NoError(t, err)
	block := bytes.Repeat([]byte("BLOCK"), 13)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	require.NoError(t, InsertSigningBlock(f, block, layout))
	require.NoError(t, f.Close())
	after, err := os.ReadFile(path)
	require.NoError(t, err)

	cdOffset := layout.CentralDirectory.Offset
	assert.Equal(t, int(cdOffset)+len(block)+int(layout.CentralDirectory.Size+layout.EndRecord.Size), len(after))
	assert.Equal(t, before[:cdOffset], after[:cdOffset], "payload untouched")
	assert.Equal(t, block, after[cdOffset:cdOffset+int64(len(block))])
	eocd := after[len(after)-zipslicer.DirectoryEndLen:]
	assert.Equal(t, uint32(cdOffset)+uint32(len(block)), binary.LittleEndian.Uint32(eocd[zipslicer.DirectoryOffsetField:]))
	// the rest of the directory is unchanged
	movedCD := after[cdOffset+int64(len(block)) : len(after)-zipslicer.DirectoryEndLen]
	assert.Equal(t, before[cdOffset:layout.EndRecord.Offset], movedCD)

	// still a readable zip
	inz, err := zipslicer.Read(bytes.NewReader(after), int64(len(after)))
	require.NoError(t, err)
	require.Len(t, inz.File, 2)
	blob, err := inz.File[0].ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "hi", string(blob))
}

func TestInsertSigningBlockPrecondition(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.zip")
	layout := writeTestZip(t, path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()

	bad := layout
	bad.EndRecord.Offset++
	assert.ErrorIs(t, InsertSigningBlock(f, []byte("x"), bad), ErrPrecondition)

	// a layout that doesn't match where the end record says the directory is
	bad = layout
	bad.CentralDirectory.Offset--
	bad.CentralDirectory.Size++
	assert.ErrorIs(t, InsertSigningBlock(f, []byte("x"), bad), ErrPrecondition)
}
