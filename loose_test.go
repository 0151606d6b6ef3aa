package cas

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestOpenLooseFilesIdempotent(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "store")
	_, err := OpenLooseFiles(dir)
	require.NoError(t, err)

	// Reopening an existing store is not an error.
	_, err = OpenLooseFiles(dir)
	require.NoError(t, err)

	_, err = OpenLooseFiles("")
	assert.Error(t, err)
}

func TestPutGetList(t *testing.T) {
	t.Parallel()

	store, err := OpenLooseFiles(t.TempDir())
	require.NoError(t, err)

	h, err := store.Put([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, DefaultKind, h.Kind())

	asset, err := store.Get(h)
	require.NoError(t, err)
	defer asset.Close()
	assert.Equal(t, []byte("hello"), asset.Bytes())
	assert.Equal(t, 5, asset.Len())

	var listed []Hash
	for got := range store.List() {
		listed = append(listed, got)
	}
	require.Len(t, listed, 1)
	assert.Equal(t, h, listed[0])
}

func TestPutIdempotent(t *testing.T) {
	t.Parallel()

	store, err := OpenLooseFiles(t.TempDir())
	require.NoError(t, err)

	content := []byte("written twice")
	first, err := store.Put(content)
	require.NoError(t, err)
	second, err := store.Put(content)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// The second commit must not have corrupted the first.
	data, err := os.ReadFile(store.assetPath(first))
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	store, err := OpenLooseFiles(t.TempDir())
	require.NoError(t, err)

	absent := testHash(t, 0x42)
	_, err = store.Get(absent)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, store.Contains(absent))
}

func TestShardedLayout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := OpenLooseFiles(dir)
	require.NoError(t, err)

	h, err := store.Put([]byte("layout"))
	require.NoError(t, err)

	enc := base32Encoding.EncodeToString(h.Bytes())
	path := filepath.Join(dir, "blake2b", enc[:2], enc[2:])
	data, err := os.ReadFile(path)
	require.NoError(t, err, "asset file should live at the sharded path")
	assert.Equal(t, []byte("layout"), data)
	assert.True(t, store.Contains(h))
}

func TestStagedWriteInvisible(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := OpenLooseFiles(dir)
	require.NoError(t, err)

	content := []byte("staged but not committed")
	expected := NewDefaultHasher()
	expected.Write(content)
	h := expected.Sum()

	w, err := store.NewWriter()
	require.NoError(t, err)
	_, err = w.Write(content)
	require.NoError(t, err)

	// The asset must not be observable before Store: readers see the
	// old state (absent), never a partial file.
	_, err = store.Get(h)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, store.Contains(h))

	// The in-flight bytes are buffered under temp.
	temps, err := os.ReadDir(filepath.Join(dir, tempDirName))
	require.NoError(t, err)
	assert.Len(t, temps, 1)

	got, err := w.Store()
	require.NoError(t, err)
	assert.Equal(t, h, got)

	asset, err := store.Get(h)
	require.NoError(t, err)
	defer asset.Close()
	assert.Equal(t, content, asset.Bytes())
}

func TestWriterAbort(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := OpenLooseFiles(dir)
	require.NoError(t, err)

	w, err := store.NewWriter()
	require.NoError(t, err)
	_, err = w.Write([]byte("abandoned mid-stream"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	// No asset became visible and the temp file is gone.
	for range store.List() {
		t.Fatal("List() yielded an asset after an aborted write")
	}
	temps, err := os.ReadDir(filepath.Join(dir, tempDirName))
	require.NoError(t, err)
	assert.Empty(t, temps)

	// Abort is idempotent, and the writer is spent.
	assert.NoError(t, w.Abort())
	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrWriterDone)
	_, err = w.Store()
	assert.ErrorIs(t, err, ErrWriterDone)
}

func TestWriterSpentAfterStore(t *testing.T) {
	t.Parallel()

	store, err := OpenLooseFiles(t.TempDir())
	require.NoError(t, err)

	w, err := store.NewWriter()
	require.NoError(t, err)
	_, err = w.Write([]byte("committed"))
	require.NoError(t, err)
	h, err := w.Store()
	require.NoError(t, err)

	_, err = w.Store()
	assert.ErrorIs(t, err, ErrWriterDone)

	// Abort after a successful Store must not delete the asset.
	assert.NoError(t, w.Abort())
	assert.True(t, store.Contains(h))
}

func TestPutEmpty(t *testing.T) {
	t.Parallel()

	store, err := OpenLooseFiles(t.TempDir())
	require.NoError(t, err)

	h, err := store.Put(nil)
	require.NoError(t, err)

	asset, err := store.Get(h)
	require.NoError(t, err)
	defer asset.Close()
	assert.Zero(t, asset.Len())
	assert.Empty(t, asset.Bytes())
}

func TestAssetClone(t *testing.T) {
	t.Parallel()

	store, err := OpenLooseFiles(t.TempDir())
	require.NoError(t, err)

	h, err := store.Put([]byte("shared view"))
	require.NoError(t, err)

	asset, err := store.Get(h)
	require.NoError(t, err)

	clone := asset.Clone()
	require.NoError(t, asset.Close())
	require.NoError(t, asset.Close()) // idempotent

	// The clone holds its own reference: the mapping is still live.
	assert.Equal(t, []byte("shared view"), clone.Bytes())
	require.NoError(t, clone.Close())
}

func TestListSkipsUnparsableEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := OpenLooseFiles(dir)
	require.NoError(t, err)

	h, err := store.Put([]byte("real asset"))
	require.NoError(t, err)

	// Junk that must not abort or pollute enumeration: a stray file at
	// the root, an unknown kind directory, and a bad leaf name.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("junk"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sha9999", "AA"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sha9999", "AA", "BBBB"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blake2b", "not-base32!"), nil, 0o644))

	var listed []Hash
	for got := range store.List() {
		listed = append(listed, got)
	}
	require.Len(t, listed, 1)
	assert.Equal(t, h, listed[0])
}

func TestConcurrentPuts(t *testing.T) {
	t.Parallel()

	store, err := OpenLooseFiles(t.TempDir())
	require.NoError(t, err)

	// Mix of distinct payloads and deliberate collisions on identical
	// content: racing writers publish via rename, so identical content
	// must commit cleanly from every goroutine.
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			for j := range 16 {
				if _, err := store.Put(fmt.Appendf(nil, "payload-%d", j)); err != nil {
					return err
				}
			}
			_, err := store.Put([]byte("contended content"))
			return err
		})
	}
	require.NoError(t, g.Wait())

	count := 0
	for range store.List() {
		count++
	}
	assert.Equal(t, 17, count) // 16 distinct payloads + 1 contended
}
