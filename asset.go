package cas

import (
	"fmt"
	"sync/atomic"

	"github.com/meigma/cas/internal/mmap"
)

// Asset is a read-only, zero-copy view of stored content.
//
// An Asset is a window (offset and length) into a memory-mapped region.
// Many assets may share one mapping: every lookup into the same archive
// does, and Clone produces another view over the same mapping for free.
// The underlying OS mapping is torn down when the last view referencing
// it is closed, so an Asset remains valid even after the store it came
// from has been closed.
type Asset struct {
	m      *mmap.Mapping
	offset int
	length int
	closed atomic.Bool
}

// newAsset wraps a window of the mapping, taking ownership of one
// reference. The window must lie inside the mapped region.
func newAsset(m *mmap.Mapping, offset, length int) (*Asset, error) {
	if offset < 0 || length < 0 || offset+length > m.Len() {
		m.Release()
		return nil, fmt.Errorf("cas: asset window [%d, %d+%d) outside mapping of %d bytes", offset, offset, length, m.Len())
	}
	return &Asset{m: m, offset: offset, length: length}, nil
}

// Bytes returns the asset's content without copying. The slice aliases
// the underlying mapping: it must not be modified and must not be used
// after the asset is closed.
func (a *Asset) Bytes() []byte {
	return a.m.Bytes()[a.offset : a.offset+a.length]
}

// Len returns the content length in bytes.
func (a *Asset) Len() int { return a.length }

// Clone returns a new view of the same content. The clone shares the
// mapping and must be closed independently.
func (a *Asset) Clone() *Asset {
	return &Asset{m: a.m.Retain(), offset: a.offset, length: a.length}
}

// Close releases this view's reference on the mapping. It is
// idempotent. Once every view of a mapping is closed the OS mapping is
// unmapped and slices previously returned by Bytes become invalid.
func (a *Asset) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	return a.m.Release()
}
