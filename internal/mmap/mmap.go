// Package mmap provides reference-counted, read-only memory mappings.
//
// A Mapping starts with one reference held by its opener. Retain adds a
// reference for each view that shares the mapping; Release drops one.
// The pages are unmapped when the last reference is released, so the
// mapping's lifetime is the union of all outstanding views.
package mmap

import (
	"errors"
	"os"
	"sync/atomic"
)

// ErrInvalidSize is returned when a file reports a negative size.
var ErrInvalidSize = errors.New("mmap: invalid file size")

// Mapping is a read-only memory mapping of a file.
type Mapping struct {
	data []byte
	refs atomic.Int64
}

// Open maps the file at path into memory as read-only. A zero-length
// file yields a valid mapping with no data. The returned mapping holds
// one reference; the underlying file descriptor is not kept open.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size < 0 {
		return nil, ErrInvalidSize
	}

	m := &Mapping{}
	m.refs.Store(1)
	if size == 0 {
		return m, nil
	}

	data, err := osMap(f, int(size))
	if err != nil {
		return nil, err
	}
	m.data = data
	return m, nil
}

// Bytes returns the mapped file contents. The slice is valid until the
// last reference is released and must not be modified.
func (m *Mapping) Bytes() []byte { return m.data }

// Len returns the size of the mapping in bytes.
func (m *Mapping) Len() int { return len(m.data) }

// Retain adds a reference and returns the mapping for chaining.
func (m *Mapping) Retain() *Mapping {
	m.refs.Add(1)
	return m
}

// Release drops one reference. When the count reaches zero the pages
// are unmapped; any byte slices obtained from Bytes become invalid.
// Releasing more times than retained panics.
func (m *Mapping) Release() error {
	n := m.refs.Add(-1)
	if n < 0 {
		panic("mmap: release of unreferenced mapping")
	}
	if n > 0 {
		return nil
	}
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	return osUnmap(data)
}
