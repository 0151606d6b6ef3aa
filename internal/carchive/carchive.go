// Package carchive reads and writes the sorted key→value archive
// container consumed by the archive store.
//
// An archive is a single file, built once and never modified, holding
// fixed-length keys sorted ascending and arbitrary-length values. The
// layout (all integers little-endian):
//
//	magic    [4]byte   "carc"
//	version  uint16    1
//	extSize  uint16    extension area size in bytes
//	keyLen   uint32    fixed key length in bytes
//	count    uint64    number of entries
//	ext      [extSize]byte  opaque vendor extension area
//	index    count × { key [keyLen]byte, off uint64, len uint64 }
//	data     concatenated values, addressed by index offsets
//
// Index entries are sorted ascending by key, enabling binary-search
// point lookups. Value offsets are relative to the start of the file,
// so a reader over a memory-mapped archive can serve values without
// copying. The extension area carries format-embedding metadata the
// container itself does not interpret; this system stores the hash
// kind id in its first two bytes.
package carchive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
)

const (
	headerSize = 20
	version    = 1

	// entryOverhead is the per-entry index size beyond the key itself:
	// a uint64 offset and a uint64 length.
	entryOverhead = 16
)

var magic = [4]byte{'c', 'a', 'r', 'c'}

// Errors returned while opening or building archives.
var (
	ErrTruncated   = errors.New("carchive: truncated archive")
	ErrBadMagic    = errors.New("carchive: bad magic")
	ErrVersion     = errors.New("carchive: unsupported version")
	ErrKeyLength   = errors.New("carchive: invalid key length")
	ErrUnsortedKey = errors.New("carchive: keys must be added in strictly ascending order")
)

// Reader provides point lookups and full scans over an archive image.
//
// The image is typically a memory mapping; the Reader retains it and
// returns offsets into it, never copies.
type Reader struct {
	data   []byte
	keyLen int
	count  int
	ext    []byte
	index  []byte
}

// Open validates the archive image and returns a Reader over it. The
// image is retained by the Reader and must stay valid (and unmodified)
// for the Reader's lifetime.
func Open(data []byte) (*Reader, error) {
	if len(data) < headerSize {
		return nil, ErrTruncated
	}
	if !bytes.Equal(data[0:4], magic[:]) {
		return nil, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, v)
	}
	extSize := int(binary.LittleEndian.Uint16(data[6:8]))
	keyLen64 := binary.LittleEndian.Uint32(data[8:12])
	count64 := binary.LittleEndian.Uint64(data[12:20])

	if keyLen64 == 0 {
		return nil, ErrKeyLength
	}
	keyLen := int(keyLen64)

	indexStart := headerSize + extSize
	if len(data) < indexStart {
		return nil, ErrTruncated
	}
	entrySize := keyLen + entryOverhead
	maxCount := uint64(len(data)-indexStart) / uint64(entrySize)
	if count64 > maxCount || count64 > math.MaxInt32 {
		return nil, ErrTruncated
	}
	count := int(count64)

	return &Reader{
		data:   data,
		keyLen: keyLen,
		count:  count,
		ext:    data[headerSize:indexStart],
		index:  data[indexStart : indexStart+count*entrySize],
	}, nil
}

// KeyLen returns the fixed key length declared by the archive.
func (r *Reader) KeyLen() int { return r.keyLen }

// Len returns the number of entries.
func (r *Reader) Len() int { return r.count }

// Extension returns the archive's vendor extension area. The slice
// aliases the archive image and must not be modified.
func (r *Reader) Extension() []byte { return r.ext }

// key returns the i-th index key without copying.
func (r *Reader) key(i int) []byte {
	base := i * (r.keyLen + entryOverhead)
	return r.index[base : base+r.keyLen]
}

// entry returns the i-th value's offset and length.
func (r *Reader) entry(i int) (off, length uint64) {
	base := i*(r.keyLen+entryOverhead) + r.keyLen
	return binary.LittleEndian.Uint64(r.index[base:]), binary.LittleEndian.Uint64(r.index[base+8:])
}

// Lookup binary-searches for key and returns the matched value's offset
// and length within the archive image. ok is false when the key has the
// wrong length or is absent.
func (r *Reader) Lookup(key []byte) (off, length uint64, ok bool) {
	if len(key) != r.keyLen {
		return 0, 0, false
	}
	lo, hi := 0, r.count
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if bytes.Compare(r.key(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo >= r.count || !bytes.Equal(r.key(lo), key) {
		return 0, 0, false
	}
	off, length = r.entry(lo)
	return off, length, true
}

// Keys returns an iterator over all keys in stored (ascending) order.
// Yielded slices alias the archive image and must not be modified or
// retained across iterations.
func (r *Reader) Keys() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for i := range r.count {
			if !yield(r.key(i)) {
				return
			}
		}
	}
}

// Writer accumulates sorted entries and serializes an archive image.
// It belongs to the archive builder; the core store only reads the
// result. Entries are buffered in memory until WriteTo.
type Writer struct {
	keyLen  int
	ext     []byte
	keys    [][]byte
	values  [][]byte
	dataLen uint64
}

// NewWriter creates a Writer producing archives with the given fixed
// key length and vendor extension area.
func NewWriter(keyLen int, ext []byte) (*Writer, error) {
	if keyLen <= 0 {
		return nil, ErrKeyLength
	}
	if len(ext) > math.MaxUint16 {
		return nil, fmt.Errorf("carchive: extension area of %d bytes exceeds format limit", len(ext))
	}
	return &Writer{keyLen: keyLen, ext: bytes.Clone(ext)}, nil
}

// Add appends an entry. Keys must arrive in strictly ascending order;
// out-of-order or duplicate keys return ErrUnsortedKey. The key and
// value are copied.
func (w *Writer) Add(key, value []byte) error {
	if len(key) != w.keyLen {
		return ErrKeyLength
	}
	if n := len(w.keys); n > 0 && bytes.Compare(w.keys[n-1], key) >= 0 {
		return ErrUnsortedKey
	}
	w.keys = append(w.keys, bytes.Clone(key))
	w.values = append(w.values, bytes.Clone(value))
	w.dataLen += uint64(len(value))
	return nil
}

// Len returns the number of entries added so far.
func (w *Writer) Len() int { return len(w.keys) }

// WriteTo serializes the archive image to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	entrySize := w.keyLen + entryOverhead
	dataStart := uint64(headerSize + len(w.ext) + len(w.keys)*entrySize)

	buf := make([]byte, 0, int(dataStart)+int(w.dataLen))
	buf = append(buf, magic[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, version)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(w.ext)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(w.keyLen))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(w.keys)))
	buf = append(buf, w.ext...)

	off := dataStart
	for i, key := range w.keys {
		buf = append(buf, key...)
		buf = binary.LittleEndian.AppendUint64(buf, off)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(w.values[i])))
		off += uint64(len(w.values[i]))
	}
	for _, value := range w.values {
		buf = append(buf, value...)
	}

	n, err := out.Write(buf)
	return int64(n), err
}
