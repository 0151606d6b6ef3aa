package cas

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"github.com/meigma/cas/internal/carchive"
	"github.com/meigma/cas/internal/mmap"
)

// kindExtensionSize is the number of extension bytes the archive store
// requires: a little-endian hash kind id.
const kindExtensionSize = 2

// ArchiveSet is a read-only store formed by a collection of archive
// files, each containing many assets.
//
// Archives are built externally (see internal/carchive for the format),
// memory-mapped once at open, and grouped by the hash kind recovered
// from each archive's extension area. Lookups are zero-copy: a returned
// Asset is a window into the archive's mapping, and the mapping stays
// alive for as long as any such view does, even past Close.
//
// There is no write path. Interfaces layered over a mixed set of stores
// must report that archive sets are read-only rather than fail silently.
type ArchiveSet struct {
	groups map[HashKind][]*archive
}

type archive struct {
	m *mmap.Mapping
	r *carchive.Reader
}

// OpenArchiveSet opens the archive set in dir, creating the directory
// if absent. Every regular file in dir is mapped and opened as an
// archive. The whole open fails if any archive is malformed, declares
// an unknown hash kind, or declares a key length that disagrees with
// its kind. Serving wrong-length keys as hashes would corrupt
// addressing, so a bad archive is never silently skipped.
func OpenArchiveSet(dir string) (*ArchiveSet, error) {
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	s := &ArchiveSet{groups: make(map[HashKind][]*archive)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := s.openArchive(path); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// openArchive maps one archive file, validates its hash kind against
// its declared key length, and adds it to the kind's group.
func (s *ArchiveSet) openArchive(path string) error {
	m, err := mmap.Open(path)
	if err != nil {
		return err
	}
	r, err := carchive.Open(m.Bytes())
	if err != nil {
		m.Release()
		return fmt.Errorf("%w: %s: %v", ErrInvalidArchive, path, err)
	}
	ext := r.Extension()
	if len(ext) < kindExtensionSize {
		m.Release()
		return fmt.Errorf("%w: %s: extension area lacks a hash kind id", ErrInvalidArchive, path)
	}
	kind, ok := KindFromID(binary.LittleEndian.Uint16(ext))
	if !ok {
		m.Release()
		return fmt.Errorf("%w: %s: archive uses an unknown hash kind", ErrInvalidArchive, path)
	}
	if kind.Len() != r.KeyLen() {
		m.Release()
		return fmt.Errorf("%w: %s: key length %d does not match %s hashes (%d bytes)",
			ErrInvalidArchive, path, r.KeyLen(), kind, kind.Len())
	}
	s.groups[kind] = append(s.groups[kind], &archive{m: m, r: r})
	return nil
}

// Get returns a zero-copy view of the asset identified by h, or
// ErrNotFound. Archives within a kind's group are consulted in open
// order and the first match wins; later duplicates are never read.
func (s *ArchiveSet) Get(h Hash) (*Asset, error) {
	for _, a := range s.groups[h.Kind()] {
		off, length, ok := a.r.Lookup(h.Bytes())
		if !ok {
			continue
		}
		if off > uint64(a.m.Len()) || length > uint64(a.m.Len())-off {
			return nil, fmt.Errorf("%w: value for %s lies outside the archive", ErrInvalidArchive, h)
		}
		return newAsset(a.m.Retain(), int(off), int(length))
	}
	return nil, ErrNotFound
}

// Contains reports whether any archive in the set holds the asset.
func (s *ArchiveSet) Contains(h Hash) bool {
	for _, a := range s.groups[h.Kind()] {
		if _, _, ok := a.r.Lookup(h.Bytes()); ok {
			return true
		}
	}
	return false
}

// List enumerates every stored hash lazily, per group in open order and
// within each archive in stored key order. Key lengths were validated
// at open, so every key reconstructs; a key that somehow does not is
// skipped rather than aborting the walk. Diagnostic use only.
func (s *ArchiveSet) List() iter.Seq[Hash] {
	return func(yield func(Hash) bool) {
		for kind, group := range s.groups {
			for _, a := range group {
				for key := range a.r.Keys() {
					h, err := HashFromBytes(kind, key)
					if err != nil {
						continue
					}
					if !yield(h) {
						return
					}
				}
			}
		}
	}
}

// Close releases the set's references on its mappings. Assets obtained
// from Get remain valid until they are closed; each holds its own
// reference.
func (s *ArchiveSet) Close() error {
	var errs []error
	for _, group := range s.groups {
		for _, a := range group {
			if err := a.m.Release(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	s.groups = make(map[HashKind][]*archive)
	return errors.Join(errs...)
}
