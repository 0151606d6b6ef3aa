package cas

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/meigma/cas/internal/mmap"
)

// tempDirName is the directory under the store root that buffers
// in-progress writes. Files in it are either currently open by a writer
// or orphans from an interrupted write; orphans are never treated as
// assets and are safe to delete.
const tempDirName = "temp"

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// LooseFiles is a store that keeps each asset as a separate file.
//
// Assets are easy to insert, even from multiple processes at once:
// every write streams into a privately named file under "temp" and is
// published with a single atomic rename, so readers observe either the
// absence of an asset or its complete bytes, never a partial file. No
// lock is used or needed; correctness rests on the filesystem's atomic
// exclusive-create and rename.
//
// On disk the store holds one directory per hash kind, sharded by the
// first two characters of the base32 value to bound directory fan-out:
//
//	<root>/<kind>/<first 2 base32 chars>/<remaining chars>
type LooseFiles struct {
	dir      string
	dirPerm  os.FileMode
	filePerm os.FileMode
}

// LooseOption configures a LooseFiles store.
type LooseOption func(*LooseFiles)

// WithDirPerm sets the permissions for directories the store creates.
// Defaults to 0o755.
func WithDirPerm(mode os.FileMode) LooseOption {
	return func(s *LooseFiles) {
		s.dirPerm = mode
	}
}

// WithFilePerm sets the permissions for asset files. Defaults to 0o644.
func WithFilePerm(mode os.FileMode) LooseOption {
	return func(s *LooseFiles) {
		s.filePerm = mode
	}
}

// OpenLooseFiles opens the store rooted at dir, creating the directory
// if necessary. Opening is idempotent and safe to do from multiple
// processes.
func OpenLooseFiles(dir string, opts ...LooseOption) (*LooseFiles, error) {
	if dir == "" {
		return nil, errors.New("cas: store dir is empty")
	}
	s := &LooseFiles{
		dir:      dir,
		dirPerm:  defaultDirPerm,
		filePerm: defaultFilePerm,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return nil, err
	}
	return s, nil
}

// assetPath returns the canonical sharded path for h. The path is 1:1
// with the hash: a fully named file at it contains exactly the bytes
// that produce h.
func (s *LooseFiles) assetPath(h Hash) string {
	enc := base32Encoding.EncodeToString(h.Bytes())
	return filepath.Join(s.dir, h.Kind().String(), enc[:2], enc[2:])
}

// Get returns a zero-copy view of the asset identified by h, or
// ErrNotFound. The file is memory-mapped; no content verification takes
// place on read. The path is derived from the hash and trust is anchored
// at write time.
func (s *LooseFiles) Get(h Hash) (*Asset, error) {
	m, err := mmap.Open(s.assetPath(h))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return newAsset(m, 0, m.Len())
}

// Contains reports whether the asset identified by h exists. It probes
// file metadata only.
func (s *LooseFiles) Contains(h Hash) bool {
	_, err := os.Stat(s.assetPath(h))
	return err == nil
}

// Put stages, writes, and commits data in one call, returning its hash.
func (s *LooseFiles) Put(data []byte) (Hash, error) {
	w, err := s.NewWriter()
	if err != nil {
		return Hash{}, err
	}
	if _, err := w.Write(data); err != nil {
		w.Abort()
		return Hash{}, err
	}
	return w.Store()
}

// NewWriter stages a new write. It creates the temp directory if absent
// (already existing is success) and claims an unused temp file named by
// a random 64-bit value in hex, retrying until exclusive creation
// succeeds.
func (s *LooseFiles) NewWriter() (*Writer, error) {
	tempDir := filepath.Join(s.dir, tempDirName)
	if err := os.Mkdir(tempDir, s.dirPerm); err != nil && !errors.Is(err, fs.ErrExist) {
		return nil, err
	}
	for {
		path := filepath.Join(tempDir, fmt.Sprintf("%08X", rand.Uint64()))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.filePerm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &Writer{
			store:  s,
			file:   f,
			path:   path,
			hasher: NewDefaultHasher(),
		}, nil
	}
}

// List enumerates the stored assets lazily, reconstructing each hash
// from directory and file names. Entries that do not parse as valid
// hashes are skipped, as is the temp directory. The sequence is
// single-use and intended for diagnostics: it almost never makes sense
// to access an asset whose hash you don't already know.
func (s *LooseFiles) List() iter.Seq[Hash] {
	return func(yield func(Hash) bool) {
		kindDirs, err := os.ReadDir(s.dir)
		if err != nil {
			return
		}
		for _, kindDir := range kindDirs {
			if !kindDir.IsDir() || kindDir.Name() == tempDirName {
				continue
			}
			kind, err := ParseKind(kindDir.Name())
			if err != nil {
				continue
			}
			shardDirs, err := os.ReadDir(filepath.Join(s.dir, kindDir.Name()))
			if err != nil {
				continue
			}
			for _, shardDir := range shardDirs {
				if !shardDir.IsDir() {
					continue
				}
				leaves, err := os.ReadDir(filepath.Join(s.dir, kindDir.Name(), shardDir.Name()))
				if err != nil {
					continue
				}
				for _, leaf := range leaves {
					if leaf.IsDir() {
						continue
					}
					h, err := parseHashValue(kind, shardDir.Name()+leaf.Name())
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

// writerState tracks the stage/commit lifecycle of a Writer.
type writerState uint8

const (
	writerStaging writerState = iota
	writerCommitted
	writerAborted
)

// Writer stages data for insertion into a LooseFiles store in constant
// memory. Written bytes are appended to a private temp file and fed to
// an in-progress hash computation.
//
// Store must be called to commit the data. A writer that is abandoned
// instead must call Abort to remove its temp file; failing that, the
// file remains as an orphan under temp, harmless and independently
// deletable.
type Writer struct {
	store  *LooseFiles
	file   *os.File
	path   string
	hasher *Hasher
	state  writerState
}

// Write implements io.Writer, appending to the temp file. Only the
// bytes actually written are hashed, so the final hash always matches
// exactly what is durable on disk even after a short write.
func (w *Writer) Write(p []byte) (int, error) {
	if w.state != writerStaging {
		return 0, ErrWriterDone
	}
	n, err := w.file.Write(p)
	if n > 0 {
		w.hasher.Write(p[:n])
	}
	return n, err
}

// Store commits the staged data: it finalizes the hash, flushes file
// data to stable storage, and atomically renames the temp file to the
// hash's canonical path. After a successful Store the writer is spent.
//
// Two writers racing on identical content commit harmlessly: the
// destination path is derived from the content, so whichever rename
// lands last overwrites an identical file.
func (w *Writer) Store() (Hash, error) {
	if w.state != writerStaging {
		return Hash{}, ErrWriterDone
	}
	h := w.hasher.Sum()
	dest := w.store.assetPath(h)

	if err := os.MkdirAll(filepath.Dir(dest), w.store.dirPerm); err != nil {
		w.discard()
		return Hash{}, fmt.Errorf("cas: creating shard directory: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.discard()
		return Hash{}, fmt.Errorf("cas: syncing staged data: %w", err)
	}
	if err := w.file.Close(); err != nil {
		w.discard()
		return Hash{}, fmt.Errorf("cas: closing staged data: %w", err)
	}
	if err := os.Rename(w.path, dest); err != nil {
		w.discard()
		return Hash{}, fmt.Errorf("cas: committing %s: %w", h, err)
	}
	w.state = writerCommitted
	return h, nil
}

// Abort abandons the staged write and removes the temp file. It is
// idempotent and a no-op after a successful Store. Cleanup is
// best-effort: a temp file that survives an Abort failure is an orphan,
// not a correctness problem, so the returned error may be ignored.
func (w *Writer) Abort() error {
	if w.state != writerStaging {
		return nil
	}
	w.state = writerAborted
	w.file.Close()
	return os.Remove(w.path)
}

// discard cleans up after a failed Store. Errors are deliberately
// dropped; the leftover is at worst a temp orphan.
func (w *Writer) discard() {
	w.state = writerAborted
	w.file.Close()
	os.Remove(w.path)
}
