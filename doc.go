// Package cas implements content-addressed asset storage: data is
// identified and retrieved solely by a cryptographic hash of its bytes,
// never by a caller-chosen name.
//
// Two stores share one addressing scheme. [LooseFiles] keeps one file
// per asset and supports crash-safe insertion: writes stream through a
// [Writer] into a private temp file and become visible only on an
// atomic rename, so a partial write can never be observed as a valid
// asset. [ArchiveSet] serves assets out of pre-built, memory-mapped
// archive files and is read-only by construction; lookups are zero-copy
// regardless of archive size.
//
// Both stores return an [Asset], a shared read-only window into a
// memory mapping. The stores never consult each other; callers that
// want "archives first, loose files as fallback" compose them directly.
//
// # Hashes
//
//	store, err := cas.OpenLooseFiles(dir)
//	if err != nil {
//	    return err
//	}
//	h, err := store.Put(data)       // blake2b:4F3K...
//	asset, err := store.Get(h)      // same bytes, memory-mapped
//
// [Hash] values are forward-compatible: both the human-readable form
// ("<kind>:<base32>") and the binary form carry a stable kind id, so
// hash kinds added by future versions parse as recognizably unknown
// rather than corrupt. New kinds may be added; none will be removed.
package cas
