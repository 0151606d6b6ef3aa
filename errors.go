package cas

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrInvalidLength is returned when hash bytes do not match the
	// fixed output length of their kind.
	ErrInvalidLength = errors.New("cas: hash length does not match kind")

	// ErrUnknownKind is returned when a hash kind name or id is not
	// recognized. This can occur when reading data written by a future
	// version of this library.
	ErrUnknownKind = errors.New("cas: unknown hash kind")

	// ErrMissingDelimiter is returned when a hash string has no ":"
	// separating the kind name from the encoded value.
	ErrMissingDelimiter = errors.New(`cas: missing ":" delimiter`)

	// ErrMalformedValue is returned when the encoded portion of a hash
	// string is not valid unpadded base32 or decodes to the wrong length.
	ErrMalformedValue = errors.New("cas: malformed hash value")

	// ErrNotFound is returned when a store holds no asset for a hash.
	ErrNotFound = errors.New("cas: asset not found")

	// ErrInvalidArchive is returned when an archive file is corrupt,
	// declares an unknown hash kind, or declares a key length that does
	// not match its hash kind.
	ErrInvalidArchive = errors.New("cas: invalid archive")

	// ErrWriterDone is returned when a Writer is used after Store or
	// Abort has completed.
	ErrWriterDone = errors.New("cas: writer already finalized")
)

// ParseError describes a failure to parse a human-readable hash string.
// It wraps one of ErrMissingDelimiter, ErrUnknownKind, or
// ErrMalformedValue so callers can classify the failure with errors.Is.
type ParseError struct {
	// Input is the string that failed to parse.
	Input string

	// Err is the underlying cause.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cas: parsing hash %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
