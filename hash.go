package cas

import (
	"bytes"
	"encoding/base32"
	"fmt"
	"hash"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// Blake2bLen is the output length in bytes of HashKind Blake2b.
//
// 200 bits divides evenly into both bytes and base32 code units, so the
// value encodes without slack in either the binary or the human-readable
// form.
const Blake2bLen = 25

// HashKind identifies the algorithm used to compute a Hash.
//
// The numeric value of a kind is its stable id, persisted in binary
// encodings and archive headers. Ids are append-only: new kinds may be
// added, but existing ids are never reassigned or removed. That rule is
// the forward-compatibility contract for everything written to disk.
type HashKind uint16

const (
	// Blake2b is a 200-bit BLAKE2b hash.
	Blake2b HashKind = 0
)

// DefaultKind is the recommended kind for newly computed hashes.
const DefaultKind = Blake2b

// maxHashLen is the payload length of the largest known kind. Hash
// embeds an array of this size to stay a trivially copyable value type.
const maxHashLen = Blake2bLen

// String returns the canonical lowercase name of the kind, as used in
// the human-readable hash encoding and in store directory names.
func (k HashKind) String() string {
	switch k {
	case Blake2b:
		return "blake2b"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(k))
	}
}

// Len returns the fixed output length in bytes of hashes of this kind.
func (k HashKind) Len() int {
	switch k {
	case Blake2b:
		return Blake2bLen
	default:
		return 0
	}
}

// ID returns the stable integer id of the kind.
func (k HashKind) ID() uint16 { return uint16(k) }

func (k HashKind) known() bool {
	switch k {
	case Blake2b:
		return true
	default:
		return false
	}
}

// KindFromID reconstructs a kind from a value previously obtained with
// ID. Returns false for ids this version of the library does not know.
func KindFromID(id uint16) (HashKind, bool) {
	k := HashKind(id)
	return k, k.known()
}

// ParseKind parses a canonical kind name. Returns ErrUnknownKind for
// names this version of the library does not know, including names
// introduced by future versions.
func ParseKind(s string) (HashKind, error) {
	switch s {
	case "blake2b":
		return Blake2b, nil
	default:
		return 0, ErrUnknownKind
	}
}

// base32Encoding is the unpadded RFC 4648 alphabet used by the
// human-readable hash encoding and by loose-store path names.
var base32Encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Hash uniquely identifies the content of an asset.
//
// A Hash is an immutable value type: it is cheap to copy, usable as a
// map key, and carries no ownership. Hashes have two encodings that both
// round-trip: a human-readable string form ("<kind>:<base32-value>",
// see String and ParseHash) and a binary form (kind id followed by the
// raw payload, see MarshalCBOR). Both are forward-compatible with kinds
// added in the future.
type Hash struct {
	kind HashKind
	data [maxHashLen]byte
}

// HashFromBytes constructs a Hash that was computed with the given kind
// to produce exactly the given bytes. Returns ErrInvalidLength if the
// byte count does not match the kind's output length, and ErrUnknownKind
// if the kind is not known.
func HashFromBytes(kind HashKind, b []byte) (Hash, error) {
	if !kind.known() {
		return Hash{}, ErrUnknownKind
	}
	if len(b) != kind.Len() {
		return Hash{}, ErrInvalidLength
	}
	h := Hash{kind: kind}
	copy(h.data[:], b)
	return h, nil
}

// ParseHash parses the human-readable form "<kind>:<base32-value>".
//
// The returned error is a *ParseError wrapping ErrMissingDelimiter,
// ErrUnknownKind, or ErrMalformedValue. An unknown kind is reported
// distinctly so hashes written by a future version of this library are
// recognizable as such rather than looking corrupt.
func ParseHash(s string) (Hash, error) {
	name, value, ok := strings.Cut(s, ":")
	if !ok {
		return Hash{}, &ParseError{Input: s, Err: ErrMissingDelimiter}
	}
	kind, err := ParseKind(name)
	if err != nil {
		return Hash{}, &ParseError{Input: s, Err: err}
	}
	h, err := parseHashValue(kind, value)
	if err != nil {
		return Hash{}, &ParseError{Input: s, Err: err}
	}
	return h, nil
}

// parseHashValue decodes the base32 value portion of a hash string for a
// known kind. Shared by ParseHash and the loose store's directory walk.
func parseHashValue(kind HashKind, value string) (Hash, error) {
	decoded, err := base32Encoding.DecodeString(value)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %v", ErrMalformedValue, err)
	}
	if len(decoded) != kind.Len() {
		return Hash{}, fmt.Errorf("%w: decoded to %d bytes, want %d", ErrMalformedValue, len(decoded), kind.Len())
	}
	h := Hash{kind: kind}
	copy(h.data[:], decoded)
	return h, nil
}

// Kind returns the algorithm that computed the hash.
func (h Hash) Kind() HashKind { return h.kind }

// Bytes returns the raw hash payload. The slice has exactly
// h.Kind().Len() bytes and must not be modified.
func (h Hash) Bytes() []byte { return h.data[:h.kind.Len()] }

// String returns the human-readable form. It round-trips with ParseHash.
func (h Hash) String() string {
	return h.kind.String() + ":" + base32Encoding.EncodeToString(h.Bytes())
}

// Compare orders hashes: first by kind id, then byte-wise by payload.
// It returns -1, 0, or +1, like bytes.Compare.
func (h Hash) Compare(other Hash) int {
	switch {
	case h.kind < other.kind:
		return -1
	case h.kind > other.kind:
		return 1
	}
	return bytes.Compare(h.Bytes(), other.Bytes())
}

// MarshalText implements encoding.TextMarshaler using the
// human-readable form.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// hashRecord is the binary wire shape of a Hash: a two-element array of
// the kind id followed by the raw payload bytes.
type hashRecord struct {
	_       struct{} `cbor:",toarray"`
	Kind    uint16
	Payload []byte
}

// MarshalCBOR implements cbor.Marshaler. The binary form carries the
// kind id first so decoders can determine the payload length without
// out-of-band information.
func (h Hash) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(hashRecord{Kind: h.kind.ID(), Payload: h.Bytes()})
}

// UnmarshalCBOR implements cbor.Unmarshaler. Decoding enforces the same
// invariants as HashFromBytes: the id must be known and the payload must
// have the length the kind mandates.
func (h *Hash) UnmarshalCBOR(data []byte) error {
	var rec hashRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("cas: decoding hash: %w", err)
	}
	kind, ok := KindFromID(rec.Kind)
	if !ok {
		return ErrUnknownKind
	}
	parsed, err := HashFromBytes(kind, rec.Payload)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Hasher incrementally computes a Hash of one kind.
//
// Hasher implements io.Writer (writes never fail), so hashing can be
// interleaved with I/O instead of requiring a buffered second pass.
// Finalization via Sum is one-shot: using the Hasher afterwards panics,
// since continuing to feed a finalized accumulator is a programming
// error that would silently produce wrong digests.
type Hasher struct {
	kind HashKind
	h    hash.Hash
	done bool
}

// NewHasher creates an empty Hasher for the given kind. Panics on an
// unknown kind; the set of kinds is closed at compile time.
func NewHasher(kind HashKind) *Hasher {
	switch kind {
	case Blake2b:
		h, err := blake2b.New(Blake2bLen, nil)
		if err != nil {
			// blake2b.New only fails for out-of-range sizes.
			panic("cas: blake2b init: " + err.Error())
		}
		return &Hasher{kind: kind, h: h}
	default:
		panic("cas: unknown hash kind")
	}
}

// NewDefaultHasher creates an empty Hasher for DefaultKind.
func NewDefaultHasher() *Hasher { return NewHasher(DefaultKind) }

// Kind returns the kind of hash being computed.
func (hs *Hasher) Kind() HashKind { return hs.kind }

// Write implements io.Writer. It never returns an error.
func (hs *Hasher) Write(p []byte) (int, error) {
	if hs.done {
		panic("cas: Hasher used after Sum")
	}
	hs.h.Write(p)
	return len(p), nil
}

// Sum finalizes the accumulator and returns the hash of all written
// bytes. The Hasher cannot be used again afterwards.
func (hs *Hasher) Sum() Hash {
	if hs.done {
		panic("cas: Hasher used after Sum")
	}
	hs.done = true
	out := Hash{kind: hs.kind}
	hs.h.Sum(out.data[:0])
	return out
}
