package bindle

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// IDSize is the size of an invoice id in bytes (SHA-256).
const IDSize = sha256.Size

// ID is the canonical storage key of an invoice.
type ID [IDSize]byte

// String returns the lowercase hex form used as the on-disk directory name.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IDScheme selects how a (name, version) pair is folded into an ID.
type IDScheme int

const (
	// IDConcat hashes the raw concatenation name||version. This is the
	// layout existing stores were written with. Pairs whose concatenations
	// are equal ("ab","c" and "a","bc") share an id.
	IDConcat IDScheme = iota

	// IDLengthPrefixed hashes each field prefixed by its 8-byte big-endian
	// length, so distinct pairs never share an encoding.
	IDLengthPrefixed
)

// String returns the scheme name.
func (s IDScheme) String() string {
	switch s {
	case IDConcat:
		return "concat"
	case IDLengthPrefixed:
		return "length-prefixed"
	default:
		return fmt.Sprintf("IDScheme(%d)", int(s))
	}
}

// ParseIDScheme converts a scheme name back into an IDScheme.
func ParseIDScheme(s string) (IDScheme, error) {
	switch s {
	case "concat", "":
		return IDConcat, nil
	case "length-prefixed":
		return IDLengthPrefixed, nil
	default:
		return 0, fmt.Errorf("unknown id scheme %q", s)
	}
}

// InvoiceID returns the canonical id for name and version using IDConcat.
func InvoiceID(name, version string) ID {
	return IDConcat.InvoiceID(name, version)
}

// InvoiceID returns the id of name and version under scheme s.
func (s IDScheme) InvoiceID(name, version string) ID {
	h := sha256.New()
	switch s {
	case IDLengthPrefixed:
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(name)))
		h.Write(n[:])
		h.Write([]byte(name))
		binary.BigEndian.PutUint64(n[:], uint64(len(version)))
		h.Write(n[:])
		h.Write([]byte(version))
	default:
		h.Write([]byte(name))
		h.Write([]byte(version))
	}
	var id ID
	h.Sum(id[:0])
	return id
}

// ID returns the canonical id of the invoice under scheme s.
func (s IDScheme) ID(inv *Invoice) ID {
	return s.InvoiceID(inv.Bindle.Name, inv.Bindle.Version)
}
