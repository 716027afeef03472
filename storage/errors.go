package storage

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/wolfeidau/bindle-store/backend"
)

// Kind classifies storage failures.
type Kind int

const (
	// KindIO is an underlying filesystem failure, including an exclusive
	// create that finds its file already present.
	KindIO Kind = iota
	// KindYanked means the invoice exists but is yanked.
	KindYanked
	// KindCreateYanked means an invoice marked yanked was passed to create.
	KindCreateYanked
	// KindNotFound means the resource does not exist or its identifier could
	// not be addressed.
	KindNotFound
	// KindExists means a non-directory occupies the resource directory.
	KindExists
	// KindMalformed means a stored resource could not be decoded.
	KindMalformed
	// KindUnserializable means a value could not be encoded for writing.
	KindUnserializable
)

// Sentinels matched by errors.Is against any *Error of the same Kind.
var (
	ErrIO             = errors.New("resource could not be loaded")
	ErrYanked         = errors.New("bindle is yanked")
	ErrCreateYanked   = errors.New("bindle cannot be created as yanked")
	ErrNotFound       = errors.New("resource not found")
	ErrExists         = errors.New("resource already exists")
	ErrMalformed      = errors.New("resource is malformed")
	ErrUnserializable = errors.New("resource cannot be stored")
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindYanked:
		return "yanked"
	case KindCreateYanked:
		return "create_yanked"
	case KindNotFound:
		return "not_found"
	case KindExists:
		return "exists"
	case KindMalformed:
		return "malformed"
	case KindUnserializable:
		return "unserializable"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindYanked:
		return ErrYanked
	case KindCreateYanked:
		return ErrCreateYanked
	case KindNotFound:
		return ErrNotFound
	case KindExists:
		return ErrExists
	case KindMalformed:
		return ErrMalformed
	case KindUnserializable:
		return ErrUnserializable
	default:
		return ErrIO
	}
}

// Error is returned by every FileStorage operation.
type Error struct {
	Kind Kind
	// Op is the storage operation, for example "create_invoice".
	Op string
	// Key is the storage key involved, if any.
	Key string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := "storage: " + e.Op
	if e.Key != "" {
		msg += " " + e.Key
	}
	msg += ": " + e.Kind.sentinel().Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause so filesystem errors such as
// fs.ErrExist remain visible to errors.Is.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindName returns the Kind as a metric label.
func (e *Error) KindName() string {
	return e.Kind.String()
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsNotFound reports whether err is a KindNotFound storage error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsExists reports whether err is a KindExists storage error. Duplicate
// manifests and blobs are IO errors; see IsAlreadyExists.
func IsExists(err error) bool { return errors.Is(err, ErrExists) }

// IsYanked reports whether err is a KindYanked storage error.
func IsYanked(err error) bool { return errors.Is(err, ErrYanked) }

func newError(kind Kind, op, key string, err error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

// ioError classifies a backend error. A missing file is NotFound; an
// exclusive create that finds the file taken stays IO, with fs.ErrExist
// still reachable through Unwrap.
func ioError(op, key string, err error) *Error {
	if errors.Is(err, backend.ErrNotFound) {
		return newError(KindNotFound, op, key, err)
	}
	return newError(KindIO, op, key, err)
}

// IsAlreadyExists reports whether err comes from an exclusive create that
// found its file already present.
func IsAlreadyExists(err error) bool { return errors.Is(err, fs.ErrExist) }
