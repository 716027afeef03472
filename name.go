package bindle

import (
	"errors"
	"fmt"
	"strings"
)

// NameSeparator splits the name and version parts of an invoice identifier.
const NameSeparator = "/"

// ErrInvalidName is returned when an identifier cannot be split into a name
// and a version.
var ErrInvalidName = errors.New("bindle: invalid invoice name")

// InvoiceName joins a name and version into an identifier accepted by
// ParseInvoiceName.
func InvoiceName(name, version string) string {
	return name + NameSeparator + version
}

// ParseInvoiceName splits "<name>/<version>" into its parts. The name may
// itself contain separators; only the final segment is the version.
func ParseInvoiceName(id string) (name, version string, err error) {
	idx := strings.LastIndex(id, NameSeparator)
	if idx < 0 {
		return "", "", fmt.Errorf("%w: %q has no version component", ErrInvalidName, id)
	}
	name, version = id[:idx], id[idx+len(NameSeparator):]
	if name == "" {
		return "", "", fmt.Errorf("%w: %q has no name component", ErrInvalidName, id)
	}
	if version == "" {
		return "", "", fmt.Errorf("%w: %q has no version component", ErrInvalidName, id)
	}
	return name, version, nil
}
