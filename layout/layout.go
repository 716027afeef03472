// Package layout defines the on-disk naming scheme of a bindle store.
//
// All functions are pure: they derive keys and paths and never touch the
// filesystem. Keys use "/" as the separator; Path converts a key into an
// OS path under the root.
package layout

import (
	"path/filepath"
)

const (
	// InvoiceDir is the top-level directory holding invoices.
	InvoiceDir = "invoices"
	// ParcelDir is the top-level directory holding parcels.
	ParcelDir = "parcels"

	// InvoiceFile is the manifest file inside an invoice directory.
	InvoiceFile = "invoice.toml"
	// ParcelDataFile is the blob file inside a parcel directory.
	ParcelDataFile = "parcel.dat"
	// LabelFile is the label file inside a parcel directory.
	LabelFile = "label.toml"
)

// InvoiceKey returns the key of the directory for an invoice id.
func InvoiceKey(invoiceID string) string {
	return InvoiceDir + "/" + invoiceID
}

// InvoiceTOMLKey returns the key of the manifest for an invoice id.
func InvoiceTOMLKey(invoiceID string) string {
	return InvoiceKey(invoiceID) + "/" + InvoiceFile
}

// ParcelKey returns the key of the directory for a parcel id.
func ParcelKey(parcelID string) string {
	return ParcelDir + "/" + parcelID
}

// ParcelDataKey returns the key of the blob for a parcel id.
func ParcelDataKey(parcelID string) string {
	return ParcelKey(parcelID) + "/" + ParcelDataFile
}

// LabelTOMLKey returns the key of the label for a parcel id.
func LabelTOMLKey(parcelID string) string {
	return ParcelKey(parcelID) + "/" + LabelFile
}

// Layout resolves keys against a root directory.
type Layout struct {
	root string
}

// New returns a Layout rooted at root. The root is used as given.
func New(root string) Layout {
	return Layout{root: root}
}

// Root returns the root directory.
func (l Layout) Root() string {
	return l.root
}

// Path converts a key into a filesystem path under the root.
func (l Layout) Path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// InvoicePath returns R/invoices/<id>.
func (l Layout) InvoicePath(invoiceID string) string {
	return l.Path(InvoiceKey(invoiceID))
}

// InvoiceTOMLPath returns R/invoices/<id>/invoice.toml.
func (l Layout) InvoiceTOMLPath(invoiceID string) string {
	return l.Path(InvoiceTOMLKey(invoiceID))
}

// ParcelPath returns R/parcels/<id>.
func (l Layout) ParcelPath(parcelID string) string {
	return l.Path(ParcelKey(parcelID))
}

// ParcelDataPath returns R/parcels/<id>/parcel.dat.
func (l Layout) ParcelDataPath(parcelID string) string {
	return l.Path(ParcelDataKey(parcelID))
}

// LabelTOMLPath returns R/parcels/<id>/label.toml.
func (l Layout) LabelTOMLPath(parcelID string) string {
	return l.Path(LabelTOMLKey(parcelID))
}
