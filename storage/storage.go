// Package storage implements the bindle storage engine: invoice and parcel
// persistence on a hierarchical filesystem layout, the yank lifecycle and
// dependency completeness checks.
package storage

import (
	"context"
	"io"

	bindle "github.com/wolfeidau/bindle-store"
)

// Storage persists invoices and parcels.
// Implementations must be safe for concurrent use.
type Storage interface {
	// CreateInvoice stores a new invoice and returns the labels of the
	// parcels it references that are not present in storage.
	CreateInvoice(ctx context.Context, inv *bindle.Invoice) ([]bindle.Label, error)

	// GetInvoice loads the invoice identified by "<name>/<version>".
	// A yanked invoice fails with ErrYanked.
	GetInvoice(ctx context.Context, id string) (*bindle.Invoice, error)

	// GetYankedInvoice loads the invoice identified by "<name>/<version>",
	// whether or not it is yanked.
	GetYankedInvoice(ctx context.Context, id string) (*bindle.Invoice, error)

	// YankInvoice marks a stored invoice as yanked. Because invoices are
	// addressed by more than one field, the whole invoice is passed in; its
	// Yanked flag is set on success.
	YankInvoice(ctx context.Context, inv *bindle.Invoice) error

	// CreateParcel stores the parcel described by label with the content
	// read from data.
	CreateParcel(ctx context.Context, label *bindle.Label, data io.Reader) error

	// GetParcel opens the content of a parcel.
	// The caller must close the returned ReadCloser.
	GetParcel(ctx context.Context, label *bindle.Label) (io.ReadCloser, error)

	// GetLabel loads the label stored for a parcel id.
	GetLabel(ctx context.Context, parcelID string) (*bindle.Label, error)
}
