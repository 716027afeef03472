// Package bindle defines the invoice and parcel data model stored by the
// registry storage engine, along with its canonical addressing scheme.
package bindle

// BindleVersion1 is the manifest schema version written by this module.
const BindleVersion1 = "v1.0.0"

// Invoice is a versioned manifest describing a package and the parcels it
// references. Only Yanked may change after the invoice is first stored.
type Invoice struct {
	BindleVersion string            `toml:"bindleVersion"`
	Yanked        *bool             `toml:"yanked,omitempty"`
	Bindle        BindleSpec        `toml:"bindle"`
	Annotations   map[string]string `toml:"annotations,omitempty"`
	Parcels       []Parcel          `toml:"parcel,omitempty"`
	Group         []Group           `toml:"group,omitempty"`
}

// BindleSpec carries the identity (name, version) and descriptive metadata of
// a package. Name and version are not normalised.
type BindleSpec struct {
	Name        string   `toml:"name"`
	Version     string   `toml:"version"`
	Description *string  `toml:"description,omitempty"`
	Authors     []string `toml:"authors,omitempty"`
}

// Label identifies a parcel's content and declared metadata. SHA256 is the
// caller-asserted digest and doubles as the parcel's storage key.
type Label struct {
	SHA256      string            `toml:"sha256"`
	MediaType   string            `toml:"mediaType"`
	Name        string            `toml:"name"`
	Size        *uint64           `toml:"size,omitempty"`
	Annotations map[string]string `toml:"annotations,omitempty"`
}

// Parcel is a reference from an invoice to stored parcel content.
type Parcel struct {
	Label      Label      `toml:"label"`
	Conditions *Condition `toml:"conditions,omitempty"`
}

// Condition describes group membership and requirements of a parcel. The
// storage engine passes it through untouched.
type Condition struct {
	MemberOf []string `toml:"memberOf,omitempty"`
	Requires []string `toml:"requires,omitempty"`
}

// Group is a named set of parcels. Opaque to the storage engine.
type Group struct {
	Name        string  `toml:"name"`
	Required    *bool   `toml:"required,omitempty"`
	SatisfiedBy *string `toml:"satisfiedBy,omitempty"`
}

// IsYanked reports whether the invoice carries yanked = true.
func (inv *Invoice) IsYanked() bool {
	return inv.Yanked != nil && *inv.Yanked
}

// MarkYanked sets the yanked flag. There is no inverse.
func (inv *Invoice) MarkYanked() {
	yanked := true
	inv.Yanked = &yanked
}

// Name returns the "<name>/<version>" identifier of the invoice.
func (inv *Invoice) Name() string {
	return InvoiceName(inv.Bindle.Name, inv.Bindle.Version)
}

// HasParcels reports whether the invoice references any parcels.
func (inv *Invoice) HasParcels() bool {
	return len(inv.Parcels) > 0
}
