package bindle

import (
	"bytes"
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// MarshalInvoice encodes an invoice as TOML.
//
// Optional fields that are nil are left out. Maps and slices that are set
// but empty are written as empty tables and arrays, so decoding gives back
// an empty value rather than nil.
func MarshalInvoice(inv *Invoice) ([]byte, error) {
	return marshal(invoiceDoc(inv))
}

// UnmarshalInvoice decodes TOML data into an invoice. Keys that are not
// part of the schema, such as signature tables, are ignored.
func UnmarshalInvoice(data []byte) (*Invoice, error) {
	var inv Invoice
	if err := unmarshal(data, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// MarshalLabel encodes a label as TOML.
func MarshalLabel(label *Label) ([]byte, error) {
	return marshal(labelDoc(label))
}

// UnmarshalLabel decodes TOML data into a label.
func UnmarshalLabel(data []byte) (*Label, error) {
	var label Label
	if err := unmarshal(data, &label); err != nil {
		return nil, err
	}
	return &label, nil
}

func marshal(doc map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding toml: %w", err)
	}
	return buf.Bytes(), nil
}

func unmarshal(data []byte, v any) error {
	if err := toml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding toml: %w", err)
	}
	return nil
}

// The doc builders mirror the toml tags on the model types. They exist
// because struct encoding cannot tell a nil slice from an empty one.

func invoiceDoc(inv *Invoice) map[string]any {
	doc := map[string]any{
		"bindleVersion": inv.BindleVersion,
		"bindle":        bindleSpecDoc(&inv.Bindle),
	}
	if inv.Yanked != nil {
		doc["yanked"] = *inv.Yanked
	}
	putMap(doc, "annotations", inv.Annotations)
	if inv.Parcels != nil {
		parcels := make([]map[string]any, 0, len(inv.Parcels))
		for i := range inv.Parcels {
			parcels = append(parcels, parcelDoc(&inv.Parcels[i]))
		}
		doc["parcel"] = parcels
	}
	if inv.Group != nil {
		groups := make([]map[string]any, 0, len(inv.Group))
		for i := range inv.Group {
			groups = append(groups, groupDoc(&inv.Group[i]))
		}
		doc["group"] = groups
	}
	return doc
}

func bindleSpecDoc(b *BindleSpec) map[string]any {
	doc := map[string]any{
		"name":    b.Name,
		"version": b.Version,
	}
	if b.Description != nil {
		doc["description"] = *b.Description
	}
	putSlice(doc, "authors", b.Authors)
	return doc
}

func labelDoc(l *Label) map[string]any {
	doc := map[string]any{
		"sha256":    l.SHA256,
		"mediaType": l.MediaType,
		"name":      l.Name,
	}
	if l.Size != nil {
		doc["size"] = *l.Size
	}
	putMap(doc, "annotations", l.Annotations)
	return doc
}

func parcelDoc(p *Parcel) map[string]any {
	doc := map[string]any{
		"label": labelDoc(&p.Label),
	}
	if p.Conditions != nil {
		cond := map[string]any{}
		putSlice(cond, "memberOf", p.Conditions.MemberOf)
		putSlice(cond, "requires", p.Conditions.Requires)
		doc["conditions"] = cond
	}
	return doc
}

func groupDoc(g *Group) map[string]any {
	doc := map[string]any{
		"name": g.Name,
	}
	if g.Required != nil {
		doc["required"] = *g.Required
	}
	if g.SatisfiedBy != nil {
		doc["satisfiedBy"] = *g.SatisfiedBy
	}
	return doc
}

func putMap(doc map[string]any, key string, m map[string]string) {
	if m != nil {
		doc[key] = m
	}
}

func putSlice(doc map[string]any, key string, s []string) {
	if s != nil {
		doc[key] = s
	}
}
