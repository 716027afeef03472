package bindle

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestInvoiceID(t *testing.T) {
	id := InvoiceID("foo", "v1.2.3")
	require.Equal(t, "5c78ff25f858e89d76f4f8591f58afb2d963057250ef9e90f231a1f2a4289842", id.String())
	require.Regexp(t, hexID, id.String())
}

func TestInvoiceIDDeterministic(t *testing.T) {
	for _, scheme := range []IDScheme{IDConcat, IDLengthPrefixed} {
		t.Run(scheme.String(), func(t *testing.T) {
			a := scheme.InvoiceID("foo", "v1.2.3")
			b := scheme.InvoiceID("foo", "v1.2.3")
			require.Equal(t, a, b)
			require.NotEqual(t, a, scheme.InvoiceID("foo", "v1.2.4"))
			require.NotEqual(t, a, scheme.InvoiceID("bar", "v1.2.3"))
		})
	}
}

func TestInvoiceIDConcatAliases(t *testing.T) {
	require.Equal(t, IDConcat.InvoiceID("ab", "c"), IDConcat.InvoiceID("a", "bc"))
	require.NotEqual(t, IDLengthPrefixed.InvoiceID("ab", "c"), IDLengthPrefixed.InvoiceID("a", "bc"))
}

func TestInvoiceIDLengthPrefixed(t *testing.T) {
	id := IDLengthPrefixed.InvoiceID("foo", "v1.2.3")
	require.Equal(t, "07de8bc810c56ab1f9af0b2be0ac7ed26b42d750ffaa004a9e4ad7547d7db767", id.String())
}

func TestIDSchemeOfInvoice(t *testing.T) {
	inv := &Invoice{Bindle: BindleSpec{Name: "foo", Version: "v1.2.3"}}
	require.Equal(t, InvoiceID("foo", "v1.2.3"), IDConcat.ID(inv))
}

func TestParseIDScheme(t *testing.T) {
	tests := []struct {
		in      string
		want    IDScheme
		wantErr bool
	}{
		{in: "", want: IDConcat},
		{in: "concat", want: IDConcat},
		{in: "length-prefixed", want: IDLengthPrefixed},
		{in: "sha1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIDScheme(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
