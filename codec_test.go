package bindle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestInvoiceCodecRoundTrip(t *testing.T) {
	t.Run("all fields", func(t *testing.T) {
		inv := &Invoice{
			BindleVersion: BindleVersion1,
			Yanked:        ptr(false),
			Bindle: BindleSpec{
				Name:        "foo",
				Version:     "v1.2.3",
				Description: ptr("bar"),
				Authors:     []string{"m butcher"},
			},
			Annotations: map[string]string{"team": "storage"},
			Parcels: []Parcel{
				{
					Label: Label{
						SHA256:      "abcdef1234567890987654321",
						MediaType:   "text/toml",
						Name:        "foo.toml",
						Size:        ptr(uint64(101)),
						Annotations: map[string]string{"a": "b"},
					},
					Conditions: &Condition{MemberOf: []string{"server"}, Requires: []string{"client"}},
				},
			},
			Group: []Group{
				{Name: "server", Required: ptr(true), SatisfiedBy: ptr("allOf")},
			},
		}

		data, err := MarshalInvoice(inv)
		require.NoError(t, err)

		got, err := UnmarshalInvoice(data)
		require.NoError(t, err)
		require.Equal(t, inv, got)
	})

	t.Run("absent optionals stay absent", func(t *testing.T) {
		inv := &Invoice{
			BindleVersion: BindleVersion1,
			Bindle:        BindleSpec{Name: "foo", Version: "v1"},
		}

		data, err := MarshalInvoice(inv)
		require.NoError(t, err)
		require.NotContains(t, string(data), "yanked")
		require.NotContains(t, string(data), "parcel")

		got, err := UnmarshalInvoice(data)
		require.NoError(t, err)
		require.Nil(t, got.Yanked)
		require.Nil(t, got.Bindle.Description)
		require.Nil(t, got.Bindle.Authors)
		require.Nil(t, got.Annotations)
		require.Nil(t, got.Parcels)
		require.Nil(t, got.Group)
		require.Equal(t, inv, got)
	})
}

func TestInvoiceCodecEmptyButPresent(t *testing.T) {
	inv := &Invoice{
		BindleVersion: BindleVersion1,
		Bindle: BindleSpec{
			Name:    "foo",
			Version: "v1",
			Authors: []string{},
		},
		Annotations: map[string]string{},
		Parcels: []Parcel{
			{
				Label:      Label{SHA256: "abc", MediaType: "text/plain", Name: "a.txt", Annotations: map[string]string{}},
				Conditions: &Condition{MemberOf: []string{}},
			},
		},
		Group: []Group{},
	}

	data, err := MarshalInvoice(inv)
	require.NoError(t, err)

	got, err := UnmarshalInvoice(data)
	require.NoError(t, err)
	require.NotNil(t, got.Annotations)
	require.NotNil(t, got.Bindle.Authors)
	require.NotNil(t, got.Group)
	require.NotNil(t, got.Parcels[0].Label.Annotations)
	require.NotNil(t, got.Parcels[0].Conditions)
	require.NotNil(t, got.Parcels[0].Conditions.MemberOf)
	require.Nil(t, got.Parcels[0].Conditions.Requires)
	require.Equal(t, inv, got)

	t.Run("empty parcel list", func(t *testing.T) {
		inv := &Invoice{BindleVersion: BindleVersion1, Bindle: BindleSpec{Name: "foo", Version: "v1"}, Parcels: []Parcel{}}

		data, err := MarshalInvoice(inv)
		require.NoError(t, err)

		got, err := UnmarshalInvoice(data)
		require.NoError(t, err)
		require.NotNil(t, got.Parcels)
		require.Empty(t, got.Parcels)
	})
}

func TestUnmarshalInvoiceMalformed(t *testing.T) {
	_, err := UnmarshalInvoice([]byte("bindleVersion = [unterminated"))
	require.Error(t, err)

	_, err = UnmarshalInvoice([]byte("bindleVersion = 12\n"))
	require.Error(t, err)
}

func TestUnmarshalInvoiceIgnoresUnknownKeys(t *testing.T) {
	data := []byte(`bindleVersion = "v1.0.0"
extra = 1

[bindle]
name = "foo"
version = "v1"

[[signature]]
by = "m butcher"
signature = "abc"
`)

	inv, err := UnmarshalInvoice(data)
	require.NoError(t, err)
	require.Equal(t, "foo/v1", inv.Name())
}

func TestLabelCodecRoundTrip(t *testing.T) {
	label := &Label{
		SHA256:    "abcdef1234567890987654321",
		MediaType: "text/toml",
		Name:      "foo.toml",
		Size:      ptr(uint64(6)),
	}

	data, err := MarshalLabel(label)
	require.NoError(t, err)

	got, err := UnmarshalLabel(data)
	require.NoError(t, err)
	require.Equal(t, label, got)
}

func TestMarshalLabelUnrepresentableSize(t *testing.T) {
	label := &Label{SHA256: "abc", MediaType: "text/plain", Name: "big", Size: ptr(uint64(math.MaxUint64))}

	_, err := MarshalLabel(label)
	require.Error(t, err)
}

func TestInvoiceYankHelpers(t *testing.T) {
	inv := &Invoice{}
	require.False(t, inv.IsYanked())
	require.False(t, inv.HasParcels())

	inv.Yanked = ptr(false)
	require.False(t, inv.IsYanked())

	inv.MarkYanked()
	require.True(t, inv.IsYanked())
}
