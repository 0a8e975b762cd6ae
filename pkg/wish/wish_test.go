package wish

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	name, err := NormalizeName("  Ada  ")
	require.NoError(t, err)
	assert.Equal(t, "Ada", name)

	_, err = NormalizeName(" A ")
	assert.ErrorIs(t, err, ErrNameTooShort)

	_, err = NormalizeName("   ")
	assert.ErrorIs(t, err, ErrNameTooShort)

	// runes, not bytes
	name, err = NormalizeName("Öz")
	require.NoError(t, err)
	assert.Equal(t, "Öz", name)
}

func TestNormalizeName_TooLong(t *testing.T) {
	_, err := NormalizeName(strings.Repeat("ş", MaxNameBytes/2+1))
	assert.ErrorIs(t, err, ErrNameTooLong)

	name, err := NormalizeName(strings.Repeat("a", MaxNameBytes))
	require.NoError(t, err)
	assert.Len(t, name, MaxNameBytes)
}

func TestEncode_WireFormat(t *testing.T) {
	a := Wish{ID: "a", ChildName: "Ada", PhotoURL: "/uploads/a.jpg"}
	b := Wish{ID: "b", ChildName: "Bo", PhotoURL: "/uploads/b.jpg"}
	c := Wish{ID: "c", ChildName: "Cem", PhotoURL: "/uploads/c.jpg"}

	frames := []struct {
		channel Channel
		payload any
	}{
		{ChannelAllWishes, []Wish{a, b}},
		{ChannelNewWish, c},
		{ChannelWishDeleted, Deleted{ID: "b"}},
		{ChannelAllCleared, nil},
		{ChannelSpotlight, c},
		{ChannelSpotlightOff, nil},
		{ChannelThemeChange, Theme{Theme: "night"}},
		{ChannelRequestSnapshot, nil},
	}

	var buf bytes.Buffer
	for _, f := range frames {
		raw, err := Encode(f.channel, f.payload)
		require.NoError(t, err)
		buf.Write(raw)
		buf.WriteByte('\n')
	}

	g := goldie.New(t)
	g.Assert(t, "envelopes", buf.Bytes())
}

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(`{"type":"new-wish","payload":{"id":"x","childName":"Xu","photoUrl":"/p"}}`))
	require.NoError(t, err)
	assert.Equal(t, ChannelNewWish, env.Type)

	var w Wish
	require.NoError(t, env.Into(&w))
	assert.Equal(t, Wish{ID: "x", ChildName: "Xu", PhotoURL: "/p"}, w)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{"payload":{}}`))
	assert.Error(t, err, "missing type")

	env, err := Decode([]byte(`{"type":"all-cleared"}`))
	require.NoError(t, err)
	var w Wish
	assert.Error(t, env.Into(&w), "no payload to decode")
}
