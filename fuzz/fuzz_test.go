package fuzz

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldNamesRoundTrip(t *testing.T) {
	for _, field := range Fields() {
		parsed, err := ParseField("case", field.String())
		require.NoError(t, err, field.String())
		assert.Equal(t, field, parsed)
	}
}

func TestParseUnknownField(t *testing.T) {
	_, err := ParseField("bad_case", "dev_bNotAField")
	var malformed *MalformedOverrideTarget
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "bad_case", malformed.CaseName)
	assert.Equal(t, "dev_bNotAField", malformed.Name)
}

func TestContextSubstitutesOnlyTarget(t *testing.T) {
	ctx := NewContext(RunModeFullFuzz, &Override{CaseName: "c", Field: FieldDeviceMaxPacketSize0, Value: []byte{0xff}})
	assert.Equal(t, []byte{0x40}, ctx.U8(FieldDeviceClass, 0x40))
	assert.Equal(t, 0, ctx.Hits())
	assert.Equal(t, []byte{0xff}, ctx.U8(FieldDeviceMaxPacketSize0, 0x40))
	assert.Equal(t, 1, ctx.Hits())
}

func TestContextOverrideChangesWidth(t *testing.T) {
	ctx := NewContext(RunModeFullFuzz, &Override{Field: FieldConfigTotalLength, Value: []byte{0x01}})
	assert.Equal(t, []byte{0x01}, ctx.U16(FieldConfigTotalLength, 0x0022))
}

func TestNilContext(t *testing.T) {
	var ctx *Context
	assert.Equal(t, []byte{0x34, 0x12}, ctx.U16(FieldDeviceVendorID, 0x1234))
	assert.Nil(t, ctx.Override())
	assert.Equal(t, 0, ctx.Hits())
}

func TestWriter(t *testing.T) {
	data := NewWriter(nil).
		U8(FieldDeviceLength, 18).
		U16BE(FieldPrinterDeviceIDLength, 0x0102).
		U32(FieldCSWTag, 0xdeadbeef).
		U24BE(FieldFormatCapacityBlockLength, 0x000200).
		Bytes()
	assert.Equal(t, []byte{18, 0x01, 0x02, 0xef, 0xbe, 0xad, 0xde, 0x00, 0x02, 0x00}, data)
}

func TestRunModeBranches(t *testing.T) {
	assert.True(t, RunModeInteractive.StallsUnroutable())
	assert.False(t, RunModeFullFuzz.StallsUnroutable())
	assert.True(t, RunModeFuzzSingleShot.Fuzzing())
	assert.False(t, RunModeIdentify.Fuzzing())
}

func TestGenerateScopesClassFields(t *testing.T) {
	catalog := Generate([]Target{{Class: 0x03, Subclass: 0x01, Protocol: 0x01}})
	require.NotEmpty(t, catalog)
	sawHID := false
	for _, c := range catalog {
		override, err := c.Override()
		require.NoError(t, err)
		owner := override.Field.Owner()
		assert.True(t, owner == 0 || owner == 0x03, c.Name)
		if owner == 0x03 {
			sawHID = true
		}
	}
	assert.True(t, sawHID)
	require.NoError(t, catalog.Validate())
}

func TestCatalogSaveLoad(t *testing.T) {
	catalog := Generate([]Target{{Class: 0x07, Subclass: 0x01, Protocol: 0x02}})
	buffer := new(bytes.Buffer)
	require.NoError(t, catalog.Save(buffer))
	loaded, err := LoadCatalog(buffer)
	require.NoError(t, err)
	require.Len(t, loaded, len(catalog))
	c, ok := loaded.Find(catalog[3].Name)
	require.True(t, ok)
	assert.Equal(t, catalog[3].Field, c.Field)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	catalog := Catalog{{Name: "x", Field: "nope", Value: []byte{0}}}
	buffer := new(bytes.Buffer)
	require.NoError(t, catalog.Save(buffer))
	_, err := LoadCatalog(buffer)
	var malformed *MalformedOverrideTarget
	assert.True(t, errors.As(err, &malformed))
}
