package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_ComponentUpdate(t *testing.T) {
	event := ComponentUpdate("Button", "/modules/button.js", "component")

	data, err := Encode(event)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, KindComponentUpdate, decoded.Kind)
	assert.Equal(t, "Button", decoded.ComponentName)
	assert.Equal(t, "/modules/button.js", decoded.ModulePath)
	assert.Equal(t, "component", decoded.ChangeKind)
	assert.NotZero(t, decoded.Timestamp)
}

func TestEncodeDecode_FullReload(t *testing.T) {
	data, err := Encode(FullReload())
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, KindFullReload, decoded.Kind)
	assert.Empty(t, decoded.ComponentName)
}

func TestEncodeDecode_LibraryUpdate(t *testing.T) {
	data, err := Encode(LibraryUpdate("lodash", "/@modules/lodash/index.js", "_"))
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "lodash", decoded.LibraryName)
	assert.Equal(t, "_", decoded.GlobalName)
}

func TestDecode_RejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"mystery"}`))
	assert.Error(t, err)
}

func TestDecode_RejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{kind:`))
	assert.Error(t, err)
}

func TestEncode_RejectsInvalidKind(t *testing.T) {
	_, err := Encode(Event{Kind: "nope"})
	assert.Error(t, err)
}
