package logsource

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDeserializer_UnknownNameErrors(t *testing.T) {
	_, err := NewDeserializer("does-not-exist")
	require.Error(t, err)
}

func TestNewDeserializer_JSONArrayIsRegisteredByDefault(t *testing.T) {
	d, err := NewDeserializer("json-array")
	require.NoError(t, err)

	values, err := d.Deserialize([]byte(`["a", 1, true]`))
	require.NoError(t, err)
	require.Equal(t, []any{"a", float64(1), true}, values)
}

func TestNewDeserializer_JSONArrayMalformedPayloadIsNilNil(t *testing.T) {
	d, err := NewDeserializer("json-array")
	require.NoError(t, err)

	values, err := d.Deserialize([]byte(`not json`))
	require.NoError(t, err)
	require.Nil(t, values)
}

func TestRegisterDeserializer_OverridesLookup(t *testing.T) {
	RegisterDeserializer("test.registry.constant", func() Deserializer {
		return DeserializerFunc(func([]byte) ([]any, error) { return []any{"constant"}, nil })
	})

	d, err := NewDeserializer("test.registry.constant")
	require.NoError(t, err)

	values, err := d.Deserialize([]byte("ignored"))
	require.NoError(t, err)
	require.Equal(t, []any{"constant"}, values)
}
