package logsource

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeserializerFunc_AdaptsPlainFunction(t *testing.T) {
	var d Deserializer = DeserializerFunc(func(value []byte) ([]any, error) {
		return []any{string(value)}, nil
	})

	values, err := d.Deserialize([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []any{"hello"}, values)
}
