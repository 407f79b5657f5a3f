package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFromConfig_BuildsEachKnownKind(t *testing.T) {
	for _, kind := range []Kind{FIFOKind, RoundRobinKind} {
		b, err := NewFromConfig(kind)
		require.NoError(t, err, kind)
		require.NotNil(t, b, kind)
	}
}

func TestNewFromConfig_UnknownKindErrors(t *testing.T) {
	_, err := NewFromConfig(Kind(99))
	require.Error(t, err)
}
