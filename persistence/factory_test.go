package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFromConfig_Memory(t *testing.T) {
	a, err := NewFromConfig(MemoryKind, nil)
	require.NoError(t, err)
	require.IsType(t, &Memory{}, a)
}

func TestNewFromConfig_Etcd(t *testing.T) {
	a, err := NewFromConfig(EtcdKind, []string{"localhost:2379"})
	require.NoError(t, err)
	require.IsType(t, &EtcdAdapter{}, a)
}

func TestNewFromConfig_UnknownKindErrors(t *testing.T) {
	_, err := NewFromConfig(Kind(99), nil)
	require.Error(t, err)
}
