package plugin

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type widget struct{ Size int }

func TestRegistry_BuildUnknownNameErrors(t *testing.T) {
	r := NewRegistry[*widget]()
	_, err := r.Build("missing", nil)
	require.Error(t, err)
}

func TestRegistry_RegisterAndBuild(t *testing.T) {
	r := NewRegistry[*widget]()
	r.Register("basic", func(params json.RawMessage) (*widget, error) {
		var w widget
		if len(params) > 0 {
			if err := json.Unmarshal(params, &w); err != nil {
				return nil, err
			}
		}
		return &w, nil
	})

	w, err := r.Build("basic", json.RawMessage(`{"Size":3}`))
	require.NoError(t, err)
	require.Equal(t, 3, w.Size)
	require.Contains(t, r.Names(), "basic")
}

func TestRegistry_LaterRegisterOverwrites(t *testing.T) {
	r := NewRegistry[*widget]()
	r.Register("basic", func(json.RawMessage) (*widget, error) { return &widget{Size: 1}, nil })
	r.Register("basic", func(json.RawMessage) (*widget, error) { return &widget{Size: 2}, nil })

	w, err := r.Build("basic", nil)
	require.NoError(t, err)
	require.Equal(t, 2, w.Size)
}
