package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputFlags(t *testing.T) {
	var f inputFlags
	require.NoError(t, f.Set("a=1"))
	require.NoError(t, f.Set("b=x=y"))
	assert.Error(t, f.Set("novalue"))
	assert.Equal(t, "a=1,b=x=y", f.String())
}

func TestParseInputs(t *testing.T) {
	t.Run("scalars", func(t *testing.T) {
		in, err := parseInputs([]string{
			"expected_participants=500",
			"budget=12.5",
			"remote=true",
			"event_city=San Francisco",
			"query=a=b",
			"empty=",
		}, "")
		require.NoError(t, err)
		assert.Equal(t, 500, in["expected_participants"])
		assert.Equal(t, 12.5, in["budget"])
		assert.Equal(t, true, in["remote"])
		assert.Equal(t, "San Francisco", in["event_city"])
		assert.Equal(t, "a=b", in["query"])
		assert.Equal(t, "", in["empty"])
	})

	t.Run("file then overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "inputs.yaml")
		require.NoError(t, os.WriteFile(path, []byte("topic: Go\naudience: engineers\n"), 0o600))

		in, err := parseInputs([]string{"topic=Rust"}, path)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"topic": "Rust", "audience": "engineers"}, in)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.yaml")
		require.NoError(t, os.WriteFile(path, nil, 0o600))

		in, err := parseInputs(nil, path)
		require.NoError(t, err)
		assert.NotNil(t, in)
		assert.Empty(t, in)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := parseInputs([]string{"=x"}, "")
		assert.Error(t, err)

		_, err = parseInputs(nil, filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)

		path := filepath.Join(t.TempDir(), "list.yaml")
		require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o600))
		_, err = parseInputs(nil, path)
		assert.Error(t, err)
	})
}
