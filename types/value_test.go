package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestValueJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		json string
	}{
		{"string", String("gp2"), `"gp2"`},
		{"number", Number(500), `500`},
		{"bool", Boolean(true), `true`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.in)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(data))

			var out Value
			require.NoError(t, json.Unmarshal(data, &out))
			assert.True(t, tt.in.Equal(out))
		})
	}
}

func TestValueYAMLScalar(t *testing.T) {
	var v Value
	require.NoError(t, yaml.Unmarshal([]byte(`gp2`), &v))
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "gp2", s)

	require.NoError(t, yaml.Unmarshal([]byte(`42`), &v))
	n, ok := v.AsNumber()
	require.True(t, ok)
	assert.Equal(t, 42.0, n)
}

func TestValueEqualKindMismatch(t *testing.T) {
	// "500" the string never equals 500 the number
	assert.False(t, String("500").Equal(Number(500)))
}
