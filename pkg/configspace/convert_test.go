package configspace

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpace_EncodeDecodeDefaults(t *testing.T) {
	space := mustParse(t, solverPCS)

	v, err := space.Encode(space.Defaults())
	require.NoError(t, err)
	assert.Equal(t, 1.0, v[2])
	assert.InDelta(t, 0.5, v[3], 1e-12)
	assert.InDelta(t, (0.95-0.5)/(0.999-0.5), v[0], 1e-12)

	cfg, err := space.Decode(v)
	require.NoError(t, err)
	assert.Equal(t, Categorical("luby"), cfg["restarts"])
	assert.Equal(t, Categorical("true"), cfg["phase"])
	assert.Equal(t, Integer(100), cfg["restart-base"])
	assert.InDelta(t, 0.95, cfg["decay"].Float(), 1e-12)
}

func TestSpace_DecodeEncodeRoundTrip(t *testing.T) {
	space := mustParse(t, solverPCS)
	rng := rand.New(rand.NewPCG(12, 13))

	for i := 0; i < 200; i++ {
		v, err := space.Sample(rng)
		require.NoError(t, err)

		cfg, err := space.Decode(v)
		require.NoError(t, err)

		back, err := space.Encode(cfg)
		require.NoError(t, err)

		again, err := space.Decode(back)
		require.NoError(t, err)

		require.Len(t, again, len(cfg))
		for name, val := range cfg {
			switch val.Kind() {
			case KindReal:
				assert.InDelta(t, val.Float(), again[name].Float(), 1e-9, name)
			default:
				assert.Equal(t, val, again[name], name)
			}
		}
	}
}

func TestSpace_DecodeOmitsInactive(t *testing.T) {
	space := mustParse(t, solverPCS)

	cfg, err := space.Decode(Vector{0.2, 0, 0, math.NaN()})
	require.NoError(t, err)
	assert.Len(t, cfg, 3)
	assert.NotContains(t, cfg, "restart-base")
	assert.Equal(t, Categorical("none"), cfg["restarts"])
}

func TestSpace_DecodeIntegerRounding(t *testing.T) {
	space := mustParse(t, "n [0, 10] [5] i")

	cfg, err := space.Decode(Vector{0.34})
	require.NoError(t, err)
	assert.Equal(t, Integer(3), cfg["n"])

	cfg, err = space.Decode(Vector{0.36})
	require.NoError(t, err)
	assert.Equal(t, Integer(4), cfg["n"])
}

func TestSpace_EncodeErrors(t *testing.T) {
	space := mustParse(t, solverPCS)

	tests := []struct {
		name string
		cfg  Configuration
		code string
	}{
		{"unknown parameter", Configuration{"nope": Real(1)}, ErrCodeUnknownParam},
		{"unknown choice", Configuration{"restarts": Categorical("always")}, ErrCodeUnknownValue},
		{"numeric for categorical", Configuration{"restarts": Integer(1)}, ErrCodeKindMismatch},
		{"categorical for numeric", Configuration{"decay": Categorical("high")}, ErrCodeKindMismatch},
		{"non-positive on log scale", Configuration{"restart-base": Integer(0)}, ErrCodeUnknownValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := space.Encode(tt.cfg)
			require.Error(t, err)
			assert.True(t, IsEncoding(err))
			assert.ErrorIs(t, err, &Error{Class: ErrorClassEncoding, Code: tt.code})
		})
	}
}

func TestSpace_DecodeErrors(t *testing.T) {
	space := mustParse(t, solverPCS)

	_, err := space.Decode(Vector{0, 0})
	assert.ErrorIs(t, err, &Error{Class: ErrorClassEncoding, Code: ErrCodeVectorLength})

	_, err = space.Decode(Vector{0.5, 0, 5, 0.5})
	assert.ErrorIs(t, err, &Error{Class: ErrorClassEncoding, Code: ErrCodeIndexRange})
}

func TestSpace_Coerce(t *testing.T) {
	space := mustParse(t, solverPCS+"\nlevel {1, 2, 3} [2]\n")

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(
		`{"restarts": "geometric", "restart-base": 200, "decay": "0.9", "phase": false, "level": 3}`), &raw))

	cfg, err := space.Coerce(raw)
	require.NoError(t, err)
	assert.Equal(t, Configuration{
		"restarts":     Categorical("geometric"),
		"restart-base": Integer(200),
		"decay":        Real(0.9),
		"phase":        Categorical("false"),
		"level":        Categorical("3"),
	}, cfg)

	_, err = space.Encode(cfg)
	require.NoError(t, err)

	_, err = space.Coerce(map[string]any{"restart-base": 2.5})
	assert.True(t, IsEncoding(err))

	_, err = space.Coerce(map[string]any{"missing": 1})
	assert.True(t, IsEncoding(err))

	_, err = space.Coerce(map[string]any{"decay": []int{1}})
	assert.True(t, IsEncoding(err))
}

func TestValue_JSON(t *testing.T) {
	out, err := json.Marshal(Configuration{
		"a": Categorical("x"),
		"b": Integer(3),
		"c": Real(0.5),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"x","b":3,"c":0.5}`, string(out))

	_, err = json.Marshal(Value{})
	assert.Error(t, err)
}

func TestVector_JSON(t *testing.T) {
	out, err := json.Marshal(Vector{0.5, math.NaN(), 1})
	require.NoError(t, err)
	assert.Equal(t, `[0.5,null,1]`, string(out))

	var v Vector
	require.NoError(t, json.Unmarshal(out, &v))
	require.Len(t, v, 3)
	assert.Equal(t, 0.5, v[0])
	assert.True(t, math.IsNaN(v[1]))
	assert.Equal(t, 1.0, v[2])

	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))
}
