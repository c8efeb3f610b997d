package configspace

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chainPCS = `
a {x, y} [x]
b {u, v} [u]
c [0, 1] [0.5]
b | a in {x}
c | b in {u}
`

func TestSpace_Active(t *testing.T) {
	space := mustParse(t, chainPCS)
	require.Equal(t, []string{"a", "b", "c"}, space.Names())

	tests := []struct {
		name string
		v    Vector
		want []bool
	}{
		{"all active", Vector{0, 0, 0.3}, []bool{true, true, true}},
		{"middle switches off leaf", Vector{0, 1, 0.3}, []bool{true, true, false}},
		{"root switches off chain", Vector{1, 0, 0.3}, []bool{true, false, false}},
		{"inactive head holding NaN", Vector{1, math.NaN(), math.NaN()}, []bool{true, false, false}},
		{"active head holding NaN", Vector{0, math.NaN(), 0.3}, []bool{true, true, false}},
		{"head index rounds up", Vector{0.9999, 0, 0.3}, []bool{true, false, false}},
		{"head index rounds down", Vector{0.0001, 0.9, 0.3}, []bool{true, true, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, space.Active(tt.v))
		})
	}
}

func TestSpace_ActiveAgreesWithDecode(t *testing.T) {
	space := mustParse(t, chainPCS)

	for _, v := range []Vector{{0.9999, 0, 0.3}, {0.4, 0.6, 0.3}, {0.5001, 0.4999, 0.3}} {
		cfg, err := space.Decode(v)
		require.NoError(t, err)
		active := space.Active(v)
		assert.Equal(t, cfg["a"].Str() == "x", active[1], "b for %v", v)
		assert.Equal(t, active[1] && cfg["b"].Str() == "u", active[2], "c for %v", v)
	}
}

func TestSpace_ParameterReturnsCopy(t *testing.T) {
	space := mustParse(t, chainPCS)

	a, ok := space.Parameter("a")
	require.True(t, ok)
	a.Choices[0] = "changed"
	a.Max = 7

	all := space.Parameters()
	all[0].Choices[1] = "changed"

	again, _ := space.Parameter("a")
	assert.Equal(t, []string{"x", "y"}, again.Choices)
	assert.Equal(t, 0.0, again.Max)

	cfg, err := space.Decode(Vector{0, 0, 0.3})
	require.NoError(t, err)
	assert.Equal(t, "x", cfg["a"].Str())

	_, ok = space.Parameter("missing")
	assert.False(t, ok)
}

func TestSpace_Repair(t *testing.T) {
	space := mustParse(t, chainPCS)

	in := Vector{1, 0, 0.3}
	out := space.Repair(in)
	assert.Equal(t, 1.0, out[0])
	assert.True(t, math.IsNaN(out[1]))
	assert.True(t, math.IsNaN(out[2]))
	assert.Equal(t, Vector{1, 0, 0.3}, in, "input must not change")

	out = space.Repair(Vector{0, math.NaN(), math.NaN()})
	assert.Equal(t, Vector{0, 0, 0.5}, out)
}

func TestSpace_IsForbidden(t *testing.T) {
	space := mustParse(t, solverPCS)

	encode := func(cfg Configuration) Vector {
		v, err := space.Encode(cfg)
		require.NoError(t, err)
		return v
	}

	assert.True(t, space.IsForbidden(encode(Configuration{
		"restarts": Categorical("none"),
		"phase":    Categorical("false"),
		"decay":    Real(0.9),
	})))
	assert.False(t, space.IsForbidden(encode(Configuration{
		"restarts": Categorical("none"),
		"phase":    Categorical("true"),
		"decay":    Real(0.9),
	})))
	assert.False(t, space.IsForbidden(space.DefaultVector()))
}

func TestSpace_IsForbiddenNumericLiterals(t *testing.T) {
	space := mustParse(t, "n [1, 10] [5] i\nr [0, 2] [1]\nm {on, off} [on]\n{n=3}\n{r=0.25, m=off}")

	encode := func(cfg Configuration) Vector {
		v, err := space.Encode(cfg)
		require.NoError(t, err)
		return v
	}

	assert.True(t, space.IsForbidden(encode(Configuration{"n": Integer(3), "r": Real(1), "m": Categorical("on")})))
	assert.False(t, space.IsForbidden(encode(Configuration{"n": Integer(4), "r": Real(1), "m": Categorical("on")})))
	assert.True(t, space.IsForbidden(encode(Configuration{"n": Integer(4), "r": Real(0.25), "m": Categorical("off")})))
	assert.False(t, space.IsForbidden(encode(Configuration{"n": Integer(4), "r": Real(0.26), "m": Categorical("off")})))
}

func TestSpace_IsForbiddenIgnoresInactive(t *testing.T) {
	space := mustParse(t, "a {x, y} [x]\nb {u, v} [u]\nb | a in {x}\n{a=y, b=u}")

	// b is inactive when a=y, so the clause can never match.
	assert.False(t, space.IsForbidden(Vector{1, math.NaN()}))
	assert.False(t, space.IsForbidden(Vector{0, 0}))
}

func TestSpace_Defaults(t *testing.T) {
	space := mustParse(t, solverPCS)

	cfg := space.Defaults()
	assert.Equal(t, Configuration{
		"restarts":     Categorical("luby"),
		"restart-base": Integer(100),
		"decay":        Real(0.95),
		"phase":        Categorical("true"),
	}, cfg)

	space = mustParse(t, "restarts {none, luby} [none]\nrb [1, 10] [2] i\nrb | restarts in {luby}")
	cfg = space.Defaults()
	assert.Equal(t, Configuration{"restarts": Categorical("none")}, cfg)

	v := space.DefaultVector()
	assert.Equal(t, 0.0, v[0])
	assert.True(t, math.IsNaN(v[1]))
}

func TestSpace_Fill(t *testing.T) {
	space := mustParse(t, "k {a, b, c} [c]\nx [0, 10] [2]\nx | k in {a}\ny | k in {a}\ny {p, q} [q]")
	// y is declared after its condition; conditions only require the head.
	require.Equal(t, []string{"k", "x", "y"}, space.Names())

	v := Vector{2, math.NaN(), math.NaN()}

	assert.Equal(t, Vector{2, -512, -512}, space.Fill(v, FillConstant(DefaultFillValue)))
	assert.Equal(t, Vector{2, 0.2, 1}, space.Fill(v, FillDefault))
	assert.Equal(t, Vector{2, 0.5, 1}, space.Fill(v, FillMean))
	assert.True(t, math.IsNaN(v[1]), "input must not change")

	full := Vector{0, 0.7, 0}
	assert.Equal(t, full, space.Fill(full, FillMean))
}

func TestParseFillPolicy(t *testing.T) {
	tests := []struct {
		in   string
		want FillPolicy
		err  bool
	}{
		{"def", FillDefault, false},
		{"mean", FillMean, false},
		{"", FillConstant(-512), false},
		{"-1.5", FillConstant(-1.5), false},
		{"median", FillPolicy{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFillPolicy(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, got.String())
		})
	}
}
