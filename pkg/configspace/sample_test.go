package configspace

import (
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	mu          sync.Mutex
	rejections  map[string]int
	exhaustions map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		rejections:  make(map[string]int),
		exhaustions: make(map[string]int),
	}
}

func (o *countingObserver) ObserveRejection(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejections[op]++
}

func (o *countingObserver) ObserveExhaustion(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exhaustions[op]++
}

func assertConsistent(t *testing.T, space *Space, v Vector) {
	t.Helper()
	require.Len(t, v, space.Len())

	active := space.Active(v)
	for i, p := range space.Parameters() {
		if !active[i] {
			assert.True(t, math.IsNaN(v[i]), "%s is inactive but holds %v", p.Name, v[i])
			continue
		}
		require.False(t, math.IsNaN(v[i]), "%s is active but holds NaN", p.Name)
		if p.Kind == KindCategorical {
			assert.Equal(t, math.Trunc(v[i]), v[i], "%s index not integral", p.Name)
			assert.GreaterOrEqual(t, v[i], 0.0)
			assert.Less(t, v[i], float64(p.Cardinality()))
		} else {
			assert.GreaterOrEqual(t, v[i], 0.0)
			assert.LessOrEqual(t, v[i], 1.0)
		}
	}
	assert.False(t, space.IsForbidden(v), "vector %v is forbidden", v)
}

func TestSpace_Sample(t *testing.T) {
	space := mustParse(t, solverPCS)
	rng := rand.New(rand.NewPCG(1, 2))

	seenInactive := false
	for i := 0; i < 500; i++ {
		v, err := space.Sample(rng)
		require.NoError(t, err)
		assertConsistent(t, space, v)
		if math.IsNaN(v[3]) {
			seenInactive = true
		}
	}
	assert.True(t, seenInactive, "restart-base should be inactive in some samples")
}

func TestSpace_SampleDeterministic(t *testing.T) {
	space := mustParse(t, solverPCS)

	draw := func() []Configuration {
		rng := rand.New(rand.NewPCG(42, 7))
		out := make([]Configuration, 20)
		for i := range out {
			v, err := space.Sample(rng)
			require.NoError(t, err)
			cfg, err := space.Decode(v)
			require.NoError(t, err)
			out[i] = cfg
		}
		return out
	}

	assert.Equal(t, draw(), draw())
}

func TestSpace_SampleExhaustion(t *testing.T) {
	obs := newCountingObserver()
	space := mustParse(t, "a {x} [x]\n{a=x}", WithMaxAttempts(50), WithObserver(obs))

	v, err := space.Sample(rand.New(rand.NewPCG(1, 1)))
	require.Error(t, err)
	assert.Nil(t, v)
	assert.True(t, IsExhaustion(err))
	assert.Equal(t, 50, obs.rejections[opSample])
	assert.Equal(t, 1, obs.exhaustions[opSample])
}

func TestSpace_SampleConcurrent(t *testing.T) {
	space := mustParse(t, solverPCS)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, seed))
			for i := 0; i < 100; i++ {
				v, err := space.Sample(rng)
				if assert.NoError(t, err) {
					assert.False(t, space.IsForbidden(v))
				}
			}
		}(uint64(w))
	}
	wg.Wait()
}

func TestSpace_Neighbor(t *testing.T) {
	space := mustParse(t, solverPCS)
	rng := rand.New(rand.NewPCG(3, 4))

	start := space.DefaultVector()
	before := start.Clone()

	for i := 0; i < 500; i++ {
		n, err := space.Neighbor(rng, start)
		require.NoError(t, err)
		assertConsistent(t, space, n)

		changed := 0
		for j := range n {
			same := n[j] == start[j] || (math.IsNaN(n[j]) && math.IsNaN(start[j]))
			if !same {
				changed++
			}
		}
		assert.GreaterOrEqual(t, changed, 1)
	}

	assert.Equal(t, before, start, "input must not change")
}

func TestSpace_NeighborChangesOneActiveValue(t *testing.T) {
	space := mustParse(t, solverPCS)
	rng := rand.New(rand.NewPCG(12, 13))

	cur := space.DefaultVector()
	for i := 0; i < 500; i++ {
		next, err := space.Neighbor(rng, cur)
		require.NoError(t, err)
		assertConsistent(t, space, next)

		// Positions that flip activity follow the move; of the positions
		// active on both sides only the moved one may differ.
		was, is := space.Active(cur), space.Active(next)
		moved := 0
		for j := range next {
			if was[j] && is[j] && next[j] != cur[j] {
				moved++
			}
			if !was[j] && !is[j] {
				assert.True(t, math.IsNaN(next[j]), "position %d stays inactive", j)
			}
		}
		assert.LessOrEqual(t, moved, 1, "step %d: %v -> %v", i, cur, next)
		cur = next
	}
}

func TestSpace_NeighborActivatesWithFreshDraw(t *testing.T) {
	space := mustParse(t, "a {x, y} [x]\nb [0, 1] [0.5]\nb | a in {y}")
	rng := rand.New(rand.NewPCG(5, 6))

	for i := 0; i < 50; i++ {
		n, err := space.Neighbor(rng, Vector{0, math.NaN()})
		require.NoError(t, err)
		// Only a can move, and moving it activates b.
		assert.Equal(t, 1.0, n[0])
		assert.False(t, math.IsNaN(n[1]))
		assertConsistent(t, space, n)
	}
}

func TestSpace_NeighborDeactivates(t *testing.T) {
	space := mustParse(t, "a {x, y} [x]\nb [0, 1] [0.5]\nb | a in {y}")
	rng := rand.New(rand.NewPCG(8, 9))

	deactivated := false
	for i := 0; i < 200; i++ {
		n, err := space.Neighbor(rng, Vector{1, 0.4})
		require.NoError(t, err)
		assertConsistent(t, space, n)
		if n[0] == 0 {
			assert.True(t, math.IsNaN(n[1]))
			deactivated = true
		}
	}
	assert.True(t, deactivated)
}

func TestSpace_NeighborSkipsSingleChoice(t *testing.T) {
	space := mustParse(t, "fixed {only} [only]\nx [0, 1] [0.5]")
	rng := rand.New(rand.NewPCG(10, 11))

	for i := 0; i < 100; i++ {
		n, err := space.Neighbor(rng, space.DefaultVector())
		require.NoError(t, err)
		assert.Equal(t, 0.0, n[0])
	}
}

func TestSpace_NeighborErrors(t *testing.T) {
	obs := newCountingObserver()
	space := mustParse(t, "fixed {only} [only]\nopt [0, 1] [0.5]\nopt | fixed in {only}", WithObserver(obs))
	rng := rand.New(rand.NewPCG(1, 1))

	_, err := space.Neighbor(rng, Vector{0})
	require.Error(t, err)
	assert.True(t, IsEncoding(err))

	_, err = space.Neighbor(rng, Vector{0, math.NaN()})
	require.Error(t, err)
	assert.True(t, IsExhaustion(err))
	assert.ErrorIs(t, err, &Error{Class: ErrorClassExhaustion, Code: ErrCodeNoCandidates})
	assert.Equal(t, 1, obs.exhaustions[opNeighbor])
}

func TestSpace_NeighborExhaustion(t *testing.T) {
	obs := newCountingObserver()
	space := mustParse(t, "a {x, y} [x]\n{a=y}", WithMaxAttempts(20), WithObserver(obs))

	_, err := space.Neighbor(rand.New(rand.NewPCG(1, 1)), Vector{0})
	require.Error(t, err)
	assert.ErrorIs(t, err, &Error{Class: ErrorClassExhaustion, Code: ErrCodeAttemptsReached})
	assert.Equal(t, 20, obs.rejections[opNeighbor])
}
