package traffic

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) Outcome { return Outcome{Succeeded: true, Class: ClassOK} }

func weighted(pairs ...any) []Action {
	var actions []Action
	for i := 0; i < len(pairs); i += 2 {
		actions = append(actions, Action{Name: pairs[i].(string), Weight: pairs[i+1].(float64), Invoke: noop})
	}
	return actions
}

func TestSelector_ConvergesToWeights(t *testing.T) {
	s, err := NewSelector(weighted("A", 0.3, "B", 0.7))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	const draws = 10000
	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		counts[s.Pick(rng).Name]++
	}

	share := float64(counts["A"]) / draws
	assert.GreaterOrEqual(t, share, 0.27)
	assert.LessOrEqual(t, share, 0.33)
	assert.Equal(t, draws, counts["A"]+counts["B"])
}

func TestSelector_WeightsNeedNotSumToOne(t *testing.T) {
	s, err := NewSelector(weighted("A", 2.0, "B", 6.0))
	require.NoError(t, err)
	assert.Equal(t, 8.0, s.Total())

	rng := rand.New(rand.NewSource(7))
	a := 0
	for i := 0; i < 10000; i++ {
		if s.Pick(rng).Name == "A" {
			a++
		}
	}
	assert.InDelta(t, 0.25, float64(a)/10000, 0.03)
}

func TestSelector_Index(t *testing.T) {
	s, err := NewSelector(weighted("A", 1.0, "zero", 0.0, "B", 1.0, "tail", 0.0))
	require.NoError(t, err)

	tests := []struct {
		r    float64
		want string
	}{
		{0, "A"},
		{0.999, "A"},
		{1.0, "B"}, // A covers [0, 1)
		{1.5, "B"},
		{math.Nextafter(2.0, 0), "B"},
		{2.0, "B"}, // rounding up to the total never lands on a zero weight tail
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Actions()[s.Index(tt.r)].Name, "r=%v", tt.r)
	}
}

func TestSelector_ZeroWeightNeverPicked(t *testing.T) {
	s, err := NewSelector(weighted("never", 0.0, "always", 1.0, "never2", 0.0))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		require.Equal(t, "always", s.Pick(rng).Name)
	}
}

func TestSelector_SeededSequenceIsReproducible(t *testing.T) {
	s, err := NewSelector(weighted("A", 1.0, "B", 2.0, "C", 3.0))
	require.NoError(t, err)

	draw := func(seed int64) []string {
		rng := rand.New(rand.NewSource(seed))
		out := make([]string, 50)
		for i := range out {
			out[i] = s.Pick(rng).Name
		}
		return out
	}
	assert.Equal(t, draw(99), draw(99))
	assert.NotEqual(t, draw(99), draw(100))
}

func TestNewSelector_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		actions []Action
	}{
		{"empty", nil},
		{"all zero", weighted("A", 0.0, "B", 0.0)},
		{"negative", weighted("A", 1.0, "B", -0.5)},
		{"nan", weighted("A", math.NaN())},
		{"inf", weighted("A", math.Inf(1))},
		{"no name", []Action{{Weight: 1, Invoke: noop}}},
		{"no invoker", []Action{{Name: "A", Weight: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSelector(tt.actions)
			require.Error(t, err)
			var cfgErr *ConfigurationError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}
