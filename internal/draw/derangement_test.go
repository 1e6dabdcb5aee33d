package draw

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// constSource always yields the same value. math.MaxUint64 makes every
// Shuffle step swap an element with itself, so each shuffle is the identity.
type constSource uint64

func (s constSource) Uint64() uint64 { return uint64(s) }

func ids(n int) []uint {
	out := make([]uint, n)
	for i := range out {
		out[i] = uint(i + 1)
	}
	return out
}

func TestAssign_TooFew(t *testing.T) {
	e := NewRandomEngine()
	for _, n := range []int{0, 1} {
		_, _, err := Assign(e, ids(n))
		assert.ErrorIs(t, err, ErrAssignmentImpossible, "n=%d", n)
	}
}

func TestAssign_Duplicates(t *testing.T) {
	_, _, err := Assign(NewRandomEngine(), []uint{1, 2, 2})
	assert.ErrorIs(t, err, ErrInvalidAssignment)
}

func TestAssign_TwoParticipantsSwap(t *testing.T) {
	// The identity source would loop forever on a naive retry for N=2.
	e := NewEngine(constSource(math.MaxUint64), 3)
	got, outcome, err := Assign(e, []string{"ann", "bob"})
	require.NoError(t, err)

	assert.Equal(t, []Pair[string]{{"ann", "bob"}, {"bob", "ann"}}, got)
	assert.False(t, outcome.Fallback)
	assert.Equal(t, 1, outcome.Attempts)
}

func TestAssign_FallbackRotation(t *testing.T) {
	e := NewEngine(constSource(math.MaxUint64), 5)
	givers := ids(4)

	got, outcome, err := Assign(e, givers)
	require.NoError(t, err)

	assert.True(t, outcome.Fallback)
	assert.Equal(t, 5, outcome.Attempts)
	assert.Equal(t, []Pair[uint]{{1, 2}, {2, 3}, {3, 4}, {4, 1}}, got)
	assert.NoError(t, Verify(givers, got))
}

func TestAssign_Reproducible(t *testing.T) {
	a, _, err := Assign(NewEngine(rand.NewPCG(7, 11), 0), ids(10))
	require.NoError(t, err)
	b, _, err := Assign(NewEngine(rand.NewPCG(7, 11), 0), ids(10))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestVerify(t *testing.T) {
	givers := []uint{1, 2, 3}
	cases := map[string][]Pair[uint]{
		"fixed point":      {{1, 1}, {2, 3}, {3, 2}},
		"double receiver":  {{1, 2}, {2, 3}, {3, 2}},
		"double giver":     {{1, 2}, {1, 3}, {3, 1}},
		"unknown giver":    {{9, 2}, {2, 3}, {3, 1}},
		"unknown receiver": {{1, 9}, {2, 3}, {3, 1}},
		"missing pair":     {{1, 2}, {2, 1}},
	}
	for name, pairs := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, Verify(givers, pairs), ErrInvalidAssignment)
		})
	}
	assert.NoError(t, Verify(givers, []Pair[uint]{{1, 2}, {2, 3}, {3, 1}}))
}

func TestProperty_DerangementRapid(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 200).Draw(rt, "n")
		seed1 := rapid.Uint64().Draw(rt, "seed1")
		seed2 := rapid.Uint64().Draw(rt, "seed2")

		givers := ids(n)
		got, _, err := Assign(NewEngine(rand.NewPCG(seed1, seed2), DefaultMaxAttempts), givers)
		if err != nil {
			rt.Fatalf("assign: %v", err)
		}
		if err := Verify(givers, got); err != nil {
			rt.Fatalf("verify: %v", err)
		}
		for i, p := range got {
			if p.Giver != givers[i] {
				rt.Fatalf("giver order changed at %d", i)
			}
		}
	})
}

func TestProperty_DerangementGopter(t *testing.T) {
	properties := gopter.NewProperties(nil)
	e := NewRandomEngine()

	properties.Property("giver and receiver sets equal the input and nobody draws themselves",
		prop.ForAll(
			func(n int) bool {
				givers := ids(n)
				got, _, err := Assign(e, givers)
				if err != nil {
					return false
				}
				receivers := make(map[uint]bool, n)
				for _, p := range got {
					if p.Giver == p.Receiver {
						return false
					}
					receivers[p.Receiver] = true
				}
				if len(receivers) != n {
					return false
				}
				for _, g := range givers {
					if !receivers[g] {
						return false
					}
				}
				return true
			},
			gen.IntRange(2, 100),
		))

	properties.Property("retry budget exhaustion still yields a derangement",
		prop.ForAll(
			func(n int) bool {
				givers := ids(n)
				got, outcome, err := Assign(NewEngine(constSource(math.MaxUint64), 1), givers)
				return err == nil && (n == 2 || outcome.Fallback) && Verify(givers, got) == nil
			},
			gen.IntRange(2, 50),
		))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
