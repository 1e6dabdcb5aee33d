// Package draw assigns every participant of a group exactly one other
// participant to give a gift to.
package draw

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

var (
	ErrAssignmentImpossible = errors.New("assignment impossible: at least two participants are required")
	ErrInvalidAssignment    = errors.New("invalid assignment")
)

// DefaultMaxAttempts bounds the shuffle-and-retry loop.
const DefaultMaxAttempts = 100

// Pair is one giver -> receiver assignment.
type Pair[T comparable] struct {
	Giver    T
	Receiver T
}

// Outcome describes how an assignment was produced.
type Outcome struct {
	Attempts int
	Fallback bool
}

// Engine owns the random source. It is safe for concurrent use.
type Engine struct {
	mu          sync.Mutex
	rng         *rand.Rand
	maxAttempts int
}

// NewEngine uses src for shuffling; tests pass a seeded source.
func NewEngine(src rand.Source, maxAttempts int) *Engine {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Engine{rng: rand.New(src), maxAttempts: maxAttempts}
}

// NewRandomEngine seeds a PCG source from the runtime generator.
func NewRandomEngine() *Engine {
	return NewEngine(rand.NewPCG(rand.Uint64(), rand.Uint64()), DefaultMaxAttempts)
}

// Assign keeps givers in their given order and shuffles a copy to act as
// receivers until no one draws themselves. After maxAttempts failed shuffles
// it rotates the receivers by one position, which is always a derangement.
// Two participants simply swap.
func Assign[T comparable](e *Engine, givers []T) ([]Pair[T], Outcome, error) {
	n := len(givers)
	if n < 2 {
		return nil, Outcome{}, ErrAssignmentImpossible
	}
	if err := checkDistinct(givers); err != nil {
		return nil, Outcome{}, err
	}

	if n == 2 {
		return pairs(givers, []T{givers[1], givers[0]}), Outcome{Attempts: 1}, nil
	}

	receivers := make([]T, n)
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		copy(receivers, givers)
		shuffle(e, receivers)
		if !hasFixedPoint(givers, receivers) {
			return pairs(givers, receivers), Outcome{Attempts: attempt}, nil
		}
	}

	for i := range givers {
		receivers[i] = givers[(i+1)%n]
	}
	return pairs(givers, receivers), Outcome{Attempts: e.maxAttempts, Fallback: true}, nil
}

func shuffle[T any](e *Engine, s []T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rng.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
}

// Verify checks that assignment is a permutation of givers without fixed
// points.
func Verify[T comparable](givers []T, assignment []Pair[T]) error {
	n := len(givers)
	if len(assignment) != n {
		return fmt.Errorf("%w: %d pairs for %d participants", ErrInvalidAssignment, len(assignment), n)
	}
	index := make(map[T]uint, n)
	for i, g := range givers {
		index[g] = uint(i)
	}

	gave := bitset.New(uint(n))
	got := bitset.New(uint(n))
	for _, p := range assignment {
		gi, ok := index[p.Giver]
		if !ok {
			return fmt.Errorf("%w: unknown giver %v", ErrInvalidAssignment, p.Giver)
		}
		ri, ok := index[p.Receiver]
		if !ok {
			return fmt.Errorf("%w: unknown receiver %v", ErrInvalidAssignment, p.Receiver)
		}
		if gi == ri {
			return fmt.Errorf("%w: %v draws themselves", ErrInvalidAssignment, p.Giver)
		}
		if gave.Test(gi) {
			return fmt.Errorf("%w: %v gives twice", ErrInvalidAssignment, p.Giver)
		}
		if got.Test(ri) {
			return fmt.Errorf("%w: %v receives twice", ErrInvalidAssignment, p.Receiver)
		}
		gave.Set(gi)
		got.Set(ri)
	}
	return nil
}

func checkDistinct[T comparable](ids []T) error {
	seen := make(map[T]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate participant %v", ErrInvalidAssignment, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func hasFixedPoint[T comparable](givers, receivers []T) bool {
	for i := range givers {
		if givers[i] == receivers[i] {
			return true
		}
	}
	return false
}

func pairs[T comparable](givers, receivers []T) []Pair[T] {
	out := make([]Pair[T], len(givers))
	for i := range givers {
		out[i] = Pair[T]{Giver: givers[i], Receiver: receivers[i]}
	}
	return out
}
