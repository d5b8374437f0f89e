package entropy

import "math/rand"

// Seeded is a deterministic pseudo-random stream. Two Seeded sources built
// from the same seed yield the same sequence.
type Seeded struct {
	rng *rand.Rand
}

// NewSeeded creates a deterministic source.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: rand.New(rand.NewSource(seed))}
}

// IntN returns a pseudo-random integer in [0, n).
func (s *Seeded) IntN(n int) int {
	if n <= 1 {
		return 0
	}
	return s.rng.Intn(n)
}

// Sequence replays a fixed list of values, wrapping around at the end.
// Each value is reduced modulo n. An empty Sequence always returns 0.
type Sequence struct {
	Values []int
	next   int
}

// NewSequence creates a Sequence over vals.
func NewSequence(vals ...int) *Sequence {
	return &Sequence{Values: vals}
}

// IntN returns the next value modulo n.
func (s *Sequence) IntN(n int) int {
	if len(s.Values) == 0 || n <= 1 {
		return 0
	}
	v := s.Values[s.next%len(s.Values)]
	s.next++
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// Drawn reports how many values have been consumed.
func (s *Sequence) Drawn() int {
	return s.next
}
