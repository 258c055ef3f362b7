// Package randsrc provides the uniformly-distributed draws the
// pseudonymizer needs for each kind of replacement value (C4 in
// SPEC_FULL.md).
//
// The generator is intentionally not cryptographically secure: the
// spec's Non-goals explicitly exclude strong unlinkability, and the
// source this tool is modeled on seeds a single PRNG once per run from
// wall-clock time (srand48(time(NULL))). math/rand reproduces that
// behavior faithfully; none of the pack's third-party libraries change
// this semantic (crypto/rand would silently strengthen a property the
// spec says not to promise), so this is a deliberate stdlib choice —
// see DESIGN.md.
package randsrc

import (
	"math/rand"
	"time"
)

// Source is the capability the rewriter consumes for every
// pseudonym-shaped random draw.
type Source interface {
	// IDIn returns a value in [min, max). Callers use this for UID,
	// GID, and PID pseudonyms alike.
	IDIn(min, max uint32) uint32

	// PathSuffix fills out[:n] with a pseudo path suffix, per the
	// alphabet rules in SPEC_FULL.md §4.4.
	PathSuffix(out []byte, n int)

	// Address fills out[:length] with a pseudonymous IPv4/IPv6
	// address, subject to the first/last byte constraints in
	// SPEC_FULL.md §4.4.
	Address(out []byte, length int)

	// TimeShift draws the single per-run Δ in [0, max).
	TimeShift(max uint32) uint32
}

// MathRand is the default Source, backed by a single seeded
// math/rand.Rand (not safe for concurrent use — the orchestrator is
// strictly single-threaded per SPEC_FULL.md §5).
type MathRand struct {
	rng *rand.Rand
}

// NewMathRand seeds a new generator from coarse wall-clock entropy,
// mirroring srand48(time(NULL)) in the original source.
func NewMathRand() *MathRand {
	return &MathRand{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewMathRandFrom seeds a generator from an explicit seed, for
// deterministic tests.
func NewMathRandFrom(seed int64) *MathRand {
	return &MathRand{rng: rand.New(rand.NewSource(seed))}
}

// IDIn implements Source. A disabled kind (min >= max) cannot reach
// this call in normal operation — internal/config refuses to enable a
// class with an empty range — but IDIn still guards it defensively
// (SPEC_FULL.md §9, the rand_id_in(min,max) Open Question) rather than
// dividing by zero.
func (m *MathRand) IDIn(min, max uint32) uint32 {
	if max <= min {
		return min
	}
	return uint32(m.rng.Int63n(int64(max-min))) + min
}

// PathSuffix implements Source following str_rand() exactly, including
// reading the byte that happens to already occupy out[0] when i==0
// (SPEC_FULL.md §4.4 and the Open Questions note in §9: this is
// inherited source behavior, not a defended invariant).
func (m *MathRand) PathSuffix(out []byte, n int) {
	for i := 0; i < n; i++ {
		u := m.rng.Float64()
		b := byte(m.rng.Intn(256))

		var prev byte
		if i == 0 {
			prev = out[0]
		} else {
			prev = out[i-1]
		}

		switch {
		case u > 0.80 && i > 0 && i < n-2 && prev != '/':
			out[i] = '/'
		case u > 0.35 && prev < 'Z':
			out[i] = 'A' + b%26
		default:
			out[i] = 'a' + b%26
		}
	}
}

// Address implements Source following addr_rand(): the first byte
// must lie in [60, 200], the last byte must not be 0 or 255,
// intermediate bytes are unconstrained. Each position is redrawn until
// its constraint is satisfied.
func (m *MathRand) Address(out []byte, length int) {
	for i := 0; i < length; i++ {
		for {
			c := byte(m.rng.Intn(256))
			if i == 0 && (c > 200 || c < 60) {
				continue
			}
			if i == length-1 && (c == 255 || c == 0) {
				continue
			}
			out[i] = c
			break
		}
	}
}

// TimeShift implements Source.
func (m *MathRand) TimeShift(max uint32) uint32 {
	if max == 0 {
		return 0
	}
	return uint32(m.rng.Int63n(int64(max)))
}
