// Package bloom provides the probabilistic tombstone filter.
//
// A Bloom filter can tell definitively that an ordinal was never added, but may
// report false positives for ordinals that were not. The store uses it as a fast
// negative pre-check and confirms every positive against the authoritative
// tombstone set.
//
// Add and MayContain operate on the bit words atomically, so lookups need no
// lock even while another goroutine adds.
package bloom

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/semkv/internal/hash"
)

const (
	// DefaultFalsePositiveProbability is used when no probability is configured.
	DefaultFalsePositiveProbability = 0.01

	// DefaultExpectedItemCount is used when no capacity is configured.
	DefaultExpectedItemCount uint64 = 1_000_000
)

var (
	// ErrInvalidParameters is returned for an out of range probability or capacity.
	ErrInvalidParameters = errors.New("bloom: invalid parameters")

	// ErrCorrupt indicates the persisted filter cannot be decoded.
	ErrCorrupt = errors.New("bloom: corrupt filter data")
)

// Filter is a Bloom filter over uint64 ordinals.
type Filter struct {
	bits     *bitset.BitSet
	words    []uint64 // backing words of bits, accessed atomically
	numBits  uint64
	k        uint32
	fpp      float64
	expected uint64
	count    atomic.Uint64
}

// Size computes the optimal filter size for the given parameters.
//
// For 1% false positive rate: ~9.6 bits/element, k=7
// For 0.1% false positive rate: ~14.4 bits/element, k=10
func Size(expected uint64, fpp float64) (numBits uint64, k uint32) {
	if expected == 0 {
		expected = 1
	}

	// m = -n*ln(p) / (ln(2)^2)
	m := -float64(expected) * math.Log(fpp) / (math.Ln2 * math.Ln2)
	// k = (m/n) * ln(2)
	kFloat := (m / float64(expected)) * math.Ln2

	numBits = ((uint64(math.Ceil(m)) + 63) / 64) * 64
	if numBits < 64 {
		numBits = 64
	}

	k = uint32(math.Round(kFloat))
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return numBits, k
}

// New creates an empty filter sized for expected items at the target false
// positive probability.
func New(expected uint64, fpp float64) (*Filter, error) {
	if expected == 0 || !(fpp > 0 && fpp < 1) {
		return nil, fmt.Errorf("%w: expected=%d fpp=%v", ErrInvalidParameters, expected, fpp)
	}
	numBits, k := Size(expected, fpp)
	return newFilter(bitset.New(uint(numBits)), numBits, k, fpp, expected), nil
}

func newFilter(bits *bitset.BitSet, numBits uint64, k uint32, fpp float64, expected uint64) *Filter {
	return &Filter{
		bits:     bits,
		words:    bits.Words(),
		numBits:  numBits,
		k:        k,
		fpp:      fpp,
		expected: expected,
	}
}

// Add inserts an ordinal.
func (f *Filter) Add(ordinal uint64) {
	h1, h2 := hash.Ordinal(ordinal)
	for i := uint32(0); i < f.k; i++ {
		bit := (h1 + uint64(i)*h2) % f.numBits
		atomic.OrUint64(&f.words[bit/64], 1<<(bit%64))
	}
	f.count.Add(1)
}

// MayContain reports whether ordinal may have been added.
// A false result is definitive.
func (f *Filter) MayContain(ordinal uint64) bool {
	h1, h2 := hash.Ordinal(ordinal)
	for i := uint32(0); i < f.k; i++ {
		bit := (h1 + uint64(i)*h2) % f.numBits
		if atomic.LoadUint64(&f.words[bit/64])&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// Count returns the number of Add calls.
func (f *Filter) Count() uint64 { return f.count.Load() }

// HashCount returns the number of probes per item.
func (f *Filter) HashCount() uint32 { return f.k }

// NumBits returns the size of the bit array.
func (f *Filter) NumBits() uint64 { return f.numBits }

// FalsePositiveProbability returns the configured target probability.
func (f *Filter) FalsePositiveProbability() float64 { return f.fpp }

// ExpectedItemCount returns the configured capacity.
func (f *Filter) ExpectedItemCount() uint64 { return f.expected }

// Matches reports whether the filter was built for the given parameters.
func (f *Filter) Matches(expected uint64, fpp float64) bool {
	return f.expected == expected && f.fpp == fpp
}

// EstimatedFalsePositiveRate returns the theoretical false positive rate at
// the current fill: (1 - e^(-kn/m))^k.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	n := float64(f.Count())
	k := float64(f.k)
	return math.Pow(1-math.Exp(-k*n/float64(f.numBits)), k)
}
