// Package tombstone combines the bloom filter with the authoritative tombstone
// set held by the metadata store.
//
// Provisional answers come from the bloom filter alone and may be false
// positives. Authoritative answers come from the metadata store and are exact.
// IsDead checks the bloom first and confirms every positive, so a bloom false
// positive can never hide a live record.
package tombstone

import (
	"fmt"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/semkv/internal/bloom"
	"github.com/hupe1980/semkv/metadata"
)

// Authority answers exact tombstone questions.
type Authority interface {
	IsTombstoned(ordinal uint64) bool
	TombstoneCount() uint64
}

// Stats describes how the bloom filter has performed.
type Stats struct {
	Checks                     uint64  // IsDead calls
	ProvisionalPositives       uint64  // bloom said "maybe"
	FalsePositives             uint64  // bloom said "maybe", metadata said "live"
	ObservedFalsePositiveRate  float64 // FalsePositives / (FalsePositives + true negatives)
	EstimatedFalsePositiveRate float64 // theoretical rate at the current fill
	BloomItems                 uint64
	BloomBits                  uint64
	HashCount                  uint32
}

// Filter is the two-level tombstone filter.
type Filter struct {
	authority Authority
	bloom     atomic.Pointer[bloom.Filter]

	checks         atomic.Uint64
	positives      atomic.Uint64
	falsePositives atomic.Uint64
}

// New returns a filter over authority using bf as the provisional layer.
func New(authority Authority, bf *bloom.Filter) *Filter {
	f := &Filter{authority: authority}
	f.bloom.Store(bf)
	return f
}

// Bloom returns the current bloom filter.
func (f *Filter) Bloom() *bloom.Filter { return f.bloom.Load() }

// Mark tombstones ordinal inside tx. The bloom filter learns about the
// ordinal only once tx commits.
func (f *Filter) Mark(tx *metadata.Tx, ordinal uint64) error {
	if err := tx.Tombstone(ordinal); err != nil {
		return err
	}
	tx.OnCommit(func() { f.bloom.Load().Add(ordinal) })
	return nil
}

// Provisional reports the bloom filter's answer.
func (f *Filter) Provisional(ordinal uint64) bool {
	return f.bloom.Load().MayContain(ordinal)
}

// Authoritative reports whether ordinal is in the exact tombstone set.
func (f *Filter) Authoritative(ordinal uint64) bool {
	return f.authority.IsTombstoned(ordinal)
}

// IsDead reports whether ordinal is tombstoned.
func (f *Filter) IsDead(ordinal uint64) bool {
	f.checks.Add(1)
	if !f.Provisional(ordinal) {
		return false
	}
	f.positives.Add(1)
	if f.Authoritative(ordinal) {
		return true
	}
	f.falsePositives.Add(1)
	return false
}

// Count returns the number of tombstoned ordinals.
func (f *Filter) Count() uint64 {
	return f.authority.TombstoneCount()
}

// Rebuild replaces the bloom filter with a fresh one holding exactly tombstones.
func (f *Filter) Rebuild(tombstones *roaring64.Bitmap, expected uint64, fpp float64) error {
	bf, err := bloom.New(expected, fpp)
	if err != nil {
		return fmt.Errorf("rebuild bloom: %w", err)
	}
	it := tombstones.Iterator()
	for it.HasNext() {
		bf.Add(it.Next())
	}
	f.bloom.Store(bf)
	return nil
}

// Stats returns a snapshot of the filter counters.
func (f *Filter) Stats() Stats {
	bf := f.bloom.Load()
	s := Stats{
		Checks:                     f.checks.Load(),
		ProvisionalPositives:       f.positives.Load(),
		FalsePositives:             f.falsePositives.Load(),
		EstimatedFalsePositiveRate: bf.EstimatedFalsePositiveRate(),
		BloomItems:                 bf.Count(),
		BloomBits:                  bf.NumBits(),
		HashCount:                  bf.HashCount(),
	}
	trueNegatives := s.Checks - s.ProvisionalPositives
	if denom := s.FalsePositives + trueNegatives; denom > 0 {
		s.ObservedFalsePositiveRate = float64(s.FalsePositives) / float64(denom)
	}
	return s
}
