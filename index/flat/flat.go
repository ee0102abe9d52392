// Package flat provides the append-only vector index behind the key/vector store.
//
// The index is a contiguous array of fixed-dimension vectors. A vector's ordinal is
// its position at insertion time; vectors are never removed or updated, so the
// index only grows. Deletion is expressed by the caller through tombstones.
//
// Search is exhaustive over squared Euclidean distance, which keeps results exact
// for the vectors that are present. Reads are lock-free via copy-on-write state.
package flat

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/semkv/distance"
	"github.com/hupe1980/semkv/index"
	"github.com/hupe1980/semkv/internal/queue"
)

// InvalidOrdinal marks KNN slots for which no vector exists.
const InvalidOrdinal = index.InvalidOrdinal

var _ index.Index = (*Index)(nil)

func init() {
	index.RegisterLoader(magic, func(data []byte, dim int) (index.Index, error) {
		return Decode(data, dim)
	})
}

// indexState holds the immutable view of the index used by readers.
// data may have spare capacity that a later append writes into; readers never
// look past size*dim.
type indexState struct {
	data []float32
	size uint64
}

// Index is an append-only flat vector index.
type Index struct {
	dim     int
	writeMu sync.Mutex // serializes appends
	state   atomic.Pointer[indexState]
}

// New creates an empty index for vectors of the given dimension.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, &index.ErrInvalidDimension{Dimension: dim}
	}
	ix := &Index{dim: dim}
	ix.state.Store(&indexState{})
	return ix, nil
}

// Dimension returns the fixed vector dimension.
func (ix *Index) Dimension() int { return ix.dim }

// Size returns the number of vectors ever appended, including tombstoned ones.
func (ix *Index) Size() uint64 { return ix.state.Load().size }

// Append stores a copy of v and returns its ordinal, which equals the size
// of the index before the call.
func (ix *Index) Append(v []float32) (uint64, error) {
	if len(v) != ix.dim {
		return 0, &index.ErrDimensionMismatch{Expected: ix.dim, Actual: len(v)}
	}

	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	cur := ix.state.Load()
	ordinal := cur.size
	ix.state.Store(&indexState{
		data: append(cur.data, v...),
		size: cur.size + 1,
	})
	return ordinal, nil
}

// Vector returns a copy of the vector stored at ordinal.
func (ix *Index) Vector(ordinal uint64) ([]float32, bool) {
	st := ix.state.Load()
	if ordinal >= st.size {
		return nil, false
	}
	out := make([]float32, ix.dim)
	copy(out, st.row(ordinal, ix.dim))
	return out, true
}

func (st *indexState) row(ordinal uint64, dim int) []float32 {
	off := ordinal * uint64(dim)
	return st.data[off : off+uint64(dim)]
}

// KNN returns the k nearest vectors to q in ascending distance order.
//
// The result always has exactly k slots. When the index holds fewer than k
// vectors the remaining slots carry InvalidOrdinal and +Inf distance.
func (ix *Index) KNN(q []float32, k int) ([]index.Neighbor, error) {
	if len(q) != ix.dim {
		return nil, &index.ErrDimensionMismatch{Expected: ix.dim, Actual: len(q)}
	}
	if k < 0 {
		return nil, index.ErrInvalidK
	}
	if k == 0 {
		return nil, nil
	}

	st := ix.state.Load()
	limit := k
	if uint64(limit) > st.size {
		limit = int(st.size)
	}

	top := queue.NewMax(limit)
	for ord := uint64(0); ord < st.size; ord++ {
		top.Offer(queue.Item{Ordinal: ord, Distance: distance.SquaredL2(q, st.row(ord, ix.dim))}, limit)
	}

	results := make([]index.Neighbor, k)
	for i, item := range top.Drain() {
		results[i] = index.Neighbor{Ordinal: item.Ordinal, Distance: item.Distance}
	}
	for i := limit; i < k; i++ {
		results[i] = index.Neighbor{Ordinal: InvalidOrdinal, Distance: float32(math.Inf(1))}
	}
	return results, nil
}

// Range returns every vector whose squared distance to q is at most
// radiusSquared. The result is in ordinal order, not distance order.
func (ix *Index) Range(q []float32, radiusSquared float32) ([]index.Neighbor, error) {
	if len(q) != ix.dim {
		return nil, &index.ErrDimensionMismatch{Expected: ix.dim, Actual: len(q)}
	}
	if radiusSquared < 0 || math.IsNaN(float64(radiusSquared)) {
		return nil, index.ErrInvalidRadius
	}

	st := ix.state.Load()
	var results []index.Neighbor
	for ord := uint64(0); ord < st.size; ord++ {
		if d := distance.SquaredL2(q, st.row(ord, ix.dim)); d <= radiusSquared {
			results = append(results, index.Neighbor{Ordinal: ord, Distance: d})
		}
	}
	return results, nil
}
