// Package queue provides the bounded priority queue used for top-k selection.
package queue

// Item is a candidate ordinal with its distance to the query.
type Item struct {
	Ordinal  uint64
	Distance float32
}

// worse reports whether a ranks after b. Ties on distance are broken by ordinal
// so that results are deterministic.
func worse(a, b Item) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.Ordinal > b.Ordinal
}

// PriorityQueue is a binary heap of Items.
// A max queue keeps the worst item on top, which is what bounded top-k selection needs.
type PriorityQueue struct {
	isMaxHeap bool
	items     []Item
}

// NewMin initializes a new priority queue with the best item on top.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: false,
		items:     make([]Item, 0, capacity),
	}
}

// NewMax initializes a new priority queue with the worst item on top.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: true,
		items:     make([]Item, 0, capacity),
	}
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// Top returns the top element of the heap.
func (pq *PriorityQueue) Top() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	return pq.items[0], true
}

// Push inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) Push(item Item) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// Pop removes and returns the top element while maintaining the heap invariant.
func (pq *PriorityQueue) Pop() (Item, bool) {
	n := len(pq.items)
	if n == 0 {
		return Item{}, false
	}
	root := pq.items[0]
	last := pq.items[n-1]
	pq.items = pq.items[:n-1]
	if n-1 > 0 {
		pq.items[0] = last
		pq.siftDown(0)
	}
	return root, true
}

// Offer pushes item if the queue holds fewer than limit items, or replaces the
// top when item ranks better than it. Only meaningful on max queues.
func (pq *PriorityQueue) Offer(item Item, limit int) {
	if len(pq.items) < limit {
		pq.Push(item)
		return
	}
	if limit == 0 || !worse(pq.items[0], item) {
		return
	}
	pq.items[0] = item
	pq.siftDown(0)
}

// Drain empties the queue and returns its items ordered best first.
func (pq *PriorityQueue) Drain() []Item {
	out := make([]Item, len(pq.items))
	if pq.isMaxHeap {
		for i := len(out) - 1; i >= 0; i-- {
			out[i], _ = pq.Pop()
		}
		return out
	}
	for i := range out {
		out[i], _ = pq.Pop()
	}
	return out
}

// Reset clears the priority queue for reuse.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}

func (pq *PriorityQueue) less(i, j int) bool {
	if pq.isMaxHeap {
		return worse(pq.items[i], pq.items[j])
	}
	return worse(pq.items[j], pq.items[i])
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !pq.less(i, p) {
			return
		}
		pq.items[i], pq.items[p] = pq.items[p], pq.items[i]
		i = p
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		r := l + 1
		if r < n && pq.less(r, l) {
			best = r
		}
		if !pq.less(best, i) {
			return
		}
		pq.items[i], pq.items[best] = pq.items[best], pq.items[i]
		i = best
	}
}
