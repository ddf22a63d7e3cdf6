package replay

import (
	"container/heap"

	"github.com/sinkdb/core/corekey"
)

// lowWaterItem is one consumer's current cursor position in the heap.
type lowWaterItem struct {
	consumer string
	revision corekey.Revision
	index    int
}

// lowWaterHeap is a min-heap over consumer cursors keyed by consumer name,
// adapted from lib/db/util/mapheap.go's object-id-keyed priority queue for
// garbage collection: here the "priority" is a consumer's cursor revision
// instead of an object's age, and the key is a consumer name instead of a
// uint64 object id. It gives CleanupRevision an O(1) peek at the slowest
// consumer instead of a scan over every registered consumer.
type lowWaterHeap struct {
	items  []*lowWaterItem
	byName map[string]*lowWaterItem
}

func newLowWaterHeap() *lowWaterHeap {
	return &lowWaterHeap{byName: make(map[string]*lowWaterItem)}
}

func (h *lowWaterHeap) Len() int { return len(h.items) }

func (h *lowWaterHeap) Less(i, j int) bool {
	return h.items[i].revision < h.items[j].revision
}

func (h *lowWaterHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *lowWaterHeap) Push(x interface{}) {
	item := x.(*lowWaterItem)
	item.index = len(h.items)
	h.items = append(h.items, item)
	h.byName[item.consumer] = item
}

func (h *lowWaterHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	h.items = old[:n-1]
	delete(h.byName, item.consumer)
	return item
}

// Set records consumer's cursor, adding it to the heap on first use or
// fixing its position if already present.
func (h *lowWaterHeap) Set(consumer string, revision corekey.Revision) {
	if item, ok := h.byName[consumer]; ok {
		item.revision = revision
		heap.Fix(h, item.index)
		return
	}
	heap.Push(h, &lowWaterItem{consumer: consumer, revision: revision})
}

// Remove drops consumer from the heap, used when a consumer unregisters.
func (h *lowWaterHeap) Remove(consumer string) {
	item, ok := h.byName[consumer]
	if !ok {
		return
	}
	heap.Remove(h, item.index)
}

// Min returns the lowest cursor across every registered consumer. The
// second result is false if no consumer is registered.
func (h *lowWaterHeap) Min() (corekey.Revision, bool) {
	if len(h.items) == 0 {
		return corekey.ZeroRevision, false
	}
	return h.items[0].revision, true
}
