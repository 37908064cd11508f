package routing

import "container/heap"

// frontier holds not-yet-expanded search nodes in the order dictated by the
// active strategy.
type frontier interface {
	push(n *searchNode, priority float64)
	pop() *searchNode
	empty() bool
}

func newFrontier(st Strategy) frontier {
	switch st.order {
	case orderFIFO:
		return &fifoFrontier{}
	case orderLIFO:
		return &lifoFrontier{}
	default:
		pf := &priorityFrontier{}
		heap.Init(&pf.items)
		return pf
	}
}

type heapItem struct {
	n        *searchNode
	priority float64
	seq      int
}

type itemHeap []heapItem

func (h itemHeap) Len() int { return len(h) }

// Less orders by priority, then lower node id, then insertion order, so
// repeated searches pop frontier entries in the same sequence.
func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	if h[i].n.node != h[j].n.node {
		return h[i].n.node < h[j].n.node
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(heapItem)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

type priorityFrontier struct {
	items itemHeap
	seq   int
}

func (f *priorityFrontier) push(n *searchNode, priority float64) {
	f.seq++
	heap.Push(&f.items, heapItem{n: n, priority: priority, seq: f.seq})
}

func (f *priorityFrontier) pop() *searchNode {
	return heap.Pop(&f.items).(heapItem).n
}

func (f *priorityFrontier) empty() bool { return f.items.Len() == 0 }

type fifoFrontier struct {
	items []*searchNode
	head  int
}

func (f *fifoFrontier) push(n *searchNode, _ float64) { f.items = append(f.items, n) }

func (f *fifoFrontier) pop() *searchNode {
	n := f.items[f.head]
	f.items[f.head] = nil
	f.head++
	if f.head > 256 && f.head*2 > len(f.items) {
		f.items = append([]*searchNode(nil), f.items[f.head:]...)
		f.head = 0
	}
	return n
}

func (f *fifoFrontier) empty() bool { return f.head >= len(f.items) }

type lifoFrontier struct {
	items []*searchNode
}

func (f *lifoFrontier) push(n *searchNode, _ float64) { f.items = append(f.items, n) }

func (f *lifoFrontier) pop() *searchNode {
	n := f.items[len(f.items)-1]
	f.items = f.items[:len(f.items)-1]
	return n
}

func (f *lifoFrontier) empty() bool { return len(f.items) == 0 }
