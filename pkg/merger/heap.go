package merger

import "github.com/arjunsk/stratakv/pkg/layer"

type sourceHeap[K layer.MergeableKey[K], V any] []*source[K, V]

func (h sourceHeap[K, V]) Len() int { return len(h) }
func (h sourceHeap[K, V]) Less(i, j int) bool {
	if c := h[i].item.Key.CmpUpperBound(h[j].item.Key); c != 0 {
		return c < 0
	}
	// Equal sort position: the newer layer (lower stack index) wins.
	return h[i].idx < h[j].idx
}
func (h sourceHeap[K, V]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *sourceHeap[K, V]) Push(x interface{}) {
	*h = append(*h, x.(*source[K, V]))
}

func (h *sourceHeap[K, V]) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return x
}
