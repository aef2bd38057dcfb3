package planner

import (
	"github.com/sentineloop/incident-agent/internal/actions"
	"github.com/sentineloop/incident-agent/internal/belief"
	"github.com/sentineloop/incident-agent/internal/effect"
)

// node is one A* open-set entry.
type node struct {
	state      belief.State
	gCost      float64
	heuristic  int
	path       []actions.Schema
	lastEffect effect.Effect
	lastName   string
}

func (n *node) priority() float64 {
	return n.gCost + float64(n.heuristic)
}

// nodeHeap is a container/heap.Interface min-heap ordered by f-score
// (g+h), then by the severity of the action that produced the node,
// then by that action's name — the secondary keys make pop order fully
// deterministic across equal-priority nodes.
type nodeHeap []*node

func (h nodeHeap) Len() int { return len(h) }

func (h nodeHeap) Less(i, j int) bool {
	pi, pj := h[i].priority(), h[j].priority()
	if pi != pj {
		return pi < pj
	}
	if h[i].lastEffect != h[j].lastEffect {
		return h[i].lastEffect < h[j].lastEffect
	}
	return h[i].lastName < h[j].lastName
}

func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nodeHeap) Push(x any) {
	*h = append(*h, x.(*node))
}

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
