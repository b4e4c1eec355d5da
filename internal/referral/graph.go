package referral

import (
	"errors"
	"fmt"
	"sort"

	"pix-settlement-go/internal/models"
)

var (
	ErrUnknownParent = errors.New("referrer does not exist")
	ErrDuplicateNode = errors.New("user already in referral graph")
	ErrCycle         = errors.New("referral cycle detected")
)

const noParent = -1

type node struct {
	id        string
	parent    int
	children  []int
	ancestors []int // level 1 first, at most models.MaxReferralDepth
}

// Graph is an append-only referral forest. Nodes live in one slice and point at each other by index,
// so a node can only ever reference nodes added before it and cycles cannot form.
type Graph struct {
	nodes []node
	index map[string]int
}

func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// BuildGraph constructs a graph from user id to referrer id pairs. An empty referrer marks a root.
// Pairs may come in any order; unknown referrers and cycles are rejected.
func BuildGraph(edges map[string]string) (*Graph, error) {
	g := NewGraph()

	pending := make([]string, 0, len(edges))
	for id := range edges {
		pending = append(pending, id)
	}
	sort.Strings(pending)

	for len(pending) > 0 {
		var next []string
		for _, id := range pending {
			parent := edges[id]
			if parent != "" && !g.Contains(parent) {
				next = append(next, id)
				continue
			}
			if err := g.Add(id, parent); err != nil {
				return nil, err
			}
		}

		if len(next) == len(pending) {
			id := next[0]
			if _, known := edges[edges[id]]; !known {
				return nil, fmt.Errorf("%w: %s referred by %s", ErrUnknownParent, id, edges[id])
			}
			return nil, fmt.Errorf("%w: involving %s", ErrCycle, id)
		}
		pending = next
	}

	return g, nil
}

// Add inserts id under parent. parent must already be present, or empty for a root.
func (g *Graph) Add(id, parent string) error {
	if id == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if _, exists := g.index[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}

	n := node{id: id, parent: noParent}
	if parent != "" {
		if parent == id {
			return fmt.Errorf("%w: %s refers itself", ErrCycle, id)
		}
		p, ok := g.index[parent]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownParent, parent)
		}
		n.parent = p
		n.ancestors = append(n.ancestors, p)
		for _, a := range g.nodes[p].ancestors {
			if len(n.ancestors) == models.MaxReferralDepth {
				break
			}
			n.ancestors = append(n.ancestors, a)
		}
	}

	idx := len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.index[id] = idx
	if n.parent != noParent {
		g.nodes[n.parent].children = append(g.nodes[n.parent].children, idx)
	}
	return nil
}

func (g *Graph) Contains(id string) bool {
	_, ok := g.index[id]
	return ok
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

// Parent returns the direct referrer of id, or "" for roots and unknown ids.
func (g *Graph) Parent(id string) string {
	idx, ok := g.index[id]
	if !ok || g.nodes[idx].parent == noParent {
		return ""
	}
	return g.nodes[g.nodes[idx].parent].id
}

// Ancestors returns up to three referrers of id, nearest first.
func (g *Graph) Ancestors(id string) []string {
	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(g.nodes[idx].ancestors))
	for _, a := range g.nodes[idx].ancestors {
		ids = append(ids, g.nodes[a].id)
	}
	return ids
}

// Descendants returns the users exactly level steps below id, level 1 being direct referrals.
func (g *Graph) Descendants(id string, level int) []string {
	idx, ok := g.index[id]
	if !ok || level < 1 {
		return nil
	}

	frontier := []int{idx}
	for i := 0; i < level; i++ {
		var next []int
		for _, n := range frontier {
			next = append(next, g.nodes[n].children...)
		}
		frontier = next
	}

	ids := make([]string, 0, len(frontier))
	for _, n := range frontier {
		ids = append(ids, g.nodes[n].id)
	}
	return ids
}
