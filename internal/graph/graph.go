// Package graph maintains the variable dependency graph: which
// variables each variable reads (dependencies) and which read it
// (dependents), kept consistent with each variable's defining
// expression.
//
// Nodes and edges live in arena slices and are referenced by integer
// index, never by pointer, so bidirectional traversal is cheap and the
// structure has no reference cycles. Removed nodes become tombstones;
// indices are stable for the lifetime of the graph.
//
// The edge set is always a DAG: a definition that would create a cycle
// is rejected at registration time and the graph is left structurally
// unchanged.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ReactionKind selects how an edge gates propagation events.
type ReactionKind int

const (
	// ReactNone propagates every event.
	ReactNone ReactionKind = iota
	// ReactLimit propagates the next Remaining events, then blocks forever.
	ReactLimit
	// ReactDelay skips the next Remaining events, then propagates forever.
	ReactDelay
)

// ReactionPolicy is the per-edge gating rule. Remaining is mutated in
// place by the propagation engine as events pass through the edge.
type ReactionPolicy struct {
	Kind      ReactionKind
	Remaining int
}

func (p ReactionPolicy) String() string {
	switch p.Kind {
	case ReactLimit:
		return fmt.Sprintf("~+%d", p.Remaining)
	case ReactDelay:
		return fmt.Sprintf("~-%d", p.Remaining)
	default:
		return ""
	}
}

// ParsePolicy parses the shell suffix notation: "" for none, "~+N"
// for limit, "~-N" for delay. Inverse of String.
func ParsePolicy(s string) (ReactionPolicy, error) {
	if s == "" {
		return ReactionPolicy{}, nil
	}
	if len(s) < 3 || s[0] != '~' || (s[1] != '+' && s[1] != '-') {
		return ReactionPolicy{}, fmt.Errorf("bad reaction policy %q (want ~+N or ~-N)", s)
	}
	n, err := strconv.Atoi(s[2:])
	if err != nil || n < 0 {
		return ReactionPolicy{}, fmt.Errorf("bad reaction policy %q (want ~+N or ~-N)", s)
	}
	kind := ReactLimit
	if s[1] == '-' {
		kind = ReactDelay
	}
	return ReactionPolicy{Kind: kind, Remaining: n}, nil
}

// GraphError is returned by graph mutations.
type GraphError struct {
	Code string
	Name string
	// Path holds the cycle path for CYCLE_DETECTED, dependent first.
	Path []string
}

const (
	// ErrCodeCycleDetected rejects an expression whose edges would form a cycle.
	ErrCodeCycleDetected = "CYCLE_DETECTED"
	// ErrCodeUnknownVariable reports an operation on an unregistered name.
	ErrCodeUnknownVariable = "UNKNOWN_VARIABLE"
)

func (e *GraphError) Error() string {
	if e.Code == ErrCodeCycleDetected {
		return fmt.Sprintf("%s: defining %q would create cycle %s", e.Code, e.Name, strings.Join(e.Path, " -> "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Name)
}

// IsCycle returns true if err is a cycle rejection.
func IsCycle(err error) bool {
	var ge *GraphError
	return errors.As(err, &ge) && ge.Code == ErrCodeCycleDetected
}

type node struct {
	name    string
	order   int   // registration order, breaks topological ties
	out     []int // edge indices: this node -> dependents
	in      []int // edge indices: dependencies -> this node
	dead    bool
}

type edge struct {
	from, to int
	policy   ReactionPolicy
	dead     bool
}

// Graph is the arena-indexed dependency graph. Not safe for concurrent
// use; the environment is single-threaded by design.
type Graph struct {
	nodes     []node
	edges     []edge
	index     map[string]int
	nextOrder int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{index: make(map[string]int)}
}

// Ensure registers a name as a node if it is not present and returns
// its index. Registration order is remembered for deterministic
// topological tie-breaking.
func (g *Graph) Ensure(name string) int {
	if idx, ok := g.index[name]; ok {
		return idx
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, node{name: name, order: g.nextOrder})
	g.nextOrder++
	g.index[name] = idx
	return idx
}

// Has reports whether name is a live node.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Register replaces the defining edges of name: one edge ref -> name
// for every referenced variable, each carrying policy. Old defining
// edges are removed; self-references are dropped.
//
// Fails with CYCLE_DETECTED if the new edge set would make name
// reachable from itself. On failure the edge set is structurally
// identical to its state before the call.
func (g *Graph) Register(name string, refs []string, policy ReactionPolicy) error {
	target := g.Ensure(name)

	// Cycle check before any mutation. A new edge ref -> name cycles
	// iff ref is reachable from name through the existing forward
	// edges. name's old defining edges point INTO name and cannot lie
	// on a name -> ref path, so checking against the current graph is
	// exact.
	for _, ref := range refs {
		if ref == name {
			continue
		}
		refIdx := g.Ensure(ref)
		if path := g.findPath(target, refIdx); path != nil {
			return &GraphError{
				Code: ErrCodeCycleDetected,
				Name: name,
				Path: append(path, name),
			}
		}
	}

	g.dropIncoming(target)

	for _, ref := range refs {
		if ref == name {
			continue
		}
		src := g.index[ref]
		eIdx := len(g.edges)
		g.edges = append(g.edges, edge{from: src, to: target, policy: policy})
		g.nodes[src].out = append(g.nodes[src].out, eIdx)
		g.nodes[target].in = append(g.nodes[target].in, eIdx)
	}
	return nil
}

// Remove deletes a node and its edges in both directions. Unknown
// names are a no-op; removal happens during rollback paths where the
// variable may never have been registered.
func (g *Graph) Remove(name string) {
	idx, ok := g.index[name]
	if !ok {
		return
	}
	g.dropIncoming(idx)
	for _, eIdx := range g.nodes[idx].out {
		if g.edges[eIdx].dead {
			continue
		}
		g.edges[eIdx].dead = true
		g.detachIn(g.edges[eIdx].to, eIdx)
	}
	g.nodes[idx].out = nil
	g.nodes[idx].dead = true
	delete(g.index, name)
}

// DependenciesOf returns the names name directly reads, in edge order.
func (g *Graph) DependenciesOf(name string) []string {
	idx, ok := g.index[name]
	if !ok {
		return nil
	}
	var out []string
	for _, eIdx := range g.nodes[idx].in {
		if !g.edges[eIdx].dead {
			out = append(out, g.nodes[g.edges[eIdx].from].name)
		}
	}
	return out
}

// DirectDependentsOf returns the names that directly read name.
func (g *Graph) DirectDependentsOf(name string) []string {
	idx, ok := g.index[name]
	if !ok {
		return nil
	}
	var out []string
	for _, eIdx := range g.nodes[idx].out {
		if !g.edges[eIdx].dead {
			out = append(out, g.nodes[g.edges[eIdx].to].name)
		}
	}
	return out
}

// DependentsOf returns the transitive closure of variables affected by
// a change to name, topologically sorted: no variable appears before
// one it depends on. Ties between independent variables break by
// registration order, so repeated calls are deterministic.
func (g *Graph) DependentsOf(name string) []string {
	start, ok := g.index[name]
	if !ok {
		return nil
	}

	// Collect the closure.
	closure := map[int]bool{}
	stack := []int{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, eIdx := range g.nodes[cur].out {
			e := g.edges[eIdx]
			if e.dead || closure[e.to] {
				continue
			}
			closure[e.to] = true
			stack = append(stack, e.to)
		}
	}
	if len(closure) == 0 {
		return nil
	}

	// Kahn's algorithm restricted to the closure, picking the ready
	// node with the smallest registration order each round.
	// Only edges between closure members constrain the order; edges
	// from the changed variable itself are already satisfied.
	indeg := make(map[int]int, len(closure))
	for idx := range closure {
		for _, eIdx := range g.nodes[idx].in {
			e := g.edges[eIdx]
			if e.dead {
				continue
			}
			if closure[e.from] {
				indeg[idx]++
			}
		}
	}

	var ready []int
	for idx := range closure {
		if indeg[idx] == 0 {
			ready = append(ready, idx)
		}
	}

	var order []string
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return g.nodes[ready[i]].order < g.nodes[ready[j]].order
		})
		cur := ready[0]
		ready = ready[1:]
		order = append(order, g.nodes[cur].name)
		for _, eIdx := range g.nodes[cur].out {
			e := g.edges[eIdx]
			if e.dead || !closure[e.to] {
				continue
			}
			indeg[e.to]--
			if indeg[e.to] == 0 {
				ready = append(ready, e.to)
			}
		}
	}
	return order
}

// Policy returns a mutable pointer to the reaction policy of the edge
// source -> dependent, or nil if no such live edge exists.
func (g *Graph) Policy(source, dependent string) *ReactionPolicy {
	srcIdx, ok := g.index[source]
	if !ok {
		return nil
	}
	depIdx, ok := g.index[dependent]
	if !ok {
		return nil
	}
	for _, eIdx := range g.nodes[srcIdx].out {
		e := &g.edges[eIdx]
		if !e.dead && e.to == depIdx {
			return &e.policy
		}
	}
	return nil
}

// Edges returns every live edge as a (source, dependent) pair, sorted,
// for structural comparison in tests and diagnostics.
func (g *Graph) Edges() [][2]string {
	var out [][2]string
	for _, e := range g.edges {
		if e.dead {
			continue
		}
		out = append(out, [2]string{g.nodes[e.from].name, g.nodes[e.to].name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// Names returns all live node names in registration order.
func (g *Graph) Names() []string {
	var idxs []int
	for idx := range g.nodes {
		if !g.nodes[idx].dead {
			idxs = append(idxs, idx)
		}
	}
	sort.Slice(idxs, func(i, j int) bool {
		return g.nodes[idxs[i]].order < g.nodes[idxs[j]].order
	})
	out := make([]string, len(idxs))
	for i, idx := range idxs {
		out[i] = g.nodes[idx].name
	}
	return out
}

// findPath returns the node names along a path from -> to, or nil if
// none exists. Used for cycle error reporting.
func (g *Graph) findPath(from, to int) []string {
	type frame struct {
		idx  int
		path []int
	}
	visited := map[int]bool{}
	stack := []frame{{idx: from}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.idx == to {
			names := make([]string, 0, len(f.path)+1)
			for _, idx := range f.path {
				names = append(names, g.nodes[idx].name)
			}
			return append(names, g.nodes[to].name)
		}
		if visited[f.idx] {
			continue
		}
		visited[f.idx] = true
		for _, eIdx := range g.nodes[f.idx].out {
			e := g.edges[eIdx]
			if e.dead {
				continue
			}
			next := append(append([]int{}, f.path...), f.idx)
			stack = append(stack, frame{idx: e.to, path: next})
		}
	}
	return nil
}

func (g *Graph) dropIncoming(target int) {
	for _, eIdx := range g.nodes[target].in {
		if g.edges[eIdx].dead {
			continue
		}
		g.edges[eIdx].dead = true
		g.detachOut(g.edges[eIdx].from, eIdx)
	}
	g.nodes[target].in = nil
}

func (g *Graph) detachOut(idx, eIdx int) {
	out := g.nodes[idx].out[:0]
	for _, e := range g.nodes[idx].out {
		if e != eIdx {
			out = append(out, e)
		}
	}
	g.nodes[idx].out = out
}

func (g *Graph) detachIn(idx, eIdx int) {
	in := g.nodes[idx].in[:0]
	for _, e := range g.nodes[idx].in {
		if e != eIdx {
			in = append(in, e)
		}
	}
	g.nodes[idx].in = in
}
