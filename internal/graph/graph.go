package graph

import (
	"errors"
	"fmt"
	"slices"

	"dagrun/internal/job"
)

var (
	// ErrDuplicate is returned when a job is registered twice.
	ErrDuplicate = errors.New("graph: job already registered")
	// ErrNotFound signals a graph-consistency error: the job is not present.
	ErrNotFound = errors.New("graph: job not registered")
	// ErrUnknownNode is returned for a NodeID that does not name a live node.
	ErrUnknownNode = errors.New("graph: unknown node")
)

// NodeID is a stable handle to a node. IDs are never reused.
type NodeID int

type node struct {
	job        *job.Job
	dependents map[NodeID]struct{}
	alive      bool
}

// Graph is the dependency graph of one scheduler.
type Graph struct {
	nodes []node
	index map[*job.Job]NodeID
	live  int
}

func New() *Graph {
	return &Graph{index: map[*job.Job]NodeID{}}
}

// Register creates a node for j.
func (g *Graph) Register(j *job.Job) (NodeID, error) {
	if j == nil {
		return 0, errors.New("graph: nil job")
	}
	if _, ok := g.index[j]; ok {
		return 0, fmt.Errorf("%w: %s", ErrDuplicate, j.Name())
	}
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, node{job: j, dependents: map[NodeID]struct{}{}, alive: true})
	g.index[j] = id
	g.live++
	return id, nil
}

// Node looks up the node registered for j.
func (g *Graph) Node(j *job.Job) (NodeID, bool) {
	id, ok := g.index[j]
	return id, ok
}

// Job returns the job behind id.
func (g *Graph) Job(id NodeID) (*job.Job, bool) {
	if !g.valid(id) {
		return nil, false
	}
	return g.nodes[id].job, true
}

// AddDependency records that dependent's job lists prerequisite's job as a
// prerequisite.
func (g *Graph) AddDependency(dependent, prerequisite NodeID) error {
	if !g.valid(dependent) {
		return fmt.Errorf("%w: dependent %d", ErrUnknownNode, dependent)
	}
	if !g.valid(prerequisite) {
		return fmt.Errorf("%w: prerequisite %d", ErrUnknownNode, prerequisite)
	}
	g.nodes[prerequisite].dependents[dependent] = struct{}{}
	return nil
}

// Remove deletes the node for j. Edges are left alone; dependents of a
// removed node simply stop being blocked by it.
func (g *Graph) Remove(j *job.Job) error {
	id, ok := g.index[j]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, j.Name())
	}
	g.nodes[id].alive = false
	delete(g.index, j)
	g.live--
	return nil
}

// TransitiveDependents returns j followed by every live job reachable over
// dependent edges, breadth first. Each job appears once even when
// dependency paths overlap.
func (g *Graph) TransitiveDependents(j *job.Job) ([]*job.Job, error) {
	start, ok := g.index[j]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, j.Name())
	}
	seen := map[NodeID]struct{}{start: {}}
	queue := []NodeID{start}
	out := make([]*job.Job, 0, 4)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, g.nodes[id].job)
		for _, dep := range g.sortedDependents(id) {
			if _, dup := seen[dep]; dup || !g.nodes[dep].alive {
				continue
			}
			seen[dep] = struct{}{}
			queue = append(queue, dep)
		}
	}
	return out, nil
}

// Ready returns every live job that no other live node lists as a
// dependent, in registration order.
func (g *Graph) Ready() []*job.Job {
	blocked := make(map[NodeID]struct{}, len(g.nodes))
	for i := range g.nodes {
		if !g.nodes[i].alive {
			continue
		}
		for dep := range g.nodes[i].dependents {
			blocked[dep] = struct{}{}
		}
	}
	out := make([]*job.Job, 0, g.live)
	for i := range g.nodes {
		if !g.nodes[i].alive {
			continue
		}
		if _, ok := blocked[NodeID(i)]; ok {
			continue
		}
		out = append(out, g.nodes[i].job)
	}
	return out
}

// Jobs returns all live jobs in registration order.
func (g *Graph) Jobs() []*job.Job {
	out := make([]*job.Job, 0, g.live)
	for i := range g.nodes {
		if g.nodes[i].alive {
			out = append(out, g.nodes[i].job)
		}
	}
	return out
}

func (g *Graph) Empty() bool { return g.live == 0 }
func (g *Graph) Len() int    { return g.live }

func (g *Graph) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes) && g.nodes[id].alive
}

// sortedDependents keeps traversal order deterministic.
func (g *Graph) sortedDependents(id NodeID) []NodeID {
	deps := make([]NodeID, 0, len(g.nodes[id].dependents))
	for dep := range g.nodes[id].dependents {
		deps = append(deps, dep)
	}
	slices.Sort(deps)
	return deps
}
