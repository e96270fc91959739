package graph

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"dagrun/internal/job"
)

func newJob(name string, deps ...*job.Job) *job.Job {
	return job.New(name, nil, job.Options{DependsOn: deps})
}

// build registers jobs and their DependsOn edges the way the scheduler does.
func build(t *testing.T, jobs ...*job.Job) *Graph {
	t.Helper()
	g := New()
	for _, j := range jobs {
		if _, err := g.Register(j); err != nil {
			t.Fatalf("Register(%s): %v", j, err)
		}
	}
	for _, j := range jobs {
		id, _ := g.Node(j)
		for _, p := range j.DependsOn() {
			pid, ok := g.Node(p)
			if !ok {
				t.Fatalf("prerequisite %s of %s not registered", p, j)
			}
			if err := g.AddDependency(id, pid); err != nil {
				t.Fatalf("AddDependency: %v", err)
			}
		}
	}
	return g
}

func names(jobs []*job.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.Name()
	}
	return out
}

func TestRegisterDuplicate(t *testing.T) {
	t.Parallel()
	g := New()
	a := newJob("a")
	if _, err := g.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := g.Register(a); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second Register err = %v, want ErrDuplicate", err)
	}
	// Same name, different identity: the graph does not care about names.
	if _, err := g.Register(newJob("a")); err != nil {
		t.Fatalf("Register of distinct job with same name: %v", err)
	}
	if g.Len() != 2 {
		t.Fatalf("Len = %d, want 2", g.Len())
	}
}

func TestRemoveMissing(t *testing.T) {
	t.Parallel()
	g := New()
	a := newJob("a")
	if err := g.Remove(a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Remove of unregistered job err = %v, want ErrNotFound", err)
	}
	g.Register(a)
	if err := g.Remove(a); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := g.Remove(a); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double Remove err = %v, want ErrNotFound", err)
	}
	if !g.Empty() {
		t.Fatal("graph should be empty")
	}
	if _, ok := g.Node(a); ok {
		t.Fatal("removed job still resolvable")
	}
}

func TestAddDependencyUnknownNode(t *testing.T) {
	t.Parallel()
	g := New()
	id, _ := g.Register(newJob("a"))
	if err := g.AddDependency(id, NodeID(42)); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("err = %v, want ErrUnknownNode", err)
	}
	if err := g.AddDependency(NodeID(-1), id); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("err = %v, want ErrUnknownNode", err)
	}
}

func TestReadyFollowsRemovals(t *testing.T) {
	t.Parallel()
	a := newJob("a")
	b := newJob("b", a)
	c := newJob("c", b)
	d := newJob("d", c, b)
	e := newJob("e")
	g := build(t, a, b, c, d, e)

	steps := []struct {
		remove *job.Job
		want   string
	}{
		{nil, "[a e]"},
		{a, "[b e]"},
		{e, "[b]"},
		{b, "[c]"},
		{c, "[d]"},
		{d, "[]"},
	}
	for _, st := range steps {
		if st.remove != nil {
			if err := g.Remove(st.remove); err != nil {
				t.Fatalf("Remove(%s): %v", st.remove, err)
			}
		}
		if got := fmt.Sprint(names(g.Ready())); got != st.want {
			t.Fatalf("after removing %v: Ready = %s, want %s", st.remove, got, st.want)
		}
	}
	if !g.Empty() {
		t.Fatal("graph should be empty")
	}
}

func TestTransitiveDependentsDiamond(t *testing.T) {
	t.Parallel()
	root := newJob("root")
	left := newJob("left", root)
	right := newJob("right", root)
	join := newJob("join", left, right)
	tail := newJob("tail", join)
	other := newJob("other")
	g := build(t, root, left, right, join, tail, other)

	got, err := g.TransitiveDependents(root)
	if err != nil {
		t.Fatalf("TransitiveDependents: %v", err)
	}
	if s := fmt.Sprint(names(got)); s != "[root left right join tail]" {
		t.Fatalf("closure = %s", s)
	}

	got, _ = g.TransitiveDependents(right)
	if s := fmt.Sprint(names(got)); s != "[right join tail]" {
		t.Fatalf("closure of right = %s", s)
	}

	got, _ = g.TransitiveDependents(other)
	if s := fmt.Sprint(names(got)); s != "[other]" {
		t.Fatalf("closure of leaf = %s", s)
	}

	if _, err := g.TransitiveDependents(newJob("ghost")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// randomDAG builds n jobs where each job may depend on any earlier job.
func randomDAG(rng *rand.Rand, n int) []*job.Job {
	jobs := make([]*job.Job, 0, n)
	for i := 0; i < n; i++ {
		var deps []*job.Job
		for _, p := range jobs {
			if rng.Intn(4) == 0 {
				deps = append(deps, p)
			}
		}
		jobs = append(jobs, newJob(fmt.Sprintf("j%d", i), deps...))
	}
	return jobs
}

func TestReadyPropertyRandomDAGs(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		jobs := randomDAG(rng, 3+rng.Intn(15))
		g := build(t, jobs...)

		present := map[*job.Job]bool{}
		for _, j := range jobs {
			present[j] = true
		}
		for {
			want := map[*job.Job]bool{}
			for j := range present {
				ready := true
				for _, p := range j.DependsOn() {
					if present[p] {
						ready = false
						break
					}
				}
				if ready {
					want[j] = true
				}
			}
			got := g.Ready()
			if len(got) != len(want) {
				t.Fatalf("round %d: Ready = %v, want %d jobs", round, names(got), len(want))
			}
			for _, j := range got {
				if !want[j] {
					t.Fatalf("round %d: %s reported ready but has a live prerequisite", round, j)
				}
			}
			if len(present) == 0 {
				break
			}
			// Remove an arbitrary live job (not necessarily a ready one).
			victim := g.Jobs()[rng.Intn(g.Len())]
			if err := g.Remove(victim); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			delete(present, victim)
		}
	}
}

func TestTransitiveDependentsClosedProperty(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 50; round++ {
		jobs := randomDAG(rng, 3+rng.Intn(15))
		g := build(t, jobs...)
		start := jobs[rng.Intn(len(jobs))]
		closure, err := g.TransitiveDependents(start)
		if err != nil {
			t.Fatalf("TransitiveDependents: %v", err)
		}
		in := map[*job.Job]bool{}
		for _, j := range closure {
			if in[j] {
				t.Fatalf("round %d: %s visited twice", round, j)
			}
			in[j] = true
		}
		if !in[start] || closure[0] != start {
			t.Fatalf("round %d: closure must start with %s", round, start)
		}
		// Closed: any job depending on a member is a member.
		for _, j := range jobs {
			for _, p := range j.DependsOn() {
				if in[p] && !in[j] {
					t.Fatalf("round %d: %s depends on %s but is missing from closure", round, j, p)
				}
			}
		}
	}
}
