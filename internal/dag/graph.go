package dag

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Graph is a set of targets and their dependencies. All operations on the
// graph are concurrency-safe.
type Graph struct {
	mutex sync.RWMutex
	nodes map[string]*node

	// workers bounds concurrently running actions; nil means unbounded.
	workers  *semaphore.Weighted
	observer Observer

	// observeMu serializes observer calls.
	observeMu sync.Mutex
}

// node is a registered target together with its memoized outcome. The first
// caller to resolve it runs the build inside once; concurrent callers block
// there until the outcome is known.
type node struct {
	spec  Spec
	state atomic.Int32

	once   sync.Once
	result Result
	err    error
}

// Option configures a Graph.
type Option func(*Graph)

// WithWorkers limits how many actions may run at the same time. Targets
// waiting for their dependencies do not hold a slot. n < 1 removes the limit.
func WithWorkers(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.workers = semaphore.NewWeighted(int64(n))
		} else {
			g.workers = nil
		}
	}
}

// WithObserver installs a callback for state transitions.
func WithObserver(o Observer) Option {
	return func(g *Graph) {
		g.observer = o
	}
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{nodes: make(map[string]*node)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register adds a target. It fails with ErrDuplicateNode if the name is taken
// and with ErrCycle if the target can be reached from its own dependencies.
// Dependencies that are not registered yet are allowed; they must exist by
// the time the target runs.
func (g *Graph) Register(spec Spec) (Ref, error) {
	if spec.Name == "" {
		return "", fmt.Errorf("registering node: empty name")
	}
	if spec.Kind == Real && spec.ArtifactPath == "" {
		spec.ArtifactPath = spec.Name
	}
	if spec.Kind == Virtual {
		spec.ArtifactPath = ""
	}
	spec.Deps = append([]Ref(nil), spec.Deps...)

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[spec.Name]; ok {
		return "", fmt.Errorf("%w: %q is already registered", ErrDuplicateNode, spec.Name)
	}
	if path := g.pathTo(spec.Name, spec.Deps); path != nil {
		return "", fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> "))
	}

	g.nodes[spec.Name] = &node{spec: spec}
	return Ref(spec.Name), nil
}

// pathTo looks for name among the registered transitive dependencies of
// deps and returns the cycle it would close, starting and ending at name.
// The caller must hold the mutex.
func (g *Graph) pathTo(name string, deps []Ref) []string {
	visited := make(map[string]bool)

	var visit func(id string, trail []string) []string
	visit = func(id string, trail []string) []string {
		trail = append(trail, id)
		if id == name {
			return trail
		}
		if visited[id] {
			return nil
		}
		visited[id] = true

		n, ok := g.nodes[id]
		if !ok {
			return nil
		}
		for _, dep := range n.spec.Deps {
			if found := visit(string(dep), trail); found != nil {
				return found
			}
		}
		return nil
	}

	for _, dep := range deps {
		if found := visit(string(dep), []string{name}); found != nil {
			return found
		}
	}
	return nil
}

// State returns the current state of a registered target.
func (g *Graph) State(ref Ref) (State, error) {
	n, err := g.lookup(ref)
	if err != nil {
		return Pending, err
	}
	return State(n.state.Load()), nil
}

// Len returns the number of registered targets.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

func (g *Graph) lookup(ref Ref) (*node, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[string(ref)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNode, string(ref))
	}
	return n, nil
}
