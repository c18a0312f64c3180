package dag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/vk/pyprovision/internal/ctxlog"
	"github.com/vk/pyprovision/internal/fault"
	"golang.org/x/sync/errgroup"
)

// Run builds the target ref and everything it depends on. Each target is
// built at most once per graph: later calls, and targets shared between
// several dependents, return the memoized result or error.
//
// A failure does not cancel targets that are already running; their results
// are recorded and the failure is returned once ref is resolved.
func (g *Graph) Run(ctx context.Context, ref Ref) (Result, error) {
	n, err := g.lookup(ref)
	if err != nil {
		return Result{}, err
	}
	return g.resolve(ctx, n)
}

func (g *Graph) resolve(ctx context.Context, n *node) (Result, error) {
	n.once.Do(func() {
		n.result, n.err = g.build(ctx, n)
	})
	return n.result, n.err
}

func (g *Graph) build(ctx context.Context, n *node) (Result, error) {
	spec := n.spec
	ctx, logger := ctxlog.With(ctx, "node", spec.Name)
	result := Result{Name: spec.Name, Kind: spec.Kind, Artifact: spec.ArtifactPath, State: Pending}

	deps, err := g.resolveDeps(ctx, n)
	if err != nil {
		logger.Warn("Not building node due to upstream failure.", "error", err)
		result.State = g.transition(ctx, n, Failed, err, 0)
		return result, err
	}

	if err := ctx.Err(); err != nil {
		err = &NodeError{Node: spec.Name, Err: err}
		result.State = g.transition(ctx, n, Failed, err, 0)
		return result, err
	}

	if spec.Kind == Real && spec.Policy == ContentBased {
		_, statErr := os.Stat(spec.ArtifactPath)
		switch {
		case statErr == nil:
			logger.Debug("Artifact exists, skipping node.", "artifact", spec.ArtifactPath)
			result.State = g.transition(ctx, n, Skipped, nil, 0)
			return result, nil
		case !errors.Is(statErr, fs.ErrNotExist):
			err := &NodeError{Node: spec.Name, Err: fault.Filesystem("stat", spec.ArtifactPath, statErr)}
			result.State = g.transition(ctx, n, Failed, err, 0)
			return result, err
		}
	}

	if g.workers != nil {
		if err := g.workers.Acquire(ctx, 1); err != nil {
			err = &NodeError{Node: spec.Name, Err: err}
			result.State = g.transition(ctx, n, Failed, err, 0)
			return result, err
		}
		defer g.workers.Release(1)
	}

	g.transition(ctx, n, Running, nil, 0)
	logger.Debug("Running node action.", "kind", spec.Kind, "policy", spec.Policy)
	start := time.Now()

	if spec.Action != nil {
		result.State = Running
		err = spec.Action(ctx, &Build{Target: result, Deps: deps})
	}
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("Node action failed.", "error", err, "duration", elapsed)
		err = &NodeError{Node: spec.Name, Err: err}
		result.State = g.transition(ctx, n, Failed, err, elapsed)
		return result, err
	}

	logger.Debug("Node action succeeded.", "duration", elapsed)
	result.State = g.transition(ctx, n, Succeeded, nil, elapsed)
	return result, nil
}

// resolveDeps resolves the direct dependencies of n concurrently and waits
// for all of them. When several fail, the first one in declaration order is
// reported so the outcome does not depend on scheduling.
func (g *Graph) resolveDeps(ctx context.Context, n *node) (map[string]Result, error) {
	deps := n.spec.Deps
	results := make([]Result, len(deps))
	errs := make([]error, len(deps))

	var eg errgroup.Group
	for i, ref := range deps {
		eg.Go(func() error {
			dep, err := g.lookup(ref)
			if err != nil {
				errs[i] = &NodeError{Node: n.spec.Name, Err: fmt.Errorf("dependency: %w", err)}
				return nil
			}
			results[i], errs[i] = g.resolve(ctx, dep)
			return nil
		})
	}
	eg.Wait()

	out := make(map[string]Result, len(deps))
	for i, ref := range deps {
		if errs[i] == nil {
			out[string(ref)] = results[i]
			continue
		}
		var nodeErr *NodeError
		if errors.As(errs[i], &nodeErr) && nodeErr.Node == n.spec.Name {
			return nil, errs[i]
		}
		return nil, propagate(n.spec.Name, string(ref), errs[i])
	}
	return out, nil
}

// transition records the new state of n, notifies the observer and returns
// the state.
func (g *Graph) transition(ctx context.Context, n *node, to State, err error, elapsed time.Duration) State {
	from := State(n.state.Swap(int32(to)))
	if g.observer != nil {
		g.observeMu.Lock()
		defer g.observeMu.Unlock()
		g.observer(ctx, Transition{
			Node:     n.spec.Name,
			Kind:     n.spec.Kind,
			From:     from,
			To:       to,
			Err:      err,
			Duration: elapsed,
		})
	}
	return to
}
