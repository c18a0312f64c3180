package dag

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateNode = errors.New("duplicate node")
	ErrCycle         = errors.New("dependency cycle")
	ErrUnknownNode   = errors.New("unknown node")
	// ErrDependencyFailed matches every *DependencyError.
	ErrDependencyFailed = errors.New("dependency failed")
)

// NodeError is the failure of a target's own action.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// DependencyError is the failure of a target that was not executed because a
// transitive dependency failed. Origin is the target whose action failed and
// Err its cause.
type DependencyError struct {
	Node   string
	Origin string
	Err    error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("node %q: dependency %q failed: %v", e.Node, e.Origin, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

func (e *DependencyError) Is(target error) bool {
	return target == ErrDependencyFailed
}

// propagate turns the failure of dep into the failure of node, keeping the
// original target and cause.
func propagate(node, dep string, err error) error {
	var depErr *DependencyError
	if errors.As(err, &depErr) {
		return &DependencyError{Node: node, Origin: depErr.Origin, Err: depErr.Err}
	}
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return &DependencyError{Node: node, Origin: nodeErr.Node, Err: nodeErr.Err}
	}
	return &DependencyError{Node: node, Origin: dep, Err: err}
}
