package dag

import (
	"context"
	"time"
)

// Kind tells whether a target corresponds to a filesystem artifact.
type Kind int

const (
	// Real targets produce the file or directory at their artifact path.
	Real Kind = iota
	// Virtual targets are milestones with no artifact.
	Virtual
)

func (k Kind) String() string {
	if k == Virtual {
		return "virtual"
	}
	return "real"
}

// Policy decides whether a target's action runs when its artifact exists.
type Policy int

const (
	// ContentBased skips the action if the artifact path already exists.
	ContentBased Policy = iota
	// Always runs the action on every build.
	Always
)

func (p Policy) String() string {
	if p == Always {
		return "always"
	}
	return "content-based"
}

// State is the lifecycle position of a target within one graph.
type State int32

const (
	Pending State = iota
	Running
	Succeeded
	Skipped
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == Succeeded || s == Skipped || s == Failed
}

// Ref names a registered target. Refs may be created for targets that are
// registered later.
type Ref string

// Action performs the side effects of a target.
type Action func(ctx context.Context, b *Build) error

// Spec declares a target.
type Spec struct {
	Name   string
	Kind   Kind
	Policy Policy
	Deps   []Ref
	// ArtifactPath is the file checked by the content-based policy. It
	// defaults to Name for real targets and is ignored for virtual ones.
	ArtifactPath string
	// Action may be nil for targets that only group their dependencies.
	Action Action
}

// Build is handed to an action.
type Build struct {
	Target Result
	// Deps holds the results of the target's direct dependencies, keyed by
	// name.
	Deps map[string]Result
}

// Result is what a resolved target produced.
type Result struct {
	Name     string
	Kind     Kind
	Artifact string
	State    State
}

// Transition is reported to an Observer every time a target changes state.
type Transition struct {
	Node     string
	Kind     Kind
	From     State
	To       State
	Err      error
	Duration time.Duration
}

// Observer receives state transitions. It is called synchronously from the
// goroutine resolving the target and must not block for long.
type Observer func(ctx context.Context, t Transition)
