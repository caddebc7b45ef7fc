package dag

import (
	"errors"
	"fmt"
	"strings"

	"yqhp/taskflow/pkg/types"
)

// CircularDependencyError is returned when the dependency relation contains a cycle.
type CircularDependencyError struct {
	NodeID string   // first node seen twice on the DFS stack
	Cycle  []string // the cycle, starting and ending at NodeID
}

// Error implements the error interface.
func (e *CircularDependencyError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("circular dependency at node %q: %s", e.NodeID, strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("circular dependency at node %q", e.NodeID)
}

// Kind implements types.KindedError.
func (e *CircularDependencyError) Kind() types.ErrorKind {
	return types.ErrKindCircularDependency
}

// IsCircularDependency checks if the error is a circular dependency error.
func IsCircularDependency(err error) bool {
	var ce *CircularDependencyError
	return errors.As(err, &ce)
}
