// Package routing implements the package routing state machine: start-node
// discovery, advance/return/reject semantics, multi-office consensus, and
// action-node chaining.
package routing

import (
	"errors"
	"fmt"
)

// RoutingError is the only error kind the engine raises for precondition
// violations: wrong status, unauthorized actor, missing comment or return
// destination, invalid decision, missing workflow or start node. It is
// always caller-recoverable; the triggering transaction never partially
// commits. The message text is part of the external contract callers show
// to users.
type RoutingError struct {
	Message string
}

func (e *RoutingError) Error() string {
	return e.Message
}

// NewRoutingError creates a routing error with a formatted message.
func NewRoutingError(format string, args ...any) *RoutingError {
	return &RoutingError{Message: fmt.Sprintf(format, args...)}
}

// IsRoutingError checks whether err is (or wraps) a RoutingError.
func IsRoutingError(err error) bool {
	var target *RoutingError

	return errors.As(err, &target)
}
