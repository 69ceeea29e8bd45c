package query

import "fmt"

// InvalidClauseError reports builder misuse: an unknown operator, an empty
// boolean clause, a duplicate aggregate name and so on.
type InvalidClauseError struct {
	Clause string `json:"clause"`
	Reason string `json:"reason"`
}

// Error implements the error interface
func (e *InvalidClauseError) Error() string {
	return fmt.Sprintf("invalid %s clause: %s", e.Clause, e.Reason)
}

func invalid(clause, format string, args ...interface{}) *InvalidClauseError {
	return &InvalidClauseError{Clause: clause, Reason: fmt.Sprintf(format, args...)}
}
