package agent

import (
	"errors"
	"fmt"
)

// ErrStepBudget ends a turn that burned through its step allowance without
// finishing the plan. It is always reported distinctly from success.
var ErrStepBudget = errors.New("step budget exhausted before the plan completed")

// ModelContractError means the model's response failed to parse as the
// expected structured output. It is not retried automatically: re-asking
// tends to reproduce the same malformed answer.
type ModelContractError struct {
	Reason string
	Raw    string
}

func (e *ModelContractError) Error() string {
	return "model contract violation: " + e.Reason
}

// ToolExecutionError wraps a tool adapter failure so the step can be marked
// failed while the session keeps running.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}
