package nb2doc

import "context"

// Execution statuses reported by executors.
const (
	ExecStatusOK     = "ok"
	ExecStatusError  = "error"
	ExecStatusCached = "cached"
)

// ExecutionResult summarizes one notebook execution. A non-empty
// Traceback means execution failed; the build persists it to a
// per-document report file and continues with whatever outputs exist.
type ExecutionResult struct {
	Status    string
	Traceback string
}

// Executor populates a notebook's outputs, typically by running its
// code cells against a kernel or by consulting an execution cache. It
// is an external collaborator of the rendering pipeline: the returned
// notebook replaces the input for all further rendering. A nil result
// means nothing was executed (the notebook was already populated).
type Executor interface {
	Execute(ctx context.Context, nb *Notebook, docPath string) (*Notebook, *ExecutionResult, error)
}

// StaticExecutor uses the outputs already stored in the notebook and
// never executes anything. It is the default for pre-executed
// notebooks.
type StaticExecutor struct{}

// Execute returns the notebook unchanged with no execution result.
func (StaticExecutor) Execute(_ context.Context, nb *Notebook, _ string) (*Notebook, *ExecutionResult, error) {
	return nb, nil, nil
}
