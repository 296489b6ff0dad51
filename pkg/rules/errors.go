package rules

import (
	"errors"
	"fmt"
	"strings"
)

// EvaluationError reports a rule that failed to compile or run. ColumnID is
// set when the rule was evaluated for a computed column.
type EvaluationError struct {
	Engine   string
	ColumnID string
	Expr     string
	Err      error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("rules: ")
	b.WriteString(e.Engine)
	if e.ColumnID != "" {
		fmt.Fprintf(&b, " column %q", e.ColumnID)
	}
	if e.Expr != "" {
		fmt.Fprintf(&b, " expr %q", e.Expr)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// engineError reports a failure not tied to a particular expression.
func engineError(engine string, err error) error {
	return exprError(engine, "", err)
}

// exprError tags err with engine and expr, filling blanks on an existing
// EvaluationError instead of nesting a second one.
func exprError(engine, expr string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		return evalErr
	}
	return &EvaluationError{Engine: engine, Expr: expr, Err: err}
}

// forColumn returns a copy of err carrying columnID. Compile errors are cached
// with their programs, so the shared value is never mutated.
func forColumn(err error, columnID string) error {
	if err == nil || columnID == "" {
		return err
	}
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		return &EvaluationError{ColumnID: columnID, Err: err}
	}
	tagged := *evalErr
	tagged.ColumnID = columnID
	return &tagged
}
