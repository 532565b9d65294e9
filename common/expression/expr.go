package expression

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	errors2 "gitlab.com/grcflow/grcflow/server/errors"
)

// ExprEngine evaluates "="-prefixed rule expressions with expr-lang.
type ExprEngine struct {
}

// Eval compiles and runs an expression against the given variables.  An
// empty expression yields nil.  The leading "=" marker, when present, is
// stripped before compilation.  Compile failures are fatal: a rule that
// cannot compile will never succeed on retry.
func (e *ExprEngine) Eval(ctx context.Context, exp string, vars map[string]interface{}) (interface{}, error) {
	if len(exp) == 0 {
		return nil, nil
	}
	prog, err := expr.Compile(strings.TrimPrefix(exp, "="))
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", &errors2.ErrWorkflowFatal{Err: err})
	}
	res, err := expr.Run(prog, vars)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression: %w", err)
	}
	return res, nil
}
