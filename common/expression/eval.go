package expression

import (
	"context"
	"fmt"

	"gitlab.com/grcflow/grcflow/common/logx"
	errors2 "gitlab.com/grcflow/grcflow/server/errors"
)

// Engine is an expression engine implementation.
type Engine interface {
	// Eval evaluates an expression against a set of variables.
	Eval(ctx context.Context, expr string, vars map[string]interface{}) (interface{}, error)
}

// Eval runs an expression through eng and asserts the result to T.  A panic
// during evaluation (including a failed type assertion) is converted into a
// fatal error rather than taking the caller down.
func Eval[T any](ctx context.Context, eng Engine, exp string, vars map[string]interface{}) (retval T, reterr error) { //nolint:ireturn
	defer func() {
		if r := recover(); r != nil {
			retval = *new(T)
			reterr = logx.Err(ctx, "panic: evaluate expression", &errors2.ErrWorkflowFatal{Err: fmt.Errorf("%v", r)}, "expression", exp)
		}
	}()
	res, err := eng.Eval(ctx, exp, vars)
	if err != nil {
		return *new(T), fmt.Errorf("evaluate expression: %w", err)
	}
	return res.(T), nil
}
