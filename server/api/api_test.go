package api

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gitlab.com/grcflow/grcflow/internal"
	errors2 "gitlab.com/grcflow/grcflow/server/errors"
	"google.golang.org/grpc/codes"
)

func TestErrCodeMapsEngineErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		code codes.Code
	}{
		{"definition not found", fmt.Errorf("get definition: %w", errors2.ErrDefinitionNotFound), codes.NotFound},
		{"instance not found", fmt.Errorf("get instance: %w", errors2.ErrInstanceNotFound), codes.NotFound},
		{"task not found", fmt.Errorf("complete task: %w", errors2.ErrTaskNotFound), codes.NotFound},
		{"inactive definition", fmt.Errorf("start: %w", errors2.ErrDefinitionInactive), codes.FailedPrecondition},
		{"invalid transition", fmt.Errorf("transition: %w", &errors2.ErrInvalidStateTransition{Current: "Completed", Target: "InApproval"}), codes.Aborted},
		{"update conflict", fmt.Errorf("update: %w", errors2.ErrUpdateConflict), codes.Unavailable},
		{"workflow fatal", &errors2.ErrWorkflowFatal{Err: fmt.Errorf("bad expression")}, codes.Internal},
		{"anything else", fmt.Errorf("boom"), codes.Unknown},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, errCode(tc.err))
		})
	}
}

func TestApiErrorEnvelopeFormat(t *testing.T) {
	b := apiError(codes.NotFound, "process instance not found")
	assert.Equal(t, internal.ErrorPrefix+"5"+internal.ErrorSeparator+"process instance not found", string(b))
}
