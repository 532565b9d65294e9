package common

import (
	"context"
	"log/slog"

	"github.com/davecgh/go-spew/spew"
	"gitlab.com/grcflow/grcflow/common/logx"
	errors2 "gitlab.com/grcflow/grcflow/server/errors"
)

// Dump writes a deep representation of v to the trace log.  It is a no-op
// unless trace logging is enabled, so callers can leave it on hot paths.
func Dump(ctx context.Context, label string, v any) {
	log := logx.FromContext(ctx)
	if !log.Enabled(ctx, errors2.TraceLevel) {
		return
	}
	log.Log(ctx, errors2.TraceLevel, label, slog.String("dump", spew.Sdump(v)))
}
