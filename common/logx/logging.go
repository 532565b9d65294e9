package logx

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"
)

// ContextKey is a custom type to avoid context collision.
type ContextKey string

const (
	CorrelationHeader     = "cid"             // CorrelationHeader is the name of the nats message header for transporting the correlationID.
	CorrelationContextKey = ContextKey("cid") // CorrelationContextKey is the name of the context key used to store the correlationID.
	EcoSystemLoggingKey   = "eco"             // EcoSystemLoggingKey is the name of the logging key used to store the current ecosystem.
	SubsystemLoggingKey   = "sub"             // SubsystemLoggingKey is the name of the logging key used to store the current subsystem.
	CorrelationLoggingKey = "cid"             // CorrelationLoggingKey is the name of the logging key used to store the correlation id.
	AreaLoggingKey        = "loc"             // AreaLoggingKey is the name of the logging key used to store the functional area.
	TenantLoggingKey      = "tenant"          // TenantLoggingKey is the name of the logging key used to store the tenant id.
)

// Err will output error message to the log and return the error with additional attributes.
func Err(ctx context.Context, message string, err error, atts ...any) error {
	FromContext(ctx).Error(message, append(atts, "error", err)...)
	return fmt.Errorf(message+" %s : %w", fmt.Sprint(atts...), err)
}

// SetDefault configures the process-wide default logger.  It returns a shutdown
// function to flush any buffered output before the program exits.
func SetDefault(handler string, level slog.Level, addSource bool, ecosystem string) func() error {
	var h slog.Handler
	o := &slog.HandlerOptions{
		AddSource:   addSource,
		Level:       level,
		ReplaceAttr: nil,
	}
	switch handler {
	case "json":
		h = slog.NewJSONHandler(os.Stdout, o)
	default:
		h = slog.NewTextHandler(os.Stdout, o)
	}
	slog.SetDefault(slog.New(h).With(slog.String(EcoSystemLoggingKey, ecosystem)))
	return func() error { return nil }
}

// NatsMessageLoggingEntrypoint returns a new logger and a context containing the logger for use when a new NATS message arrives.
func NatsMessageLoggingEntrypoint(ctx context.Context, subsystem string, hdr nats.Header) (context.Context, *slog.Logger) {
	cid := hdr.Get(CorrelationHeader)
	return loggingEntrypoint(ctx, subsystem, cid)
}

type contextLoggerKey string

var ctxLogKey contextLoggerKey = "__log"

// ContextWith derives a logger tagged with a functional area and stores it
// back in the context.  Use it when crossing a programmatic boundary.
func ContextWith(ctx context.Context, area string) (context.Context, *slog.Logger) {
	logger := FromContext(ctx).With(AreaLoggingKey, area)
	return NewContext(ctx, logger), logger
}

// NewContext stores a logger in the context.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLogKey, logger)
}

// FromContext returns the context's logger, falling back to the process
// default when none has been stored.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxLogKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func loggingEntrypoint(ctx context.Context, subsystem string, correlationId string) (context.Context, *slog.Logger) {
	logger := FromContext(ctx).With(slog.String(SubsystemLoggingKey, subsystem), slog.String(CorrelationLoggingKey, correlationId))
	ctx = NewContext(ctx, logger)
	ctx = context.WithValue(ctx, CorrelationContextKey, correlationId)
	return ctx, logger
}
