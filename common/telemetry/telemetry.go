// Package telemetry propagates W3C trace context across NATS messages and
// starts API spans on the server side.
package telemetry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"

	"github.com/nats-io/nats.go"
	"gitlab.com/grcflow/grcflow/common/middleware"
	"gitlab.com/grcflow/grcflow/common/version"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the telemetry settings for a process.
type Config struct {
	Enabled  bool
	Endpoint string
}

// NatsMsgCarrier adapts a NATS message header to the otel TextMapCarrier.
type NatsMsgCarrier struct {
	msg *nats.Msg
}

// NewNatsMsgCarrier creates a carrier over a NATS message.
func NewNatsMsgCarrier(msg *nats.Msg) *NatsMsgCarrier {
	return &NatsMsgCarrier{msg: msg}
}

// Get returns a header value.
func (c *NatsMsgCarrier) Get(key string) string {
	return c.msg.Header.Get(key)
}

// Set sets a header value.
func (c *NatsMsgCarrier) Set(key string, value string) {
	c.msg.Header.Set(key, value)
}

// Keys returns the header keys present on the message.
func (c *NatsMsgCarrier) Keys() []string {
	if c.msg.Header == nil {
		return make([]string, 0)
	}
	ret := make([]string, 0, len(c.msg.Header))
	for k := range c.msg.Header {
		ret = append(ret, k)
	}
	return ret
}

func newTraceID() []byte {
	traceID := make([]byte, 16)
	if _, err := rand.Read(traceID); err != nil {
		slog.Error("new trace parent: crypto get bytes", "error", err)
	}
	return traceID
}

// NewTraceParent builds a W3C traceparent with an empty span.
func NewTraceParent(traceID []byte) string {
	return "00-" + hex.EncodeToString(traceID) + "-1000000000000001-00"
}

// CtxToNatsMsg injects the current trace context into the message headers.
func CtxToNatsMsg(ctx context.Context, msg *nats.Msg) {
	prop := propagation.TraceContext{}
	prop.Inject(ctx, NewNatsMsgCarrier(msg))
}

// NatsMsgToCtx extracts trace context from the message headers, minting a
// fresh trace id when none is carried so server spans are never orphaned.
func NatsMsgToCtx(ctx context.Context, msg *nats.Msg) context.Context {
	if msg.Header.Get("traceparent") == "" {
		msg.Header.Set("traceparent", NewTraceParent(newTraceID()))
	}
	prop := propagation.TraceContext{}
	return prop.Extract(ctx, NewNatsMsgCarrier(msg))
}

// SendMessageTelemetry returns send middleware that injects trace context.
func SendMessageTelemetry(cfg Config) middleware.Send {
	if !cfg.Enabled {
		return func(_ context.Context, _ *nats.Msg) error { return nil }
	}
	return func(ctx context.Context, msg *nats.Msg) error {
		CtxToNatsMsg(ctx, msg)
		return nil
	}
}

// ReceiveAPIMessageTelemetry returns receive middleware that extracts trace
// context from inbound API messages.
func ReceiveAPIMessageTelemetry(cfg Config) middleware.Receive {
	if !cfg.Enabled {
		return func(ctx context.Context, _ *nats.Msg) (context.Context, error) { return ctx, nil }
	}
	return func(ctx context.Context, msg *nats.Msg) (context.Context, error) {
		return NatsMsgToCtx(ctx, msg), nil
	}
}

// StartApiSpan opens a span for one inbound API call.
func StartApiSpan(ctx context.Context, name string, subject string) (context.Context, trace.Span) {
	tr := otel.GetTracerProvider().Tracer(name, trace.WithInstrumentationVersion(version.Version))
	return tr.Start(ctx, subject)
}
