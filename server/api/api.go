// Package api exposes the orchestration engine over NATS request/reply.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"sync"

	version2 "github.com/hashicorp/go-version"
	"github.com/nats-io/nats.go"
	"gitlab.com/grcflow/grcflow/common"
	"gitlab.com/grcflow/grcflow/common/ctxkey"
	"gitlab.com/grcflow/grcflow/common/logx"
	"gitlab.com/grcflow/grcflow/common/middleware"
	"gitlab.com/grcflow/grcflow/common/telemetry"
	"gitlab.com/grcflow/grcflow/common/version"
	"gitlab.com/grcflow/grcflow/internal"
	"gitlab.com/grcflow/grcflow/internal/server/workflow"
	errors2 "gitlab.com/grcflow/grcflow/server/errors"
	"gitlab.com/grcflow/grcflow/server/messages"
	"gitlab.com/grcflow/grcflow/server/server/option"
	"gitlab.com/grcflow/grcflow/server/services/natz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
)

// Endpoints provides the NATS API endpoints for the orchestration engine.
type Endpoints struct {
	operations           *workflow.Operations
	subs                 *sync.Map
	panicRecovery        bool
	receiveApiMiddleware []middleware.Receive
	sendMiddleware       []middleware.Send
	tr                   trace.Tracer
	nc                   *natz.NatsConnConfiguration
}

// New creates a new instance of the API server.
func New(operations *workflow.Operations, nc *natz.NatsConnConfiguration, options *option.ServerOptions) (*Endpoints, error) {
	ss := &Endpoints{
		operations:    operations,
		nc:            nc,
		panicRecovery: options.PanicRecovery,
		subs:          &sync.Map{},
		tr:            otel.GetTracerProvider().Tracer("grcflow", trace.WithInstrumentationVersion(version.Version)),
	}
	ss.receiveApiMiddleware = append(ss.receiveApiMiddleware, telemetry.ReceiveAPIMessageTelemetry(options.TelemetryConfig))
	ss.sendMiddleware = append(ss.sendMiddleware, telemetry.SendMessageTelemetry(options.TelemetryConfig))
	return ss, nil
}

var shutdownOnce sync.Once

// Shutdown gracefully shuts down the API server.
func (s *Endpoints) Shutdown() {
	slog.Info("stopping grcflow api listener")
	shutdownOnce.Do(func() {
		s.subs.Range(func(key, _ any) bool {
			sub := key.(*nats.Subscription)
			if err := sub.Drain(); err != nil {
				slog.Error("drain subscription for "+sub.Subject, "error", err)
				return false
			}
			return true
		})
		slog.Info("grcflow api listener stopped")
	})
}

// Listen starts the API server listening to incoming requests.
func (s *Endpoints) Listen() error {
	if err := listen(s.nc.Conn, s.panicRecovery, s.subs, messages.APIStoreDefinition, s.receiveApiMiddleware, s.sendMiddleware, s.storeDefinition); err != nil {
		return fmt.Errorf("APIStoreDefinition: %w", err)
	}
	if err := listen(s.nc.Conn, s.panicRecovery, s.subs, messages.APIGetDefinition, s.receiveApiMiddleware, s.sendMiddleware, s.getDefinition); err != nil {
		return fmt.Errorf("APIGetDefinition: %w", err)
	}
	if err := listen(s.nc.Conn, s.panicRecovery, s.subs, messages.APIStartProcess, s.receiveApiMiddleware, s.sendMiddleware, s.startProcess); err != nil {
		return fmt.Errorf("APIStartProcess: %w", err)
	}
	if err := listen(s.nc.Conn, s.panicRecovery, s.subs, messages.APIApproveInstance, s.receiveApiMiddleware, s.sendMiddleware, s.approveInstance); err != nil {
		return fmt.Errorf("APIApproveInstance: %w", err)
	}
	if err := listen(s.nc.Conn, s.panicRecovery, s.subs, messages.APIRejectInstance, s.receiveApiMiddleware, s.sendMiddleware, s.rejectInstance); err != nil {
		return fmt.Errorf("APIRejectInstance: %w", err)
	}
	if err := listen(s.nc.Conn, s.panicRecovery, s.subs, messages.APICompleteInstance, s.receiveApiMiddleware, s.sendMiddleware, s.completeInstance); err != nil {
		return fmt.Errorf("APICompleteInstance: %w", err)
	}
	if err := listen(s.nc.Conn, s.panicRecovery, s.subs, messages.APICompleteTask, s.receiveApiMiddleware, s.sendMiddleware, s.completeTask); err != nil {
		return fmt.Errorf("APICompleteTask: %w", err)
	}
	if err := listen(s.nc.Conn, s.panicRecovery, s.subs, messages.APIGetInstance, s.receiveApiMiddleware, s.sendMiddleware, s.getInstance); err != nil {
		return fmt.Errorf("APIGetInstance: %w", err)
	}
	if err := listen(s.nc.Conn, s.panicRecovery, s.subs, messages.APIGetTasks, s.receiveApiMiddleware, s.sendMiddleware, s.getTasks); err != nil {
		return fmt.Errorf("APIGetTasks: %w", err)
	}
	if err := listen(s.nc.Conn, s.panicRecovery, s.subs, messages.APIListInstances, s.receiveApiMiddleware, s.sendMiddleware, s.listInstances); err != nil {
		return fmt.Errorf("APIListInstances: %w", err)
	}
	if err := listen(s.nc.Conn, s.panicRecovery, s.subs, messages.APIGetStatistics, s.receiveApiMiddleware, s.sendMiddleware, s.getStatistics); err != nil {
		return fmt.Errorf("APIGetStatistics: %w", err)
	}
	if err := listen(s.nc.Conn, s.panicRecovery, s.subs, messages.APIGetVersionInfo, s.receiveApiMiddleware, s.sendMiddleware, s.versionInfo); err != nil {
		return fmt.Errorf("APIGetVersionInfo: %w", err)
	}
	slog.Info("grcflow api listener started")
	return nil
}

func listen[T any, U any](con common.NatsConn, panicRecovery bool, subList *sync.Map, subject string, receiveApiMiddleware []middleware.Receive, sendMiddleware []middleware.Send, fn func(ctx context.Context, req *T) (U, error)) error {
	sub, err := con.QueueSubscribe(subject, subject, func(msg *nats.Msg) {
		if msg.Subject != messages.APIGetVersionInfo {
			if compat := msg.Header.Get(messages.CompatHeader); compat != "" {
				callerVersion, err := version2.NewVersion(compat)
				if err != nil {
					errorResponse(msg, codes.PermissionDenied, "version: client version invalid")
					return
				}
				if callerVersion.LessThan(version.MinCompatibleVersion) {
					errorResponse(msg, codes.PermissionDenied, "version: client version >= "+version.MinCompatibleVersion.String()+" required")
					return
				}
			}
		}
		ctx, log := logx.NatsMessageLoggingEntrypoint(context.Background(), "server", msg.Header)
		if tenant := msg.Header.Get(messages.TenantHeader); tenant != "" {
			ctx = context.WithValue(ctx, ctxkey.TenantID, tenant)
		}
		for _, i := range receiveApiMiddleware {
			var err error
			ctx, err = i(ctx, msg)
			if err != nil {
				errorResponse(msg, codes.Internal, fmt.Sprintf("receive middleware %s: %s", reflect.TypeOf(i), err.Error()))
				return
			}
		}
		ctx, span := telemetry.StartApiSpan(ctx, "grcflow", msg.Subject)
		if err := callAPI(ctx, panicRecovery, msg, sendMiddleware, fn); err != nil {
			log.Error("API call for "+subject+" failed", "error", err)
		}
		span.End()
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	subList.Store(sub, struct{}{})
	return nil
}

func callAPI[T any, U any](ctx context.Context, panicRecovery bool, msg *nats.Msg, sendMiddleware []middleware.Send, fn func(ctx context.Context, req *T) (U, error)) error {
	if panicRecovery {
		defer recoverAPIpanic(msg)
	}
	req := new(T)
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, req); err != nil {
			errorResponse(msg, codes.InvalidArgument, err.Error())
			return fmt.Errorf("unmarshal message data during callAPI: %w", err)
		}
	}
	ctx = context.WithValue(ctx, ctxkey.APIFunc, msg.Subject)
	resMsg, err := fn(ctx, req)
	if err != nil {
		errorResponse(msg, errCode(err), err.Error())
		return fmt.Errorf("API call: %w", err)
	}
	res, err := json.Marshal(resMsg)
	if err != nil {
		errorResponse(msg, codes.InvalidArgument, err.Error())
		return fmt.Errorf("marshal API response: %w", err)
	}
	reply := nats.NewMsg(msg.Reply)
	reply.Data = res
	for _, i := range sendMiddleware {
		if err := i(ctx, reply); err != nil {
			errorResponse(msg, codes.Internal, fmt.Sprintf("send middleware %s: %s", reflect.TypeOf(i), err.Error()))
			return fmt.Errorf("send middleware: %w", err)
		}
	}
	if err := msg.RespondMsg(reply); err != nil {
		errorResponse(msg, codes.FailedPrecondition, err.Error())
		return fmt.Errorf("API response: %w", err)
	}
	return nil
}

// errCode maps engine errors onto wire codes so clients can react to the
// failure class rather than parsing message text.
func errCode(err error) codes.Code {
	switch {
	case errors.Is(err, errors2.ErrDefinitionNotFound),
		errors.Is(err, errors2.ErrInstanceNotFound),
		errors.Is(err, errors2.ErrTaskNotFound),
		errors.Is(err, errors2.ErrActorNotFound):
		return codes.NotFound
	case errors.Is(err, errors2.ErrDefinitionInactive):
		return codes.FailedPrecondition
	case errors.Is(err, errors2.ErrDuplicateStepSequence):
		return codes.InvalidArgument
	case errors2.IsInvalidStateTransition(err):
		return codes.Aborted
	case errors.Is(err, errors2.ErrUpdateConflict):
		return codes.Unavailable
	case errors2.IsWorkflowFatal(err):
		return codes.Internal
	default:
		return codes.Unknown
	}
}

func recoverAPIpanic(msg *nats.Msg) {
	if r := recover(); r != nil {
		buf := make([]byte, 16384)
		runtime.Stack(buf, false)
		stack := buf[:bytes.IndexByte(buf, 0)]
		errorResponse(msg, codes.Internal, r)
		slog.Error("recovered from api panic", "recovered", r, "stack", string(stack))
	}
}

func errorResponse(m *nats.Msg, code codes.Code, msg any) {
	if err := m.Respond(apiError(code, msg)); err != nil {
		slog.Error("send error response: "+string(apiError(codes.Internal, msg)), "error", err)
	}
}

func apiError(code codes.Code, msg any) []byte {
	err := fmt.Sprintf("%s%d%s%+v", internal.ErrorPrefix, code, internal.ErrorSeparator, msg)
	return []byte(err)
}
