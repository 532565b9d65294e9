// Package server hosts the orchestration engine API and its gRPC health endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-version"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"gitlab.com/grcflow/grcflow/common"
	"gitlab.com/grcflow/grcflow/common/cache"
	"gitlab.com/grcflow/grcflow/common/telemetry"
	version2 "gitlab.com/grcflow/grcflow/common/version"
	"gitlab.com/grcflow/grcflow/internal/server/workflow"
	"gitlab.com/grcflow/grcflow/server/api"
	"gitlab.com/grcflow/grcflow/server/health"
	"gitlab.com/grcflow/grcflow/server/messages"
	"gitlab.com/grcflow/grcflow/server/server/option"
	"gitlab.com/grcflow/grcflow/server/services/natz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	gogrpc "google.golang.org/grpc"
	grpcHealth "google.golang.org/grpc/health/grpc_health_v1"
)

// Server hosts the GRCFlow API.
type Server struct {
	sig           chan os.Signal
	healthService *health.Checker
	grpcServer    *gogrpc.Server
	api           *api.Endpoints
	so            *option.ServerOptions
	ServerVersion *version.Version
	conn          *nats.Conn
	tr            trace.Tracer
}

// New creates a new GRCFlow server.
func New(options ...option.Option) *Server {
	currentVer, err := version.NewVersion(version2.Version)
	if err != nil {
		panic(err)
	}
	so := &option.ServerOptions{
		PanicRecovery:        true,
		HealthServiceEnabled: true,
		ShowSplash:           true,
		GrpcPort:             50000,
		NatsUrl:              nats.DefaultURL,
	}
	for _, i := range options {
		i.Configure(so)
	}
	s := &Server{
		ServerVersion: currentVer,
		sig:           make(chan os.Signal, 10),
		healthService: health.New(),
		so:            so,
	}

	if s.so.ShowSplash {
		fmt.Printf(`
	 ██████╗ ██████╗  ██████╗███████╗██╗      ██████╗ ██╗    ██╗
	██╔════╝ ██╔══██╗██╔════╝██╔════╝██║     ██╔═══██╗██║    ██║
	██║  ███╗██████╔╝██║     █████╗  ██║     ██║   ██║██║ █╗ ██║
	██║   ██║██╔══██╗██║     ██╔══╝  ██║     ██║   ██║██║███╗██║
	╚██████╔╝██║  ██║╚██████╗██║     ███████╗╚██████╔╝╚███╔███╔╝
	 ╚═════╝ ╚═╝  ╚═╝ ╚═════╝╚═╝     ╚══════╝ ╚═════╝  ╚══╝╚══╝
	` + "\n")
		s.Details()
	}
	return s
}

// The following variables are set by -ldflags at build time.
var (
	VersionTag string
	CommitHash string
	BuildDate  string
)

// Details prints the details to stdout of the current server.
func (s *Server) Details() {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"GRCFLOW SERVER CONFIGURATION", "VALUE"})
	t.Style().Options.SeparateRows = true
	t.AppendRows([]table.Row{
		{"Version            ", version2.Version},
		{"Build Time         ", BuildDate},
		{"Commit SHA         ", CommitHash},
		{"Nats URL           ", s.so.NatsUrl},
		{"Nats Client Version", version2.NatsVersion},
		{"Ephemeral Storage  ", s.so.EphemeralStorage},
		{"Panic Recovery     ", s.so.PanicRecovery},
		{"Grpc Port          ", s.so.GrpcPort},
		{"Telemetry Enabled  ", s.so.TelemetryConfig.Enabled},
		{"Telemetry Endpoint ", s.so.TelemetryConfig.Endpoint},
	}, table.RowConfig{AutoMerge: false})
	t.AppendSeparator()
	t.Render()
}

// Listen starts the API listeners and the gRPC health endpoint.
func (s *Server) Listen() error {
	setupTelemetry(s)

	errs := make(chan error)

	signal.Notify(s.sig, syscall.SIGTERM, syscall.SIGINT)

	if s.so.HealthServiceEnabled {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.so.GrpcPort))
		if err != nil {
			slog.Error("listen", "error", err, slog.Int64("grpcPort", int64(s.so.GrpcPort)))
			panic(err)
		}

		s.grpcServer = gogrpc.NewServer()
		s.healthService.SetStatus(grpcHealth.HealthCheckResponse_NOT_SERVING)
		grpcHealth.RegisterHealthServer(s.grpcServer, s.healthService)

		go func() {
			if err := s.grpcServer.Serve(lis); err != nil {
				errs <- err
			}
			close(errs)
		}()
		slog.Info("grcflow grpc health started")
	} else {
		s.healthService.SetStatus(grpcHealth.HealthCheckResponse_NOT_SERVING)
	}

	nc, err := s.ConnectNats(s.so.NatsUrl, s.so.EphemeralStorage)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	s.conn = nc.Conn

	ns, err := natz.NewNatsService(nc)
	if err != nil {
		return fmt.Errorf("create nats service: %w", err)
	}

	if err := s.recordServerVersion(context.Background(), ns); err != nil {
		return fmt.Errorf("record server version: %w", err)
	}

	engine, err := createEngine(ns, s.so)
	if err != nil {
		return fmt.Errorf("create orchestration engine: %w", err)
	}

	a, err := api.New(engine, nc, s.so)
	if err != nil {
		return fmt.Errorf("create api: %w", err)
	}
	s.api = a
	if err := s.api.Listen(); err != nil {
		panic(err)
	}
	s.healthService.SetStatus(grpcHealth.HealthCheckResponse_SERVING)

	select {
	case err := <-errs:
		if err != nil {
			slog.Error("fatal error", "error", err)
			panic("fatal error")
		}
	case <-s.sig:
		s.Shutdown()
	}
	return nil
}

func createEngine(ns *natz.NatsService, so *option.ServerOptions) (*workflow.Operations, error) {
	defCache, err := cache.NewRistrettoCacheBackend(workflow.DefinitionCacheTTL, true)
	if err != nil {
		return nil, fmt.Errorf("create definition cache: %w", err)
	}
	statsCache, err := cache.NewRistrettoCacheBackend(workflow.StatisticsCacheTTL, false)
	if err != nil {
		return nil, fmt.Errorf("create statistics cache: %w", err)
	}
	resolver := workflow.NewKvAssigneeResolver(ns)
	auditSink := workflow.NewKvAuditSink(ns, telemetry.SendMessageTelemetry(so.TelemetryConfig))
	return workflow.NewOperations(ns, resolver, auditSink, defCache, statsCache), nil
}

// recordServerVersion stamps the state store with the running server version.
// Startup refuses to run against state written by a newer server, so a
// rolled-back binary cannot silently downgrade the store.
func (s *Server) recordServerVersion(ctx context.Context, ns *natz.NatsService) error {
	kv, err := ns.Js.KeyValue(ctx, messages.KvVersion)
	if err != nil {
		return fmt.Errorf("open version bucket: %w", err)
	}
	stored, err := common.Load(ctx, kv, "server_version")
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("load stored server version: %w", err)
	}
	if err == nil {
		storedVer, verr := version.NewVersion(string(stored))
		if verr != nil {
			return fmt.Errorf("parse stored server version %q: %w", string(stored), verr)
		}
		if storedVer.GreaterThan(s.ServerVersion) {
			return fmt.Errorf("state store version %s is newer than server version %s: refusing to start", storedVer, s.ServerVersion)
		}
	}
	if err := common.Save(ctx, kv, "server_version", []byte(version2.Version)); err != nil {
		return fmt.Errorf("save server version: %w", err)
	}
	return nil
}

func setupTelemetry(s *Server) {
	traceName := "grcflow"
	switch s.so.TelemetryConfig.Endpoint {
	case "console":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			slog.Error("create stdouttrace exporter", "error", err)
			otel.SetTracerProvider(noop.NewTracerProvider())
			break
		}
		batchSpanProcessor := sdktrace.NewBatchSpanProcessor(exporter)
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithSpanProcessor(batchSpanProcessor),
		)
		otel.SetTracerProvider(tp)
	default:
		otel.SetTracerProvider(noop.NewTracerProvider())
	}
	s.tr = otel.GetTracerProvider().Tracer(traceName, trace.WithInstrumentationVersion(version2.Version))
}

// Shutdown gracefully shuts down the API listeners and the health endpoint.
func (s *Server) Shutdown() {
	s.healthService.SetStatus(grpcHealth.HealthCheckResponse_NOT_SERVING)
	if s.api != nil {
		s.api.Shutdown()
	}
	if s.so.HealthServiceEnabled && s.grpcServer != nil {
		s.grpcServer.GracefulStop()
		slog.Info("grcflow grpc health stopped")
	}
}

// Ready returns true if the server is servicing API calls.
func (s *Server) Ready() bool {
	if s.healthService != nil {
		return s.healthService.GetStatus() == grpcHealth.HealthCheckResponse_SERVING
	}
	return false
}

// ConnectNats establishes the server's NATS connections, checks the NATS
// server version and verifies JetStream is available.  A separate
// transactional connection is kept so long running update loops do not starve
// API traffic.
func (s *Server) ConnectNats(natsURL string, ephemeral bool) (*natz.NatsConnConfiguration, error) {
	conn, err := nats.Connect(natsURL, s.so.NatsConnOptions...)
	if err != nil {
		slog.Error("connect to NATS", slog.String("error", err.Error()), slog.String("url", natsURL))
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	txConn, err := nats.Connect(natsURL, s.so.NatsConnOptions...)
	if err != nil {
		slog.Error("connect to NATS", slog.String("error", err.Error()), slog.String("url", natsURL))
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	ctx := context.Background()
	if err := common.CheckVersion(ctx, txConn); err != nil {
		return nil, fmt.Errorf("check NATS version: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("connect to JetStream: %w", err)
	}
	if _, err := js.AccountInfo(ctx); err != nil {
		return nil, fmt.Errorf("get NATS account information: %w", err)
	}
	store := jetstream.FileStorage
	if ephemeral {
		store = jetstream.MemoryStorage
	}
	return &natz.NatsConnConfiguration{
		Conn:            conn,
		TxConn:          txConn,
		StorageType:     store,
		JetStreamDomain: s.so.JetStreamDomain,
	}, nil
}
