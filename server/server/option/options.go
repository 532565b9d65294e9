// Package option contains settings that control various aspects of server operation and behaviour.
package option

import (
	"github.com/nats-io/nats.go"
	"gitlab.com/grcflow/grcflow/common/telemetry"
)

// ServerOptions contains settings that control various aspects of server operation and behaviour.
type ServerOptions struct {
	PanicRecovery        bool
	HealthServiceEnabled bool
	EphemeralStorage     bool
	NatsUrl              string
	GrpcPort             int
	TelemetryConfig      telemetry.Config
	ShowSplash           bool
	JetStreamDomain      string
	NatsConnOptions      []nats.Option
}

// Option represents a server option.
type Option interface {
	Configure(serverOptions *ServerOptions)
}

// PanicRecovery enables or disables the server's ability to recover from API handler panics.
// This is on by default, and disabling it is not recommended for production use.
func PanicRecovery(enabled bool) panicOption { //nolint
	return panicOption{value: enabled}
}

type panicOption struct{ value bool }

func (o panicOption) Configure(serverOptions *ServerOptions) {
	serverOptions.PanicRecovery = o.value
}

// NatsUrl specifies the NATS URL to connect to.
func NatsUrl(url string) natsUrlOption { //nolint
	return natsUrlOption{value: url}
}

type natsUrlOption struct{ value string }

func (o natsUrlOption) Configure(serverOptions *ServerOptions) {
	serverOptions.NatsUrl = o.value
}

// GrpcPort specifies the port the healthcheck is listening on.
func GrpcPort(port int) grpcPortOption { //nolint
	return grpcPortOption{value: port}
}

type grpcPortOption struct{ value int }

func (o grpcPortOption) Configure(serverOptions *ServerOptions) {
	serverOptions.GrpcPort = o.value
}

// WithNoHealthServer disables the gRPC health endpoint.
func WithNoHealthServer() noHealthServerOption { //nolint
	return noHealthServerOption{}
}

type noHealthServerOption struct{}

func (o noHealthServerOption) Configure(serverOptions *ServerOptions) {
	serverOptions.HealthServiceEnabled = false
}

// EphemeralStorage specifies a memory-based storage policy for the NATS backend.
func EphemeralStorage() ephemeralStorageOption { //nolint
	return ephemeralStorageOption{}
}

type ephemeralStorageOption struct{}

func (o ephemeralStorageOption) Configure(serverOptions *ServerOptions) {
	serverOptions.EphemeralStorage = true
}

// WithTelemetryEndpoint configures trace export.  Pass "console" for stdout traces.
func WithTelemetryEndpoint(endpoint string) telemetryEndpointOption { //nolint
	return telemetryEndpointOption{endpoint: endpoint}
}

type telemetryEndpointOption struct{ endpoint string }

func (o telemetryEndpointOption) Configure(serverOptions *ServerOptions) {
	serverOptions.TelemetryConfig = telemetry.Config{Enabled: o.endpoint != "", Endpoint: o.endpoint}
}

// WithNoSplash suppresses the startup banner and configuration table.
func WithNoSplash() noSplashOption { //nolint
	return noSplashOption{}
}

type noSplashOption struct{}

func (o noSplashOption) Configure(serverOptions *ServerOptions) {
	serverOptions.ShowSplash = false
}

// WithJetStreamDomain specifies a JetStream domain for the NATS connection.
func WithJetStreamDomain(domain string) jetStreamDomainOption { //nolint
	return jetStreamDomainOption{value: domain}
}

type jetStreamDomainOption struct{ value string }

func (o jetStreamDomainOption) Configure(serverOptions *ServerOptions) {
	serverOptions.JetStreamDomain = o.value
}

// WithNatsConnOptions specifies additional options for the server's NATS connections.
func WithNatsConnOptions(opts ...nats.Option) natsConnOptionsOption { //nolint
	return natsConnOptionsOption{value: opts}
}

type natsConnOptionsOption struct{ value []nats.Option }

func (o natsConnOptionsOption) Configure(serverOptions *ServerOptions) {
	serverOptions.NatsConnOptions = o.value
}
