// Package health exposes the server's serving state over the gRPC health protocol.
package health

import (
	"context"
	"sync"

	"google.golang.org/grpc/health/grpc_health_v1"
)

// Checker implements the gRPC health checking protocol around a mutable serving status.
type Checker struct {
	grpc_health_v1.UnimplementedHealthServer
	mx     sync.Mutex
	status grpc_health_v1.HealthCheckResponse_ServingStatus
}

// New creates a health checker in the NOT_SERVING state.
func New() *Checker {
	return &Checker{status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}
}

// Check reports the current serving status.
func (c *Checker) Check(_ context.Context, _ *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	return &grpc_health_v1.HealthCheckResponse{Status: c.GetStatus()}, nil
}

// Watch sends the current serving status once.
func (c *Checker) Watch(_ *grpc_health_v1.HealthCheckRequest, server grpc_health_v1.Health_WatchServer) error {
	return server.Send(&grpc_health_v1.HealthCheckResponse{Status: c.GetStatus()}) //nolint:wrapcheck
}

// SetStatus updates the serving status.
func (c *Checker) SetStatus(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	c.mx.Lock()
	defer c.mx.Unlock()
	c.status = status
}

// GetStatus returns the serving status.
func (c *Checker) GetStatus() grpc_health_v1.HealthCheckResponse_ServingStatus {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.status
}
