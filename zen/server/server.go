// Package server starts throwaway in-process NATS and GRCFlow servers for
// integration tests.
package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	grcsvr "gitlab.com/grcflow/grcflow/server/server"
	"gitlab.com/grcflow/grcflow/server/server/option"
)

type zenOpts struct {
	serverOptions []option.Option
}

// ZenOptionApplyFn represents a zen server configuration function.
type ZenOptionApplyFn func(cfg *zenOpts)

// WithServerOptions passes additional options to the in-process GRCFlow server.
func WithServerOptions(options ...option.Option) ZenOptionApplyFn {
	return func(cfg *zenOpts) {
		cfg.serverOptions = append(cfg.serverOptions, options...)
	}
}

// Server is a general interface representing a test server lifecycle.
// Both servers returned by GetServers are already listening.
type Server interface {
	Shutdown()
}

// GetServers returns a started in-process GRCFlow server and NATS server pair.
func GetServers(natsHost string, natsPort int, options ...ZenOptionApplyFn) (Server, *NatsServer, error) {
	defaults := &zenOpts{}
	for _, i := range options {
		i(defaults)
	}

	nsvr := &NatsServer{}
	nsvr.Listen(natsHost, natsPort)

	ssvr := inProcessServer(nsvr.ClientURL(), defaults.serverOptions)
	return ssvr, nsvr, nil
}

func inProcessServer(natsURL string, extra []option.Option) *grcsvr.Server {
	options := []option.Option{
		option.EphemeralStorage(),
		option.PanicRecovery(false),
		option.WithNoHealthServer(),
		option.WithNoSplash(),
		option.NatsUrl(natsURL),
	}
	options = append(options, extra...)

	ssvr := grcsvr.New(options...)
	go func() {
		if err := ssvr.Listen(); err != nil {
			panic(err)
		}
	}()
	for {
		if ssvr.Ready() {
			break
		}
		slog.Info("waiting for grcflow")
		time.Sleep(500 * time.Millisecond)
	}
	return ssvr
}

// NatsServer is a wrapper around the nats lib server so its lifecycle can be
// driven through the Server interface.
type NatsServer struct {
	nsvr *server.Server
}

// Listen starts an in-process nats server with JetStream enabled.
func (natserver *NatsServer) Listen(natsHost string, natsPort int) {
	natsOptions := &server.Options{
		Host:      natsHost,
		Port:      natsPort,
		JetStream: true,
	}
	nsvr, err := server.NewServer(natsOptions)
	if err != nil {
		panic(fmt.Errorf("create a new server instance: %w", err))
	}

	go nsvr.Start()
	if !nsvr.ReadyForConnections(5 * time.Second) {
		panic("start NATS")
	}
	slog.Info("NATS started")

	natserver.nsvr = nsvr
}

// ClientURL returns the connection URL of the running nats server.
func (natserver *NatsServer) ClientURL() string {
	return natserver.nsvr.ClientURL()
}

// Shutdown shuts down the in-process nats server.
func (natserver *NatsServer) Shutdown() {
	natserver.nsvr.Shutdown()
	natserver.nsvr.WaitForShutdown()
}
