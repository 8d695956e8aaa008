package transport

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/adamgarcia4/goLearning/gateway/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPC serves the standard gRPC health service for a gateway. The named
// service reports SERVING while at least one worker is live.
type GRPC struct {
	addr    string
	service string
	srv     *grpc.Server
	health  *health.Server
	lis     net.Listener
}

func (g *GRPC) setupTcp() (net.Listener, error) {
	lis, err := net.Listen("tcp", g.addr)

	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	return lis, nil
}

func (g *GRPC) setupServices() {
	healthpb.RegisterHealthServer(g.srv, g.health)
	g.health.SetServingStatus(g.service, healthpb.HealthCheckResponse_NOT_SERVING)
}

// Listen binds the admin port and registers the services. Call Serve afterwards.
func (g *GRPC) Listen() error {
	if lis, err := g.setupTcp(); err != nil {
		return fmt.Errorf("failed to setup TCP: %w", err)
	} else {
		g.lis = lis
	}

	g.setupServices()

	// Register reflection service for gRPC tools (grpcurl, grpcui, etc.)
	reflection.Register(g.srv)
	return nil
}

// Serve blocks until Stop is called
func (g *GRPC) Serve() error {
	if g.lis == nil {
		return errors.New("grpc admin: Listen not called")
	}
	err := g.srv.Serve(g.lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// SetServing flips the gateway service between SERVING and NOT_SERVING.
func (g *GRPC) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(g.service, status)
}

// Addr returns the bound address, nil before Listen
func (g *GRPC) Addr() net.Addr {
	if g.lis == nil {
		return nil
	}
	return g.lis.Addr()
}

// Stop shuts the server down; in-flight health checks are allowed to finish.
func (g *GRPC) Stop() {
	g.health.Shutdown()
	g.srv.GracefulStop()
	logger.Printf("[admin] grpc health server on %s stopped", g.addr)
}

func NewGRPC(addr string, service string) (*GRPC, error) {
	if addr == "" || !strings.Contains(addr, ":") {
		return nil, fmt.Errorf("invalid address: %s", addr)
	}

	if service == "" {
		return nil, fmt.Errorf("service name must be provided")
	}

	return &GRPC{
		addr:    addr,
		srv:     grpc.NewServer(),
		health:  health.NewServer(),
		service: service,
	}, nil
}
