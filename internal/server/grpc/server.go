// Package grpc serves the auth pipeline to gRPC clients. The standard health
// service is always registered; the account API and any other service are
// added through Deps.Register and protected by the method rule table.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	healthWatchMethod = "/grpc.health.v1.Health/Watch"
	healthListMethod  = "/grpc.health.v1.Health/List"
)

type Deps struct {
	Validator *auth.Validator
	// Rules overrides the rule of individual methods. Methods not listed
	// fall back to Fallback.
	Rules    map[string]MethodRule
	Fallback MethodRule
	Scope    *dbx.Scope
	Metrics  *metrics.Metrics
	Logger   logging.Logger
	Register func(*grpc.Server)
}

type GRPCServer struct {
	address   string
	validator *auth.Validator
	rules     map[string]MethodRule
	fallback  MethodRule
	scope     *dbx.Scope
	metrics   *metrics.Metrics
	logger    logging.Logger
	health    *health.Server
	srv       *grpc.Server
}

// DefaultRules makes the health service public.
func DefaultRules() map[string]MethodRule {
	return map[string]MethodRule{
		healthCheckMethod: {Public: true},
		healthWatchMethod: {Public: true},
		healthListMethod:  {Public: true},
	}
}

func NewGRPCServer(a string, d Deps) *GRPCServer {
	rules := DefaultRules()
	for m, r := range d.Rules {
		rules[m] = r
	}

	s := &GRPCServer{
		address:   a,
		validator: d.Validator,
		rules:     rules,
		fallback:  d.Fallback,
		scope:     d.Scope,
		metrics:   d.Metrics,
		logger:    d.Logger.With("module", "grpc_server"),
		health:    health.NewServer(),
	}

	s.srv = grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.unaryInterceptor),
		grpc.ChainStreamInterceptor(s.streamInterceptor),
	)
	healthpb.RegisterHealthServer(s.srv, s.health)
	if d.Register != nil {
		d.Register(s.srv)
	}

	return s
}

// Serve accepts connections on listen until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		s.health.Shutdown()
		s.srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	return s.srv.Serve(listen)
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}
