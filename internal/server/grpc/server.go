// Package grpc exposes login, the bearer-token contract and the admin
// operations over gRPC using a JSON codec.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/taskauth/internal/cryptox"
	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/models"
	"github.com/dmitrijs2005/taskauth/internal/server/services"
	"google.golang.org/grpc"
)

// AuthService is the part of *services.AuthService served over gRPC.
type AuthService interface {
	Login(ctx context.Context, sealed cryptox.Sealed, ci services.ClientInfo) (*services.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*services.Principal, error)
	Logout(ctx context.Context, token string) (bool, error)
	LogoutAll(ctx context.Context, p services.Principal) (int, error)
	Register(ctx context.Context, p services.Principal, sealed cryptox.Sealed) (*models.Account, error)
	Unlock(ctx context.Context, p services.Principal, username string) error
	ExposeAttemptsRemaining() bool
}

type Server struct {
	address string
	svc     AuthService
	logger  logging.Logger
}

func NewServer(address string, svc AuthService, l logging.Logger) *Server {
	return &Server{
		address: address,
		svc:     svc,
		logger:  l.With("module", "grpc_server"),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on l until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	srv.RegisterService(&ServiceDesc, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", l.Addr().String())

	if err := srv.Serve(l); err != nil {
		return err
	}
	return nil
}
