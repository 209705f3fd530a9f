package grpc

import (
	"context"
	"errors"
	"net"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/cryptox"
	"github.com/dmitrijs2005/taskauth/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// toStatus converts a service error into a gRPC status carrying the public
// message only.
func toStatus(err error, exposeAttempts bool) error {
	msg := services.PublicMessage(err, exposeAttempts)

	switch services.Classify(err) {
	case services.KindInvalid:
		return status.Error(codes.InvalidArgument, msg)
	case services.KindUnauthenticated:
		return status.Error(codes.Unauthenticated, msg)
	case services.KindLocked:
		return status.Error(codes.ResourceExhausted, msg)
	case services.KindForbidden:
		return status.Error(codes.PermissionDenied, msg)
	case services.KindConflict:
		return status.Error(codes.AlreadyExists, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}

func clientInfo(ctx context.Context) services.ClientInfo {
	var ci services.ClientInfo
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		ci.IPAddress = p.Addr.String()
		if host, _, err := net.SplitHostPort(ci.IPAddress); err == nil {
			ci.IPAddress = host
		}
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ua := md.Get("user-agent"); len(ua) > 0 {
			ci.UserAgent = ua[0]
		}
	}
	return ci
}

func (s *Server) Login(ctx context.Context, req *cryptox.Sealed) (*cryptox.Sealed, error) {
	res, err := s.svc.Login(ctx, *req, clientInfo(ctx))
	if err != nil {
		if services.Classify(err) == services.KindInternal {
			s.logger.Error(ctx, "login failed", "error", err)
		}
		return nil, toStatus(err, s.svc.ExposeAttemptsRemaining())
	}
	return &res.Sealed, nil
}

func (s *Server) Status(ctx context.Context, _ *Empty) (*StatusReply, error) {
	p, ok := services.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return &StatusReply{ID: p.ID, Username: p.Username, Role: p.Role, ExpiresAt: p.ExpiresAt}, nil
}

func (s *Server) Logout(ctx context.Context, _ *Empty) (*LogoutReply, error) {
	p, ok := services.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	changed, err := s.svc.Logout(ctx, p.Token)
	if err != nil {
		return nil, toStatus(err, false)
	}
	return &LogoutReply{LoggedOut: changed}, nil
}

func (s *Server) LogoutAll(ctx context.Context, _ *Empty) (*LogoutAllReply, error) {
	p, ok := services.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	n, err := s.svc.LogoutAll(ctx, p)
	if err != nil {
		s.logger.Error(ctx, "logout-all failed", "error", err)
		return nil, toStatus(err, false)
	}
	return &LogoutAllReply{Sessions: n}, nil
}

func (s *Server) Ping(ctx context.Context, _ *Empty) (*PingReply, error) {
	return &PingReply{Status: "OK"}, nil
}

func (s *Server) Register(ctx context.Context, req *cryptox.Sealed) (*RegisterReply, error) {
	p, ok := services.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	acc, err := s.svc.Register(ctx, p, *req)
	if err != nil {
		if services.Classify(err) == services.KindInternal {
			s.logger.Error(ctx, "register failed", "error", err)
		}
		return nil, toStatus(err, false)
	}
	return &RegisterReply{ID: acc.ID, Role: acc.Role}, nil
}

func (s *Server) Unlock(ctx context.Context, req *UnlockRequest) (*Empty, error) {
	p, ok := services.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}
	err := s.svc.Unlock(ctx, p, req.Username)
	switch {
	case err == nil:
		return &Empty{}, nil
	case errors.Is(err, common.ErrUnknownAccount):
		return nil, status.Error(codes.NotFound, "account not found")
	case errors.Is(err, common.ErrIncompleteCredentials):
		return nil, status.Error(codes.InvalidArgument, "username is required")
	default:
		if services.Classify(err) == services.KindInternal {
			s.logger.Error(ctx, "unlock failed", "error", err)
		}
		return nil, toStatus(err, false)
	}
}
