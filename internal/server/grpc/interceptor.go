package grpc

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// authorizationKey is the metadata key of the bearer token. gRPC metadata
// keys are lower case.
var authorizationKey = strings.ToLower(common.AuthorizationHeaderName)

// publicMethods are served without a token.
var publicMethods = map[string]bool{
	MethodLogin: true,
	MethodPing:  true,
}

// adminMethods additionally require the admin role.
var adminMethods = map[string]bool{
	MethodRegister: true,
	MethodUnlock:   true,
}

func tokenFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(authorizationKey)
	if len(values) == 0 {
		return ""
	}
	v := values[0]
	if len(v) >= len(common.BearerPrefix) && strings.EqualFold(v[:len(common.BearerPrefix)], common.BearerPrefix) {
		v = v[len(common.BearerPrefix):]
	}
	return strings.TrimSpace(v)
}

func (s *Server) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if publicMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	token := tokenFromMetadata(ctx)
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing bearer token")
	}

	p, err := s.svc.Authenticate(ctx, token)
	if err != nil {
		s.logger.Info(ctx, "token rejected", "reason", err, "method", info.FullMethod)
		return nil, toStatus(err, false)
	}

	if adminMethods[info.FullMethod] && !p.IsAdmin() {
		s.logger.Info(ctx, "admin method refused", "method", info.FullMethod, "account_id", p.ID)
		return nil, toStatus(common.ErrPermissionDenied, false)
	}

	return handler(services.WithPrincipal(ctx, *p), req)
}
