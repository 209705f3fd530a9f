package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/taskauth/internal/cryptox"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "taskauth.AuthService"

// Full method names.
const (
	MethodLogin     = "/" + ServiceName + "/Login"
	MethodStatus    = "/" + ServiceName + "/Status"
	MethodLogout    = "/" + ServiceName + "/Logout"
	MethodLogoutAll = "/" + ServiceName + "/LogoutAll"
	MethodPing      = "/" + ServiceName + "/Ping"
	MethodRegister  = "/" + ServiceName + "/Register"
	MethodUnlock    = "/" + ServiceName + "/Unlock"
)

type Empty struct{}

type StatusReply struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type LogoutReply struct {
	LoggedOut bool `json:"logged_out"`
}

type LogoutAllReply struct {
	Sessions int `json:"sessions"`
}

type PingReply struct {
	Status string `json:"status"`
}

type RegisterReply struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type UnlockRequest struct {
	Username string `json:"username"`
}

// AuthServiceServer is implemented by *Server.
type AuthServiceServer interface {
	Login(context.Context, *cryptox.Sealed) (*cryptox.Sealed, error)
	Status(context.Context, *Empty) (*StatusReply, error)
	Logout(context.Context, *Empty) (*LogoutReply, error)
	LogoutAll(context.Context, *Empty) (*LogoutAllReply, error)
	Ping(context.Context, *Empty) (*PingReply, error)
	Register(context.Context, *cryptox.Sealed) (*RegisterReply, error)
	Unlock(context.Context, *UnlockRequest) (*Empty, error)
}

func unaryHandler[Req, Resp any](method string, call func(AuthServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AuthServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AuthServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes taskauth.AuthService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: unaryHandler(MethodLogin, AuthServiceServer.Login)},
		{MethodName: "Status", Handler: unaryHandler(MethodStatus, AuthServiceServer.Status)},
		{MethodName: "Logout", Handler: unaryHandler(MethodLogout, AuthServiceServer.Logout)},
		{MethodName: "LogoutAll", Handler: unaryHandler(MethodLogoutAll, AuthServiceServer.LogoutAll)},
		{MethodName: "Ping", Handler: unaryHandler(MethodPing, AuthServiceServer.Ping)},
		{MethodName: "Register", Handler: unaryHandler(MethodRegister, AuthServiceServer.Register)},
		{MethodName: "Unlock", Handler: unaryHandler(MethodUnlock, AuthServiceServer.Unlock)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "taskauth/auth.json",
}
