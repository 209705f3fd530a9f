package grpc

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/taskauth/internal/logging"
	"github.com/dmitrijs2005/taskauth/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func incoming(kv ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(kv...))
}

func TestTokenFromMetadata(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"no metadata", context.Background(), ""},
		{"no key", incoming("x-other", "v"), ""},
		{"bearer", incoming("authorization", "Bearer abc"), "abc"},
		{"lower bearer", incoming("authorization", "bearer abc"), "abc"},
		{"bare token", incoming("authorization", "abc"), "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tokenFromMetadata(tt.ctx); got != tt.want {
				t.Fatalf("tokenFromMetadata = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInterceptor_PublicMethodsSkipAuth(t *testing.T) {
	s := NewServer("", newFake(), logging.NewNop())

	for _, m := range []string{MethodLogin, MethodPing} {
		called := false
		h := func(ctx context.Context, req any) (any, error) {
			called = true
			return "ok", nil
		}
		resp, err := s.accessTokenInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: m}, h)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", m, err)
		}
		if !called || resp != "ok" {
			t.Fatalf("%s: handler not called", m)
		}
	}
}

func TestInterceptor_StoresPrincipal(t *testing.T) {
	s := NewServer("", newFake(), logging.NewNop())

	var got services.Principal
	h := func(ctx context.Context, req any) (any, error) {
		got, _ = services.PrincipalFromContext(ctx)
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(incoming("authorization", "Bearer good"), nil, &grpc.UnaryServerInfo{FullMethod: MethodStatus}, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "u1" || got.Token != "good" {
		t.Fatalf("unexpected principal: %+v", got)
	}
}

func TestInterceptor_RejectsUnknownToken(t *testing.T) {
	s := NewServer("", newFake(), logging.NewNop())

	h := func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	_, err := s.accessTokenInterceptor(incoming("authorization", "Bearer bad"), nil, &grpc.UnaryServerInfo{FullMethod: MethodLogoutAll}, h)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}
