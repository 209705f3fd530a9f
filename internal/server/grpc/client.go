package grpc

import (
	"context"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/cryptox"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Client calls taskauth.AuthService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithToken returns a context whose outgoing metadata carries token as a
// bearer credential, replacing any earlier one.
func WithToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(authorizationKey, common.BearerPrefix+token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, method, in, out, grpc.CallContentSubtype(CodecName))
}

func (c *Client) Login(ctx context.Context, sealed cryptox.Sealed) (cryptox.Sealed, error) {
	var out cryptox.Sealed
	err := c.invoke(ctx, MethodLogin, &sealed, &out)
	return out, err
}

func (c *Client) Status(ctx context.Context) (*StatusReply, error) {
	out := new(StatusReply)
	if err := c.invoke(ctx, MethodStatus, &Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Logout(ctx context.Context) (bool, error) {
	var out LogoutReply
	err := c.invoke(ctx, MethodLogout, &Empty{}, &out)
	return out.LoggedOut, err
}

func (c *Client) LogoutAll(ctx context.Context) (int, error) {
	var out LogoutAllReply
	err := c.invoke(ctx, MethodLogoutAll, &Empty{}, &out)
	return out.Sessions, err
}

func (c *Client) Ping(ctx context.Context) error {
	return c.invoke(ctx, MethodPing, &Empty{}, &PingReply{})
}

func (c *Client) Register(ctx context.Context, sealed cryptox.Sealed) (*RegisterReply, error) {
	out := new(RegisterReply)
	if err := c.invoke(ctx, MethodRegister, &sealed, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Unlock(ctx context.Context, username string) error {
	return c.invoke(ctx, MethodUnlock, &UnlockRequest{Username: username}, &Empty{})
}
