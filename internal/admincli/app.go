// Package admincli implements authctl, the operator command line for
// account administration. It talks to the database directly and acts as the
// system principal, so it needs no bearer token.
package admincli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/server/services"
)

// Operations are the service calls behind the commands.
type Operations interface {
	EnsureAdmin(ctx context.Context, username, password string) (bool, error)
	Unlock(ctx context.Context, p services.Principal, username string) error
	LogoutAccount(ctx context.Context, p services.Principal, username string) (int, error)
	SweepExpired(ctx context.Context) (int64, error)
}

type serviceOps struct {
	*services.AuthService
	sessions *services.SessionRegistry
}

func (o serviceOps) SweepExpired(ctx context.Context) (int64, error) {
	return o.sessions.SweepExpired(ctx)
}

// FromServices adapts the server services to Operations.
func FromServices(auth *services.AuthService, sessions *services.SessionRegistry) Operations {
	return serviceOps{AuthService: auth, sessions: sessions}
}

// ErrUsage is returned for unknown commands or missing arguments.
var ErrUsage = errors.New("usage error")

const usage = `usage: authctl <command> [args]

commands:
  create-admin [username]   create an admin account (password is prompted)
  unlock <username>         clear every lockout of an account
  logout-all <username>     deactivate every session of an account
  sweep                     deactivate expired sessions
  help                      show this message
`

type App struct {
	ops       Operations
	reader    *bufio.Reader
	out       io.Writer
	principal services.Principal
}

func NewApp(ops Operations, in io.Reader, out io.Writer) *App {
	return &App{
		ops:       ops,
		reader:    bufio.NewReader(in),
		out:       out,
		principal: services.SystemPrincipal("authctl"),
	}
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create-admin":
		return a.createAdmin(ctx, rest)
	case "unlock":
		return a.withUsername(rest, func(username string) error {
			if err := a.ops.Unlock(ctx, a.principal, username); err != nil {
				return describe(err, username)
			}
			fmt.Fprintf(a.out, "account %s unlocked\n", username)
			return nil
		})
	case "logout-all":
		return a.withUsername(rest, func(username string) error {
			n, err := a.ops.LogoutAccount(ctx, a.principal, username)
			if err != nil {
				return describe(err, username)
			}
			fmt.Fprintf(a.out, "%d session(s) of %s deactivated\n", n, username)
			return nil
		})
	case "sweep":
		n, err := a.ops.SweepExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%d expired session(s) deactivated\n", n)
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprintf(a.out, "unknown command %q\n\n%s", cmd, usage)
		return ErrUsage
	}
}

func (a *App) withUsername(args []string, fn func(string) error) error {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}
	return fn(args[0])
}

func (a *App) createAdmin(ctx context.Context, args []string) error {
	var username string
	switch len(args) {
	case 0:
		u, err := GetSimpleText(a.reader, "Admin username", a.out)
		if err != nil {
			return err
		}
		username = u
	case 1:
		username = args[0]
	default:
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	pw, err := GetPassword("Enter password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	confirm, err := GetPassword("Repeat password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(pw, confirm) {
		return errors.New("passwords do not match")
	}

	created, err := a.ops.EnsureAdmin(ctx, username, string(pw))
	if err != nil {
		return describe(err, username)
	}
	if created {
		fmt.Fprintf(a.out, "admin %s created\n", username)
	} else {
		fmt.Fprintf(a.out, "account %s already exists, nothing changed\n", username)
	}
	return nil
}

// describe rewrites expected service errors as operator-facing messages.
func describe(err error, username string) error {
	switch {
	case errors.Is(err, common.ErrUnknownAccount):
		return fmt.Errorf("no account named %q", username)
	case errors.Is(err, common.ErrIncompleteCredentials):
		return errors.New("username and password must not be blank")
	default:
		return err
	}
}
