package admincli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dmitrijs2005/taskauth/internal/common"
	"github.com/dmitrijs2005/taskauth/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOps struct {
	accounts map[string]bool

	gotPassword  string
	gotPrincipal services.Principal
	unlocked     []string
	sessions     int
	swept        int64
	err          error
}

func (f *fakeOps) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.gotPassword = password
	if f.accounts[username] {
		return false, nil
	}
	f.accounts[username] = true
	return true, nil
}

func (f *fakeOps) Unlock(ctx context.Context, p services.Principal, username string) error {
	f.gotPrincipal = p
	if f.err != nil {
		return f.err
	}
	if !f.accounts[username] {
		return common.ErrUnknownAccount
	}
	f.unlocked = append(f.unlocked, username)
	return nil
}

func (f *fakeOps) LogoutAccount(ctx context.Context, p services.Principal, username string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if !f.accounts[username] {
		return 0, common.ErrUnknownAccount
	}
	return f.sessions, nil
}

func (f *fakeOps) SweepExpired(ctx context.Context) (int64, error) {
	return f.swept, f.err
}

func newFakeOps() *fakeOps {
	return &fakeOps{accounts: map[string]bool{"bob": true}}
}

// stubPasswords feeds the given answers to successive password prompts.
func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })

	i := 0
	readPassword = func(int) ([]byte, error) {
		if i >= len(answers) {
			return nil, errors.New("no more input")
		}
		i++
		return []byte(answers[i-1]), nil
	}
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	app := NewApp(newFakeOps(), strings.NewReader(""), &out)

	assert.ErrorIs(t, app.Run(context.Background(), nil), ErrUsage)
	assert.Contains(t, out.String(), "usage: authctl")

	out.Reset()
	assert.ErrorIs(t, app.Run(context.Background(), []string{"frobnicate"}), ErrUsage)
	assert.Contains(t, out.String(), `unknown command "frobnicate"`)

	assert.ErrorIs(t, app.Run(context.Background(), []string{"unlock"}), ErrUsage)
	assert.NoError(t, app.Run(context.Background(), []string{"help"}))
}

func TestCreateAdmin(t *testing.T) {
	stubPasswords(t, "s3cret", "s3cret")
	ops := newFakeOps()
	var out bytes.Buffer
	app := NewApp(ops, strings.NewReader("root\n"), &out)

	require.NoError(t, app.Run(context.Background(), []string{"create-admin"}))
	assert.True(t, ops.accounts["root"])
	assert.Equal(t, "s3cret", ops.gotPassword)
	assert.Contains(t, out.String(), "admin root created")
}

func TestCreateAdmin_Existing(t *testing.T) {
	stubPasswords(t, "pw", "pw")
	var out bytes.Buffer
	app := NewApp(newFakeOps(), strings.NewReader(""), &out)

	require.NoError(t, app.Run(context.Background(), []string{"create-admin", "bob"}))
	assert.Contains(t, out.String(), "already exists")
}

func TestCreateAdmin_PasswordMismatch(t *testing.T) {
	stubPasswords(t, "one", "two")
	ops := newFakeOps()
	app := NewApp(ops, strings.NewReader(""), &bytes.Buffer{})

	err := app.Run(context.Background(), []string{"create-admin", "root"})
	assert.EqualError(t, err, "passwords do not match")
	assert.False(t, ops.accounts["root"])
}

func TestCreateAdmin_BlankPassword(t *testing.T) {
	stubPasswords(t, "", "")
	ops := newFakeOps()
	ops.err = common.ErrIncompleteCredentials
	app := NewApp(ops, strings.NewReader(""), &bytes.Buffer{})

	err := app.Run(context.Background(), []string{"create-admin", "root"})
	assert.EqualError(t, err, "username and password must not be blank")
}

func TestUnlock(t *testing.T) {
	ops := newFakeOps()
	var out bytes.Buffer
	app := NewApp(ops, strings.NewReader(""), &out)

	require.NoError(t, app.Run(context.Background(), []string{"unlock", "bob"}))
	assert.Equal(t, []string{"bob"}, ops.unlocked)
	assert.True(t, ops.gotPrincipal.IsAdmin())
	assert.Contains(t, out.String(), "account bob unlocked")

	err := app.Run(context.Background(), []string{"unlock", "ghost"})
	assert.EqualError(t, err, `no account named "ghost"`)
}

func TestLogoutAll(t *testing.T) {
	ops := newFakeOps()
	ops.sessions = 4
	var out bytes.Buffer
	app := NewApp(ops, strings.NewReader(""), &out)

	require.NoError(t, app.Run(context.Background(), []string{"logout-all", "bob"}))
	assert.Contains(t, out.String(), "4 session(s) of bob deactivated")
}

func TestSweep(t *testing.T) {
	ops := newFakeOps()
	ops.swept = 7
	var out bytes.Buffer
	app := NewApp(ops, strings.NewReader(""), &out)

	require.NoError(t, app.Run(context.Background(), []string{"sweep"}))
	assert.Contains(t, out.String(), "7 expired session(s) deactivated")

	ops.err = fmt.Errorf("%w: down", common.ErrStorage)
	assert.ErrorIs(t, app.Run(context.Background(), []string{"sweep"}), common.ErrStorage)
}
