package services

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/taskauth/internal/common"
)

// LoginRequest is the decrypted login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate requires a username and password that are not blank.
func (r *LoginRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" || strings.TrimSpace(r.Password) == "" {
		return common.ErrIncompleteCredentials
	}
	return nil
}

// Identifier is the normalised login name: trimmed and lower-cased.
func (r *LoginRequest) Identifier() string {
	return NormalizeUsername(r.Username)
}

// RegisterRequest is the decrypted payload of an admin creating an account.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// Role defaults to common.RoleUser.
	Role string `json:"role,omitempty"`
}

// Validate requires credentials and a known role, defaulting the role.
func (r *RegisterRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" || strings.TrimSpace(r.Password) == "" {
		return common.ErrIncompleteCredentials
	}
	switch r.Role {
	case "":
		r.Role = common.RoleUser
	case common.RoleAdmin, common.RoleUser:
	default:
		return fmt.Errorf("%w: unknown role %q", common.ErrMalformedRequest, r.Role)
	}
	return nil
}

// LoginResponse is the payload sealed back to the client on success.
type LoginResponse struct {
	Token    string `json:"token"`
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// NormalizeUsername trims and lower-cases a login name.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
