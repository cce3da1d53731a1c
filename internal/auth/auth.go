// Package auth defines the external authorization collaborator. The
// delivery core only needs one capability, "does principal P have role >= R
// on channel C", and always reaches it through the resilience guard, so a
// production implementation backed by a remote service plugs in behind the
// same interface.
package auth

import (
	"context"
	"errors"

	"github.com/beamhq/beam/internal/config"
)

// ErrDenied reports a principal lacking the required channel role. It is
// never retried and surfaces to the caller immediately.
var ErrDenied = errors.New("authorization denied")

// Role orders channel capabilities.
type Role int

// Roles, weakest first.
const (
	RoleViewer Role = iota
	RoleEditor
	RoleAdmin
)

// ParseRole maps a config role name to a Role; unknown names are viewers.
func ParseRole(s string) Role {
	switch s {
	case "admin":
		return RoleAdmin
	case "editor":
		return RoleEditor
	default:
		return RoleViewer
	}
}

// Authorizer answers channel-membership questions for a principal.
type Authorizer interface {
	// Authorize returns nil when the principal holds at least role on the
	// channel, ErrDenied otherwise.
	Authorize(ctx context.Context, principal, channelKey string, role Role) error
}

// AllowAll admits everything. Development only.
type AllowAll struct{}

// Authorize always succeeds.
func (AllowAll) Authorize(ctx context.Context, principal, channelKey string, role Role) error {
	return nil
}

// StaticTokens authorizes from a token grant table in the config file. The
// principal here is the bearer token itself.
type StaticTokens struct {
	grants map[string]config.TokenGrant
}

// NewStaticTokens builds the table from config.
func NewStaticTokens(tokens map[string]config.TokenGrant) *StaticTokens {
	return &StaticTokens{grants: tokens}
}

// Authorize checks the token's grant against the channel and role.
func (s *StaticTokens) Authorize(ctx context.Context, principal, channelKey string, role Role) error {
	g, ok := s.grants[principal]
	if !ok {
		return ErrDenied
	}
	if ParseRole(g.Role) < role {
		return ErrDenied
	}
	for _, ch := range g.Channels {
		if ch == channelKey || ch == "*" {
			return nil
		}
	}
	return ErrDenied
}

// FromConfig selects the Authorizer for the configured mode.
func FromConfig(cfg config.AuthConfig) Authorizer {
	if cfg.Mode == "static" {
		return NewStaticTokens(cfg.Tokens)
	}
	return AllowAll{}
}
