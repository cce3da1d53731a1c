package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/beamhq/beam/internal/auth"
	cfgpkg "github.com/beamhq/beam/internal/config"
)

func TestOpenWiresDefaults(t *testing.T) {
	rt, err := Open(Options{Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if rt.Store() == nil || rt.Guard() == nil || rt.Metrics() == nil {
		t.Fatalf("runtime missing pieces")
	}
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

type denyAll struct{}

func (denyAll) Authorize(ctx context.Context, principal, channelKey string, role auth.Role) error {
	return auth.ErrDenied
}

func TestAuthorizeSurfacesDenial(t *testing.T) {
	rt, err := Open(Options{Config: cfgpkg.Default(), Authorizer: denyAll{}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	err = rt.Authorize(context.Background(), "p", "team-42", auth.RoleEditor)
	if !errors.Is(err, auth.ErrDenied) {
		t.Fatalf("want ErrDenied, got %v", err)
	}
}

func TestAuthorizeCachesGrants(t *testing.T) {
	calls := 0
	rt, err := Open(Options{Config: cfgpkg.Default(), Authorizer: countingAuthorizer{&calls}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := rt.Authorize(ctx, "p", "team-42", auth.RoleViewer); err != nil {
			t.Fatalf("authorize %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Fatalf("grant should be served from the guard cache, calls=%d", calls)
	}
}

type countingAuthorizer struct{ n *int }

func (c countingAuthorizer) Authorize(ctx context.Context, principal, channelKey string, role auth.Role) error {
	*c.n++
	return nil
}
