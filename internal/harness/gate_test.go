package harness

import (
	"context"
	"testing"

	"github.com/tinyagi/tinyagi/internal/store"
)

type fakePermissions struct {
	active  map[string]*store.Permission
	pending []*store.Permission
}

func newFakePermissions() *fakePermissions {
	return &fakePermissions{active: map[string]*store.Permission{}}
}

func (f *fakePermissions) GetActivePermission(ctx context.Context, userID, subject, action string) (*store.Permission, error) {
	return f.active[userID+"|"+subject+"|"+action], nil
}

func (f *fakePermissions) CreatePendingPermission(ctx context.Context, p *store.Permission) error {
	f.pending = append(f.pending, p)
	return nil
}

func (f *fakePermissions) DecidePermission(ctx context.Context, requestID string, approve bool) error {
	return nil
}

func (f *fakePermissions) ListPermissions(ctx context.Context, userID string) ([]*store.Permission, error) {
	return nil, nil
}

func (f *fakePermissions) GrantPermission(ctx context.Context, p *store.Permission) error {
	return nil
}

func (f *fakePermissions) RevokePermission(ctx context.Context, permissionID string) error {
	return nil
}

func TestGateBrowserRouteAlwaysBypasses(t *testing.T) {
	g := NewGate(newFakePermissions(), true)
	d, err := g.Decide(context.Background(), "run1", "user1", "output", store.RouteBrowser, store.RiskCritical)
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if !d.Allow || d.RequiresApproval {
		t.Errorf("Decide(browser, critical) = %+v, want Allow=true RequiresApproval=false", d)
	}
}

func TestGateDisabledAllowsEverything(t *testing.T) {
	g := NewGate(newFakePermissions(), false)
	d, err := g.Decide(context.Background(), "run1", "user1", "output", store.RouteAgent, store.RiskCritical)
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if !d.Allow {
		t.Errorf("Decide(disabled gate) = %+v, want Allow=true", d)
	}
}

func TestGateEnabledAllowsNonCriticalRisk(t *testing.T) {
	g := NewGate(newFakePermissions(), true)
	d, err := g.Decide(context.Background(), "run1", "user1", "output", store.RouteAgent, store.RiskHigh)
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if !d.Allow {
		t.Errorf("Decide(enabled, high risk) = %+v, want Allow=true", d)
	}
}

func TestGateEnabledRequiresApprovalForCriticalRisk(t *testing.T) {
	repo := newFakePermissions()
	g := NewGate(repo, true)
	d, err := g.Decide(context.Background(), "run1", "user1", "output", store.RouteAgent, store.RiskCritical)
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if d.Allow || !d.RequiresApproval || d.RequestID == "" {
		t.Errorf("Decide(enabled, critical risk) = %+v, want Allow=false RequiresApproval=true with a RequestID", d)
	}
	if len(repo.pending) != 1 {
		t.Fatalf("expected exactly one pending permission row, got %d", len(repo.pending))
	}
	if repo.pending[0].RequestID != d.RequestID {
		t.Errorf("pending permission RequestID = %q, want %q", repo.pending[0].RequestID, d.RequestID)
	}
}
