package harness

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tinyagi/tinyagi/internal/store"
)

// GateDecision is the publish gate's response (spec §4.G).
type GateDecision struct {
	Allow            bool
	RequiresApproval bool
	RequestID        string
	Reason           string
}

// Gate receives (runId, userId, outputText, route, risk) and decides
// whether the run's output may be published. The production policy
// allows everything (spec §4.G: "gate currently disabled"); the
// contract still supports inserting a pending approval request so a
// future policy can gate on it without an interface change. Route
// "browser" always bypasses the gate because the browser executor has
// its own per-action approval (spec §4.G).
type Gate struct {
	repo    store.Permissions
	enabled bool
}

// NewGate builds a Gate. enabled mirrors spec §4.G's policy toggle;
// production sets it false.
func NewGate(repo store.Permissions, enabled bool) *Gate {
	return &Gate{repo: repo, enabled: enabled}
}

// Decide evaluates the gate for one run.
func (g *Gate) Decide(ctx context.Context, runID, userID, outputText string, route store.Route, risk store.RiskLevel) (GateDecision, error) {
	if route == store.RouteBrowser {
		return GateDecision{Allow: true, Reason: "browser route has its own per-action approval"}, nil
	}

	if !g.enabled {
		return GateDecision{Allow: true, Reason: "publish gate disabled"}, nil
	}

	if risk != store.RiskCritical {
		return GateDecision{Allow: true}, nil
	}

	requestID := uuid.NewString()
	if err := g.repo.CreatePendingPermission(ctx, &store.Permission{
		PermissionID: uuid.NewString(),
		UserID:       userID,
		Subject:      "publish:" + runID,
		Action:       "publish",
		Status:       store.PermissionPending,
		RequestID:    requestID,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}); err != nil {
		return GateDecision{}, err
	}

	return GateDecision{Allow: false, RequiresApproval: true, RequestID: requestID, Reason: "critical-risk output requires approval"}, nil
}
