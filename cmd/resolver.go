package cmd

import (
	"fmt"

	"github.com/tinyagi/tinyagi/internal/config"
	"github.com/tinyagi/tinyagi/internal/router"
	"github.com/tinyagi/tinyagi/internal/store"
)

// agentResolver implements harness.AgentResolver and scheduler.Directory
// over the statically configured config.Agents map. Browser runs go to
// the first agent whose AgentSpec.UseClaudeChromeOverride is set; that
// field is not read from settings.json (json:"-"), and the
// harness.browser.use_claude_chrome setting is not consulted here, so a
// loaded config never triggers the override.
type agentResolver struct {
	cfg *config.Config
}

func newAgentResolver(cfg *config.Config) *agentResolver {
	return &agentResolver{cfg: cfg}
}

func (r *agentResolver) ResolveAgent(agentIDHint string, route store.Route) (agentID, family, binary, model, fallbackModel, workspace string, err error) {
	r.cfg.RLock()
	defer r.cfg.RUnlock()

	id := agentIDHint
	if id == "" {
		id = "default"
	}

	if route == store.RouteBrowser {
		for aid, spec := range r.cfg.Agents {
			if spec.UseClaudeChromeOverride {
				id = aid
				break
			}
		}
	}

	spec, ok := r.cfg.Agents[id]
	if !ok {
		spec, ok = r.cfg.Agents["default"]
		id = "default"
		if !ok {
			return "", "", "", "", "", "", fmt.Errorf("resolver: no agent configured (not even 'default')")
		}
	}
	return id, spec.Family, spec.Binary, spec.Model, spec.FallbackModel, spec.Workspace, nil
}

func (r *agentResolver) IsAgent(id string) bool {
	r.cfg.RLock()
	defer r.cfg.RUnlock()
	_, ok := r.cfg.Agents[id]
	return ok
}

func (r *agentResolver) IsTeam(id string) bool {
	r.cfg.RLock()
	defer r.cfg.RUnlock()
	for _, spec := range r.cfg.Agents {
		if spec.TeamID == id {
			return true
		}
	}
	return false
}

func (r *agentResolver) TeamLeader(teamID string) string {
	r.cfg.RLock()
	defer r.cfg.RUnlock()
	for aid, spec := range r.cfg.Agents {
		if spec.TeamID == teamID && spec.IsTeamLeader {
			return aid
		}
	}
	return ""
}

func (r *agentResolver) TeamFor(agentID string) (router.Team, bool) {
	r.cfg.RLock()
	defer r.cfg.RUnlock()
	spec, ok := r.cfg.Agents[agentID]
	if !ok || spec.TeamID == "" {
		return router.Team{}, false
	}
	team := router.Team{ID: spec.TeamID}
	for aid, s := range r.cfg.Agents {
		if s.TeamID != spec.TeamID {
			continue
		}
		if s.IsTeamLeader {
			team.Leader = aid
		} else {
			team.Members = append(team.Members, aid)
		}
	}
	return team, true
}

func (r *agentResolver) DefaultAgent() string {
	r.cfg.RLock()
	defer r.cfg.RUnlock()
	if _, ok := r.cfg.Agents["default"]; ok {
		return "default"
	}
	for aid := range r.cfg.Agents {
		return aid
	}
	return "default"
}
