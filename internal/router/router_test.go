package router

import (
	"errors"
	"testing"
)

type fakeDirectory struct {
	agents map[string]bool
	teams  map[string]Team
}

func (f fakeDirectory) IsAgent(id string) bool { return f.agents[id] }
func (f fakeDirectory) IsTeam(id string) bool  { _, ok := f.teams[id]; return ok }
func (f fakeDirectory) TeamLeader(teamID string) string {
	return f.teams[teamID].Leader
}
func (f fakeDirectory) TeamFor(agentID string) (Team, bool) {
	for _, team := range f.teams {
		if team.Leader == agentID {
			return team, true
		}
		for _, m := range team.Members {
			if m == agentID {
				return team, true
			}
		}
	}
	return Team{}, false
}

func testDirectory() fakeDirectory {
	return fakeDirectory{
		agents: map[string]bool{"ada": true, "grace": true, "linus": true},
		teams: map[string]Team{
			"eng": {ID: "eng", Leader: "ada", Members: []string{"ada", "grace", "linus"}},
		},
	}
}

func TestRouteWithTeam(t *testing.T) {
	dir := testDirectory()

	tests := []struct {
		name      string
		message   string
		wantAgent string
		wantTeam  string
		wantErr   error
	}{
		{name: "no mention falls back to caller default", message: "what's the weather", wantAgent: "", wantTeam: ""},
		{name: "leading agent mention", message: "@ada ship the release", wantAgent: "ada", wantTeam: ""},
		{name: "leading team mention resolves to leader", message: "@eng look into this outage", wantAgent: "ada", wantTeam: "eng"},
		{name: "mention inside brackets is ignored", message: "do this [@grace: help out] please", wantAgent: "", wantTeam: ""},
		{name: "unknown mention is not routed", message: "@nobody please help", wantAgent: "", wantTeam: ""},
		{name: "ambiguous distinct mentions", message: "@ada and @grace please coordinate", wantErr: ErrAmbiguousMention},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent, team, err := RouteWithTeam(tt.message, dir)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("RouteWithTeam() err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("RouteWithTeam() unexpected error: %v", err)
			}
			if agent != tt.wantAgent || team != tt.wantTeam {
				t.Errorf("RouteWithTeam() = (%q, %q), want (%q, %q)", agent, team, tt.wantAgent, tt.wantTeam)
			}
		})
	}
}

func TestRoute(t *testing.T) {
	dir := testDirectory()
	agent, err := Route("@ada go", dir)
	if err != nil {
		t.Fatalf("Route() unexpected error: %v", err)
	}
	if agent != "ada" {
		t.Errorf("Route() = %q, want %q", agent, "ada")
	}
}

func TestExtractHandoffs(t *testing.T) {
	team := Team{ID: "eng", Leader: "ada", Members: []string{"ada", "grace", "linus"}}

	tests := []struct {
		name     string
		response string
		sender   string
		want     []Handoff
	}{
		{
			name:     "single handoff to teammate",
			response: "I'll draft the plan. [@grace: please review the API surface]",
			sender:   "ada",
			want:     []Handoff{{Target: "grace", Text: "please review the API surface"}},
		},
		{
			name:     "self-mention is dropped",
			response: "[@ada: noting this for myself]",
			sender:   "ada",
			want:     nil,
		},
		{
			name:     "mention outside the team is dropped",
			response: "[@outsider: take a look]",
			sender:   "ada",
			want:     nil,
		},
		{
			name:     "multiple handoffs preserve order",
			response: "[@grace: check the API] then [@linus: check the infra]",
			sender:   "ada",
			want: []Handoff{
				{Target: "grace", Text: "check the API"},
				{Target: "linus", Text: "check the infra"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractHandoffs(tt.response, tt.sender, team)
			if len(got) != len(tt.want) {
				t.Fatalf("ExtractHandoffs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ExtractHandoffs()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMentionsOutsideBrackets(t *testing.T) {
	got := mentionsOutsideBrackets("@ada please [@grace: loop in @linus] thanks")
	want := []string{"ada"}
	if len(got) != len(want) || got[0] != want[0] {
		t.Errorf("mentionsOutsideBrackets() = %v, want %v", got, want)
	}
}
