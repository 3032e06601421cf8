package skills

import (
	"context"
	"testing"

	"github.com/tinyagi/tinyagi/internal/store"
)

type fakeSkills struct {
	byID     map[string]*store.Skill
	byName   map[string]*store.Skill
	versions map[string][]*store.SkillVersion
}

func newFakeSkills() *fakeSkills {
	return &fakeSkills{
		byID:     map[string]*store.Skill{},
		byName:   map[string]*store.Skill{},
		versions: map[string][]*store.SkillVersion{},
	}
}

func (f *fakeSkills) UpsertSkill(ctx context.Context, s *store.Skill) error {
	cp := *s
	f.byID[s.SkillID] = &cp
	f.byName[s.Name] = &cp
	return nil
}

func (f *fakeSkills) GetSkillByName(ctx context.Context, name string) (*store.Skill, error) {
	return f.byName[name], nil
}

func (f *fakeSkills) GetSkillByID(ctx context.Context, skillID string) (*store.Skill, error) {
	return f.byID[skillID], nil
}

func (f *fakeSkills) AddSkillVersion(ctx context.Context, v *store.SkillVersion) error {
	f.versions[v.SkillID] = append(f.versions[v.SkillID], v)
	return nil
}

func (f *fakeSkills) ListSkillVersions(ctx context.Context, skillID string) ([]*store.SkillVersion, error) {
	return f.versions[skillID], nil
}

func (f *fakeSkills) SetSkillContentPath(ctx context.Context, skillID, contentPath string) error {
	sk := f.byID[skillID]
	if sk == nil {
		return nil
	}
	sk.ContentPath = contentPath
	return nil
}

func (f *fakeSkills) ListSkills(ctx context.Context) ([]*store.Skill, error) {
	var out []*store.Skill
	for _, sk := range f.byID {
		out = append(out, sk)
	}
	return out, nil
}

func TestMaybeAutoDraftFiresOnTriggerPhrase(t *testing.T) {
	repo := newFakeSkills()
	svc := New(repo, t.TempDir())

	err := svc.MaybeAutoDraft(context.Background(), store.RouteTooling, "Always do this workflow: run npm test and summarize failures.")
	if err != nil {
		t.Fatalf("MaybeAutoDraft() error: %v", err)
	}
	if len(repo.byID) != 1 {
		t.Fatalf("expected exactly one drafted skill, got %d", len(repo.byID))
	}
	for _, sk := range repo.byID {
		if sk.Status != store.SkillDraft {
			t.Errorf("Status = %s, want draft", sk.Status)
		}
		if versions := repo.versions[sk.SkillID]; len(versions) != 1 || versions[0].Version != 1 {
			t.Errorf("expected exactly one v1 version row, got %+v", versions)
		}
	}
}

func TestMaybeAutoDraftSkipsWithoutTrigger(t *testing.T) {
	repo := newFakeSkills()
	svc := New(repo, t.TempDir())

	if err := svc.MaybeAutoDraft(context.Background(), store.RouteAgent, "What's the weather like today?"); err != nil {
		t.Fatalf("MaybeAutoDraft() error: %v", err)
	}
	if len(repo.byID) != 0 {
		t.Fatalf("expected no drafted skills, got %d", len(repo.byID))
	}
}

func TestMaybeAutoDraftRouteSpecificKeywords(t *testing.T) {
	repo := newFakeSkills()
	svc := New(repo, t.TempDir())

	// "install" is a tooling-route trigger but not a generic trigger phrase.
	if err := svc.MaybeAutoDraft(context.Background(), store.RouteTooling, "install the latest postgres client"); err != nil {
		t.Fatalf("MaybeAutoDraft() error: %v", err)
	}
	if len(repo.byID) != 1 {
		t.Fatalf("expected tooling route to fire on 'install', got %d drafts", len(repo.byID))
	}

	repo2 := newFakeSkills()
	svc2 := New(repo2, t.TempDir())
	// Same phrase on the agent route should not trigger a draft.
	if err := svc2.MaybeAutoDraft(context.Background(), store.RouteAgent, "install the latest postgres client"); err != nil {
		t.Fatalf("MaybeAutoDraft() error: %v", err)
	}
	if len(repo2.byID) != 0 {
		t.Fatalf("expected agent route not to fire on 'install', got %d drafts", len(repo2.byID))
	}
}

func TestMaybeAutoDraftDedupsByNormalizedName(t *testing.T) {
	repo := newFakeSkills()
	svc := New(repo, t.TempDir())

	objective := "Always automate this workflow: run the nightly backup."
	if err := svc.MaybeAutoDraft(context.Background(), store.RouteAgent, objective); err != nil {
		t.Fatalf("first MaybeAutoDraft() error: %v", err)
	}
	if err := svc.MaybeAutoDraft(context.Background(), store.RouteAgent, objective); err != nil {
		t.Fatalf("second MaybeAutoDraft() error: %v", err)
	}
	if len(repo.byID) != 1 {
		t.Fatalf("expected dedup to keep exactly one skill, got %d", len(repo.byID))
	}
}

func TestRollbackRepointsContentPath(t *testing.T) {
	repo := newFakeSkills()
	svc := New(repo, t.TempDir())

	if err := svc.Draft(context.Background(), "nightly-backup", "run the nightly backup"); err != nil {
		t.Fatalf("Draft() error: %v", err)
	}
	id := skillID("nightly-backup")

	v2Path := "/skills/" + id + "/v2.md"
	if err := repo.AddSkillVersion(context.Background(), &store.SkillVersion{SkillID: id, Version: 2, ContentPath: v2Path}); err != nil {
		t.Fatalf("AddSkillVersion() error: %v", err)
	}
	if err := repo.SetSkillContentPath(context.Background(), id, v2Path); err != nil {
		t.Fatalf("SetSkillContentPath() error: %v", err)
	}

	if err := svc.Rollback(context.Background(), id, 1); err != nil {
		t.Fatalf("Rollback() error: %v", err)
	}
	sk, err := repo.GetSkillByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSkillByID() error: %v", err)
	}
	if sk.ContentPath == v2Path {
		t.Error("expected rollback to repoint away from v2's content path")
	}
}
