// Package skills implements the auto-draft and lifecycle management of
// versioned Markdown skill files (spec §4.K). Grounded on the teacher's
// internal/store/pg upsert-by-natural-key idiom (sessions.go) and its
// file-backed store wrapper pattern (internal/store/file/sessions.go)
// for the on-disk Markdown content this spec's skills need alongside
// their database rows.
package skills

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tinyagi/tinyagi/internal/store"
)

var triggerPhrases = regexp.MustCompile(`(?i)\b(always|every time|automate|repeat this|workflow|template)\b`)

var toolingTriggers = regexp.MustCompile(`(?i)\b(install|configure)\b`)
var browserTriggers = regexp.MustCompile(`(?i)\b(log\s*in|submit|portal|dashboard)\b`)

// Service implements harness.SkillsService plus CLI-facing operations.
type Service struct {
	repo      store.Skills
	skillsDir string
}

// New builds a Service.
func New(repo store.Skills, skillsDir string) *Service {
	return &Service{repo: repo, skillsDir: skillsDir}
}

// shouldAutoDraft reports whether objective matches the generic trigger
// phrases or a route-specific keyword set (spec §4.K).
func shouldAutoDraft(route store.Route, objective string) bool {
	if triggerPhrases.MatchString(objective) {
		return true
	}
	switch route {
	case store.RouteTooling:
		return toolingTriggers.MatchString(objective)
	case store.RouteBrowser:
		return browserTriggers.MatchString(objective)
	default:
		return false
	}
}

// normalizeName dedups drafts by normalized name (spec §4.K).
func normalizeName(objective string) string {
	lower := strings.ToLower(strings.TrimSpace(objective))
	fields := strings.Fields(lower)
	n := 6
	if len(fields) < n {
		n = len(fields)
	}
	joined := strings.Join(fields[:n], "-")
	re := regexp.MustCompile(`[^a-z0-9-]`)
	return re.ReplaceAllString(joined, "")
}

func skillID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return "skill_" + hex.EncodeToString(sum[:])[:16]
}

// MaybeAutoDraft implements harness.SkillsService: drafts a new skill
// when the objective matches trigger phrases, deduped by normalized
// name (spec §4.K).
func (s *Service) MaybeAutoDraft(ctx context.Context, route store.Route, objective string) error {
	if !shouldAutoDraft(route, objective) {
		return nil
	}
	name := normalizeName(objective)
	if name == "" {
		return nil
	}
	if existing, err := s.repo.GetSkillByName(ctx, name); err != nil {
		return fmt.Errorf("skills: lookup %s: %w", name, err)
	} else if existing != nil {
		return nil // already drafted, dedup by normalized name
	}

	return s.Draft(ctx, name, objective)
}

// Draft writes a new Markdown skill file, a version 1 row, and the
// skill row itself.
func (s *Service) Draft(ctx context.Context, name, prompt string) error {
	id := skillID(name)
	content := fmt.Sprintf("# %s\n\n%s\n", name, prompt)

	versionPath, currentPath, err := s.writeVersion(id, 1, content)
	if err != nil {
		return err
	}

	now := time.Now()
	if err := s.repo.UpsertSkill(ctx, &store.Skill{
		SkillID: id, Name: name, Status: store.SkillDraft, ContentPath: currentPath, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("skills: upsert %s: %w", name, err)
	}
	if err := s.repo.AddSkillVersion(ctx, &store.SkillVersion{SkillID: id, Version: 1, ContentPath: versionPath, CreatedAt: now}); err != nil {
		return fmt.Errorf("skills: add version 1 for %s: %w", name, err)
	}
	return nil
}

// Activate, Disable set a skill's status.
func (s *Service) Activate(ctx context.Context, skillID string) error {
	return s.setStatus(ctx, skillID, store.SkillActive)
}

func (s *Service) Disable(ctx context.Context, skillID string) error {
	return s.setStatus(ctx, skillID, store.SkillDisabled)
}

func (s *Service) setStatus(ctx context.Context, id string, status store.SkillStatus) error {
	sk, err := s.getByID(ctx, id)
	if err != nil {
		return err
	}
	sk.Status = status
	sk.UpdatedAt = time.Now()
	return s.repo.UpsertSkill(ctx, sk)
}

// Rollback repoints a skill's current content path at a prior version's
// path (spec §4.K).
func (s *Service) Rollback(ctx context.Context, id string, version int) error {
	versions, err := s.repo.ListSkillVersions(ctx, id)
	if err != nil {
		return fmt.Errorf("skills: list versions for %s: %w", id, err)
	}
	var target *store.SkillVersion
	for _, v := range versions {
		if v.Version == version {
			target = v
			break
		}
	}
	if target == nil {
		if len(versions) == 0 {
			return fmt.Errorf("skills: no versions for %s", id)
		}
		target = versions[len(versions)-1]
	}
	return s.repo.SetSkillContentPath(ctx, id, target.ContentPath)
}

func (s *Service) getByID(ctx context.Context, id string) (*store.Skill, error) {
	sk, err := s.repo.GetSkillByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("skills: lookup %s: %w", id, err)
	}
	if sk == nil {
		return nil, fmt.Errorf("skills: skill %s not found", id)
	}
	return sk, nil
}

// writeVersion writes the immutable vN.md snapshot and updates the
// mutable SKILL.md current-content pointer, returning both paths: the
// version path belongs on the SkillVersion history row, the current
// path belongs on the Skill row.
func (s *Service) writeVersion(id string, version int, content string) (versionPath, currentPath string, err error) {
	dir := filepath.Join(s.skillsDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("skills: create dir for %s: %w", id, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("v%d.md", version))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", "", fmt.Errorf("skills: write version file: %w", err)
	}
	current := filepath.Join(dir, "SKILL.md")
	if err := os.WriteFile(current, []byte(content), 0o644); err != nil {
		return "", "", fmt.Errorf("skills: write current content: %w", err)
	}
	return path, current, nil
}
