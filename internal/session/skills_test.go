package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oxide-run/oxide/internal/config"
)

func writeSkillFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write skill file: %v", err)
	}
}

func TestLoadSkills_ParsesFrontMatterAndTemplate(t *testing.T) {
	root := t.TempDir()
	skillsDir := filepath.Join(root, "skills")
	if err := os.MkdirAll(skillsDir, 0755); err != nil {
		t.Fatalf("mkdir skills dir: %v", err)
	}
	writeSkillFile(t, skillsDir, "commit.md", `---
name: commit
description: Create a conventional commit
args:
  - name: message
    description: Commit message
    required: true
---
Create a commit with message: {{message}}
`)

	skills := LoadSkills(&config.Paths{Config: root})
	if len(skills) != 1 {
		t.Fatalf("len(skills) = %d, want 1", len(skills))
	}
	if skills[0].Name != "commit" {
		t.Errorf("Name = %q, want %q", skills[0].Name, "commit")
	}
	if skills[0].Description != "Create a conventional commit" {
		t.Errorf("Description = %q", skills[0].Description)
	}
	if len(skills[0].Args) != 1 || skills[0].Args[0].Name != "message" {
		t.Errorf("Args = %+v, want one arg named message", skills[0].Args)
	}
}

func TestLoadSkills_MissingDirReturnsNil(t *testing.T) {
	skills := LoadSkills(&config.Paths{Config: t.TempDir()})
	if skills != nil {
		t.Errorf("skills = %v, want nil for a directory with no skills/ subdir", skills)
	}
}

func TestLoadSkills_SkipsMalformedFile(t *testing.T) {
	root := t.TempDir()
	skillsDir := filepath.Join(root, "skills")
	if err := os.MkdirAll(skillsDir, 0755); err != nil {
		t.Fatalf("mkdir skills dir: %v", err)
	}
	writeSkillFile(t, skillsDir, "broken.md", "no front matter here")
	writeSkillFile(t, skillsDir, "ok.md", `---
name: review
description: Review code changes
---
Review the current diff.
`)

	skills := LoadSkills(&config.Paths{Config: root})
	if len(skills) != 1 || skills[0].Name != "review" {
		t.Fatalf("skills = %+v, want only the well-formed review skill", skills)
	}
}

func TestLoadSkills_SortedByName(t *testing.T) {
	root := t.TempDir()
	skillsDir := filepath.Join(root, "skills")
	if err := os.MkdirAll(skillsDir, 0755); err != nil {
		t.Fatalf("mkdir skills dir: %v", err)
	}
	writeSkillFile(t, skillsDir, "z.md", "---\nname: zeta\n---\nbody\n")
	writeSkillFile(t, skillsDir, "a.md", "---\nname: alpha\n---\nbody\n")

	skills := LoadSkills(&config.Paths{Config: root})
	if len(skills) != 2 || skills[0].Name != "alpha" || skills[1].Name != "zeta" {
		t.Fatalf("skills = %+v, want [alpha zeta]", skills)
	}
}

func TestSkill_ExpandSubstitutesArgsAndDefaults(t *testing.T) {
	skill := Skill{
		Name:     "review",
		Template: "Review scope: {{scope}}, by {{reviewer}}",
		Args: []SkillArg{
			{Name: "scope", Default: "all changes"},
			{Name: "reviewer", Required: true},
		},
	}

	got := skill.Expand(map[string]string{"reviewer": "alice"})
	want := "Review scope: all changes, by alice"
	if got != want {
		t.Errorf("Expand = %q, want %q", got, want)
	}
}
