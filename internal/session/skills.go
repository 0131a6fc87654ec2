package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oxide-run/oxide/internal/config"
	"github.com/oxide-run/oxide/internal/logging"
)

// SkillArg documents one named placeholder a skill's template expects
// (substituted as {{name}} when a skill is invoked).
type SkillArg struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
	Default     string `yaml:"default"`
}

// Skill is a reusable prompt template loaded from a skills/*.md file
// under the global config directory (spec §6).
type Skill struct {
	Name        string
	Description string
	Template    string
	Args        []SkillArg
}

// skillFrontMatter is the YAML header a skill file opens with, between
// a leading and trailing "---" line.
type skillFrontMatter struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Args        []SkillArg `yaml:"args"`
}

// LoadSkills reads every skills/*.md file under paths.SkillsDir(),
// parsing its YAML front matter and keeping the remainder as the
// template body. Files that are missing, malformed, or absent entirely
// are not fatal: a missing directory yields no skills, and a malformed
// file is skipped with a warning so the rest of the repertoire still
// loads.
func LoadSkills(paths *config.Paths) []Skill {
	dir := paths.SkillsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var skills []Skill
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		skill, err := parseSkillFile(path)
		if err != nil {
			logging.Logger.Warn().Err(err).Str("file", path).Msg("skipping malformed skill file")
			continue
		}
		skills = append(skills, skill)
	}

	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills
}

func parseSkillFile(path string) (Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, fmt.Errorf("read skill file: %w", err)
	}

	parts := strings.SplitN(string(content), "---", 3)
	if len(parts) < 3 {
		return Skill{}, fmt.Errorf("missing YAML front matter: expected ---\\nfront matter\\n---\\ntemplate")
	}

	var fm skillFrontMatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		return Skill{}, fmt.Errorf("parse front matter: %w", err)
	}
	if fm.Name == "" {
		return Skill{}, fmt.Errorf("front matter missing required name field")
	}

	return Skill{
		Name:        fm.Name,
		Description: fm.Description,
		Template:    strings.TrimSpace(parts[2]),
		Args:        fm.Args,
	}, nil
}

// Expand substitutes each {{arg}} placeholder in the skill's template
// with the value supplied in args, falling back to the arg's declared
// default when args omits it.
func (s Skill) Expand(args map[string]string) string {
	out := s.Template
	for _, a := range s.Args {
		value, ok := args[a.Name]
		if !ok {
			value = a.Default
		}
		out = strings.ReplaceAll(out, "{{"+a.Name+"}}", value)
	}
	return out
}
