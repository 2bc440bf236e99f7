package skills

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata is the yaml frontmatter of a SKILL.md file.
type Metadata struct {
	Description string `yaml:"description"`
	Calico      struct {
		Always   bool `yaml:"always"`
		Requires struct {
			Bins []string `yaml:"bins"`
			Env  []string `yaml:"env"`
		} `yaml:"requires"`
	} `yaml:"calico"`
}

// Skill is one discovered skill directory.
type Skill struct {
	Name        string
	Path        string
	Description string
	Available   bool
	Missing     []string
	Content     string
	Always      bool
}

// Loader discovers skills under workspace/skills. Each skill is a
// directory holding a SKILL.md with yaml frontmatter.
type Loader struct {
	Workspace string
	SkillsDir string
}

// NewLoader creates a skills loader for the given workspace.
func NewLoader(workspace string) *Loader {
	return &Loader{
		Workspace: workspace,
		SkillsDir: filepath.Join(workspace, "skills"),
	}
}

// ListSkills returns every skill found in the workspace. A missing
// skills directory is an empty list, not an error.
func (l *Loader) ListSkills() ([]Skill, error) {
	entries, err := os.ReadDir(l.SkillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var skills []Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(l.SkillsDir, entry.Name(), "SKILL.md")
		skill, err := l.loadSkill(entry.Name(), path)
		if err != nil {
			continue
		}
		skills = append(skills, skill)
	}
	return skills, nil
}

func (l *Loader) loadSkill(name, path string) (Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, err
	}

	meta, _ := parseFrontmatter(content)

	missing := checkRequirements(meta.Calico.Requires.Bins, meta.Calico.Requires.Env)

	desc := meta.Description
	if desc == "" {
		desc = name
	}

	return Skill{
		Name:        name,
		Path:        path,
		Description: desc,
		Available:   len(missing) == 0,
		Missing:     missing,
		Content:     string(content),
		Always:      meta.Calico.Always,
	}, nil
}

// LoadSkillsForContext renders the full content of the named skills.
func (l *Loader) LoadSkillsForContext(names []string) string {
	var parts []string
	for _, name := range names {
		path := filepath.Join(l.SkillsDir, name, "SKILL.md")
		skillDir := filepath.Join(l.SkillsDir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		clean := stripFrontmatter(content)

		absDir, _ := filepath.Abs(skillDir)
		clean = strings.ReplaceAll(clean, "{baseDir}", absDir)

		parts = append(parts, fmt.Sprintf("### Skill: %s\n\n%s", name, clean))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// BuildSkillsSummary renders the on-demand skill directory so the
// model can read a skill's instruction file only when it needs it.
func (l *Loader) BuildSkillsSummary() string {
	skills, err := l.ListSkills()
	if err != nil {
		return ""
	}

	var sb strings.Builder
	for _, s := range skills {
		status := "Available"
		if !s.Available {
			status = fmt.Sprintf("Unavailable (Missing: %s)", strings.Join(s.Missing, ", "))
		}
		sb.WriteString(fmt.Sprintf("- **%s** (%s)\n", s.Name, status))
		sb.WriteString(fmt.Sprintf("  Description: %s\n", s.Description))
		sb.WriteString(fmt.Sprintf("  Instruction File: %s\n", s.Path))
		sb.WriteString("\n")
	}
	return sb.String()
}

// GetAlwaysSkills returns names of available skills flagged always-on.
func (l *Loader) GetAlwaysSkills() []string {
	skills, _ := l.ListSkills()
	var names []string
	for _, s := range skills {
		if s.Always && s.Available {
			names = append(names, s.Name)
		}
	}
	return names
}

func parseFrontmatter(content []byte) (Metadata, error) {
	var meta Metadata
	s := string(content)
	if strings.HasPrefix(s, "---") {
		parts := strings.SplitN(s, "---", 3)
		if len(parts) >= 3 {
			err := yaml.Unmarshal([]byte(parts[1]), &meta)
			return meta, err
		}
	}
	return meta, nil
}

func stripFrontmatter(content []byte) string {
	s := string(content)
	if strings.HasPrefix(s, "---") {
		parts := strings.SplitN(s, "---", 3)
		if len(parts) >= 3 {
			return strings.TrimSpace(parts[2])
		}
	}
	return s
}

func checkRequirements(bins, envs []string) []string {
	var missing []string
	for _, bin := range bins {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, fmt.Sprintf("CLI: %s", bin))
		}
	}
	for _, env := range envs {
		if os.Getenv(env) == "" {
			missing = append(missing, fmt.Sprintf("ENV: %s", env))
		}
	}
	return missing
}
