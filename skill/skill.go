// Package skill turns skill directories into budgeted loads.
//
// A skill is a directory holding a SKILL.md file with YAML frontmatter and
// an optional references/ directory:
//
//	---
//	name: release
//	description: Cut and publish a release
//	budget: 20000
//	mandatory: [checklist.md]
//	best_effort: references/changelog-style.md
//	---
//
// SKILL.md and the declared mandatory files are loaded first. Declared
// best-effort files follow, then any other files under references/.
package skill

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/ctxload/loader"
	"github.com/randalmurphal/ctxload/resource"
)

const (
	// FileSkillMD is the skill definition file name.
	FileSkillMD = "SKILL.md"

	// DirReferences holds supplementary material loaded best-effort.
	DirReferences = "references"
)

// ErrNoFrontmatter indicates a SKILL.md without a closed YAML frontmatter block.
var ErrNoFrontmatter = errors.New("SKILL.md must start with YAML frontmatter (---)")

// StringOrArray unmarshals from either a comma-separated string or a YAML array.
type StringOrArray []string

// UnmarshalYAML implements yaml.Unmarshaler to handle both string and array formats.
func (s *StringOrArray) UnmarshalYAML(value *yaml.Node) error {
	var arr []string
	if err := value.Decode(&arr); err == nil {
		*s = arr
		return nil
	}

	var str string
	if err := value.Decode(&str); err == nil {
		parts := strings.Split(str, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		*s = result
		return nil
	}

	return errors.New("file list must be a string or array")
}

// Skill is a parsed skill directory.
type Skill struct {
	Name            string        `yaml:"name" json:"name"`
	Description     string        `yaml:"description" json:"description"`
	Budget          int           `yaml:"budget,omitempty" json:"budget,omitempty"`
	AllowTruncation bool          `yaml:"allow_truncation,omitempty" json:"allow_truncation,omitempty"`
	Mandatory       StringOrArray `yaml:"mandatory,omitempty" json:"mandatory,omitempty"`
	BestEffort      StringOrArray `yaml:"best_effort,omitempty" json:"best_effort,omitempty"`

	// Content is the markdown body after the frontmatter
	Content string `yaml:"-" json:"content"`

	// Path is the directory containing SKILL.md
	Path string `yaml:"-" json:"path"`

	// References lists files under references/, sorted
	References []string `yaml:"-" json:"references,omitempty"`
}

// Validate checks required fields and that declared files stay inside the
// skill directory.
func (s *Skill) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("skill name is required"))
	}
	if s.Description == "" {
		errs = append(errs, errors.New("skill description is required"))
	}
	if s.Budget < 0 {
		errs = append(errs, fmt.Errorf("budget %d is negative", s.Budget))
	}

	for _, f := range append(append([]string{}, s.Mandatory...), s.BestEffort...) {
		if !filepath.IsLocal(f) {
			errs = append(errs, fmt.Errorf("file %q is outside the skill directory", f))
		}
	}
	return errors.Join(errs...)
}

// Parse reads a skill. The path can be either the SKILL.md file itself or
// the directory containing it.
func Parse(path string) (*Skill, error) {
	filePath := path
	dirPath := path

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	if info.IsDir() {
		filePath = filepath.Join(path, FileSkillMD)
	} else {
		dirPath = filepath.Dir(path)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", FileSkillMD, err)
	}

	s, err := parseContent(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileSkillMD, err)
	}
	s.Path = dirPath

	s.References, err = listFiles(filepath.Join(dirPath, DirReferences))
	if err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid skill %s: %w", dirPath, err)
	}
	return s, nil
}

// parseContent splits YAML frontmatter from the markdown body.
func parseContent(data []byte) (*Skill, error) {
	if !bytes.HasPrefix(data, []byte("---")) {
		return nil, ErrNoFrontmatter
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	var frontmatterLines []string
	var contentLines []string
	inFrontmatter := false
	foundEnd := false

	lineNum := 0
	for scanner.Scan() {
		line := scanner.Text()
		lineNum++

		if lineNum == 1 && line == "---" {
			inFrontmatter = true
			continue
		}

		if inFrontmatter && line == "---" {
			inFrontmatter = false
			foundEnd = true
			continue
		}

		if inFrontmatter {
			frontmatterLines = append(frontmatterLines, line)
		} else if foundEnd {
			contentLines = append(contentLines, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan content: %w", err)
	}

	if !foundEnd {
		return nil, fmt.Errorf("%w: frontmatter not closed", ErrNoFrontmatter)
	}

	s := &Skill{}
	if err := yaml.Unmarshal([]byte(strings.Join(frontmatterLines, "\n")), s); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	s.Content = strings.TrimSpace(strings.Join(contentLines, "\n"))

	return s, nil
}

// List returns the skill's resources, relative to its directory.
// SKILL.md and declared mandatory files are mandatory. Declared best-effort
// files come next, then undeclared references in name order.
func (s *Skill) List() resource.List {
	var list resource.List
	declared := map[string]bool{FileSkillMD: true}

	list.Add(resource.Spec{Location: FileSkillMD, Reason: "skill instructions", Tier: resource.Mandatory})
	for _, f := range s.Mandatory {
		f = filepath.ToSlash(filepath.Clean(f))
		if declared[f] {
			continue
		}
		declared[f] = true
		list.Add(resource.Spec{Location: f, Reason: "declared by " + s.Name, Tier: resource.Mandatory})
	}

	for _, f := range s.BestEffort {
		f = filepath.ToSlash(filepath.Clean(f))
		if declared[f] {
			continue
		}
		declared[f] = true
		list.Add(resource.Spec{Location: f, Reason: "declared by " + s.Name, Tier: resource.BestEffort})
	}

	for _, name := range s.References {
		f := DirReferences + "/" + name
		if declared[f] {
			continue
		}
		declared[f] = true
		list.Add(resource.Spec{Location: f, Reason: "reference material", Tier: resource.BestEffort})
	}

	return list
}

// Reader returns a reader that resolves the skill's locations.
func (s *Skill) Reader() resource.Reader {
	return resource.NewFileReader(s.Path)
}

// Options returns the load options the skill declares.
func (s *Skill) Options() loader.Options {
	return loader.Options{AllowTruncation: s.AllowTruncation}
}

// NewLoader creates a loader for the skill. The skill's budget wins over
// fallback when set.
func (s *Skill) NewLoader(fallback int, opts ...loader.Option) *loader.Loader {
	budget := fallback
	if s.Budget > 0 {
		budget = s.Budget
	}
	return loader.New(budget, append([]loader.Option{loader.WithReader(s.Reader())}, opts...)...)
}

// Discover finds every skill directly under dir, sorted by name.
// Directories without SKILL.md are ignored; unparsable skills are reported
// together after the rest are collected.
func Discover(dir string) ([]*Skill, error) {
	if !dirExists(dir) {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read skills directory: %w", err)
	}

	var skills []*Skill
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		skillPath := filepath.Join(dir, entry.Name())
		if !fileExists(filepath.Join(skillPath, FileSkillMD)) {
			continue
		}

		s, err := Parse(skillPath)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		skills = append(skills, s)
	}

	sort.Slice(skills, func(i, j int) bool {
		return skills[i].Name < skills[j].Name
	})

	return skills, errors.Join(errs...)
}

// listFiles returns the regular files directly in dir, sorted.
func listFiles(dir string) ([]string, error) {
	if !dirExists(dir) {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s directory: %w", filepath.Base(dir), err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, entry.Name())
	}

	sort.Strings(files)
	return files, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
