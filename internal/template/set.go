package template

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// ConfigRelPath is where templates.yml lives under a toolkit root.
var ConfigRelPath = filepath.Join("config", "core", "templates.yml")

var aliasPattern = regexp.MustCompile(`@([A-Za-z_][A-Za-z0-9_]*)`)

// maxAliasDepth bounds @alias expansion so cycles fail instead of looping.
const maxAliasDepth = 16

// Set is the collection of templates loaded from one configuration.
type Set struct {
	templates map[string]*Template
}

type fileFormat struct {
	Roots map[string]string    `yaml:"roots"`
	Paths map[string]pathEntry `yaml:"paths"`
}

// pathEntry accepts either a bare definition string or a mapping.
type pathEntry struct {
	Definition string `yaml:"definition"`
	RootName   string `yaml:"root_name"`
}

func (p *pathEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Definition = node.Value
		return nil
	}
	type plain pathEntry
	return node.Decode((*plain)(p))
}

// LoadFile reads a templates.yml file.
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates %s: %w", path, err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates %s: %w", path, err)
	}
	return set, nil
}

// LoadToolkit reads templates.yml from a toolkit root directory.
func LoadToolkit(root string) (*Set, error) {
	return LoadFile(filepath.Join(root, ConfigRelPath))
}

// Parse builds a Set from templates.yml content.
func Parse(data []byte) (*Set, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}

	set := &Set{templates: make(map[string]*Template, len(f.Paths))}
	for name, entry := range f.Paths {
		def, err := expand(name, entry.Definition, f.Paths, 0)
		if err != nil {
			return nil, err
		}

		rootName := entry.RootName
		if rootName == "" {
			rootName = DefaultRootName
		}
		root := f.Roots[rootName]
		if root == "" && entry.RootName != "" {
			return nil, fmt.Errorf("%w: %s: unknown root %q", ErrInvalidTemplate, name, entry.RootName)
		}

		t, err := newTemplate(name, def, root)
		if err != nil {
			return nil, err
		}
		set.templates[name] = t
	}
	return set, nil
}

func expand(name, def string, paths map[string]pathEntry, depth int) (string, error) {
	if depth > maxAliasDepth {
		return "", fmt.Errorf("%w: %s: alias cycle", ErrInvalidTemplate, name)
	}

	var expandErr error
	out := aliasPattern.ReplaceAllStringFunc(def, func(m string) string {
		ref := m[1:]
		target, ok := paths[ref]
		if !ok {
			expandErr = fmt.Errorf("%w: %s: unknown alias @%s", ErrInvalidTemplate, name, ref)
			return m
		}
		sub, err := expand(ref, target.Definition, paths, depth+1)
		if err != nil {
			expandErr = err
			return m
		}
		return sub
	})
	return out, expandErr
}

// Get returns the named template.
func (s *Set) Get(name string) (*Template, error) {
	t, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return t, nil
}

// Names returns the template names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.templates))
	for n := range s.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
