// Package template resolves named path templates into filesystem paths.
//
// Templates are read from a toolkit configuration's templates.yml:
//
//	roots:
//	  primary: /mnt/hs/projects/demo
//	paths:
//	  shot_root: sequences/{Sequence}/{Episode}/{Shot}
//	  work_shot_area:
//	    definition: "@shot_root/work"
//	    root_name: primary
//
// Keys are written {Name}. A definition may reference another path with
// @name; references are expanded when the file is loaded.
package template

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// DefaultRootName is used when a path does not name a root.
const DefaultRootName = "primary"

var (
	// ErrTemplateNotFound is returned when a named template is not defined.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrInvalidTemplate is returned for definitions that cannot be parsed.
	ErrInvalidTemplate = errors.New("invalid template")
)

var keyPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// MissingFieldsError reports the keys a template needed but did not get.
type MissingFieldsError struct {
	Template string
	Missing  []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("tried to resolve a path from the template %s and a set of input fields "+
		"but the following required fields were missing from the input: %s",
		e.Template, strings.Join(e.Missing, ", "))
}

// Template is a single path definition bound to a storage root.
type Template struct {
	Name       string
	Definition string
	Root       string
	keys       []string
}

func newTemplate(name, definition, root string) (*Template, error) {
	if strings.Count(definition, "{") != strings.Count(definition, "}") {
		return nil, fmt.Errorf("%w: %s: unbalanced braces in %q", ErrInvalidTemplate, name, definition)
	}

	var keys []string
	seen := make(map[string]bool)
	for _, m := range keyPattern.FindAllStringSubmatch(definition, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}

	return &Template{
		Name:       name,
		Definition: definition,
		Root:       root,
		keys:       keys,
	}, nil
}

// ApplyFields substitutes fields into the definition and joins the result
// onto the template root.
//
// Every key must be present with a non-empty value; otherwise a
// *MissingFieldsError naming all absent keys is returned.
func (t *Template) ApplyFields(fields map[string]string) (string, error) {
	var missing []string
	for _, k := range t.keys {
		if fields[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return "", &MissingFieldsError{Template: t.Name, Missing: missing}
	}

	rel := keyPattern.ReplaceAllStringFunc(t.Definition, func(m string) string {
		return fields[m[1:len(m)-1]]
	})

	if t.Root == "" {
		return path.Clean(rel), nil
	}
	return path.Join(t.Root, rel), nil
}

func (t *Template) String() string {
	return fmt.Sprintf("<Template %s: %s>", t.Name, t.Definition)
}
