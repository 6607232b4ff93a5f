// Package prompt provides personas: the system text sent to a backend
// alongside the composed prompt.
package prompt

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*/persona.yaml builtin/*/system.md
var builtinFS embed.FS

var builtinPersonaNames = []string{
	"alfred",
	"assistant",
}

type Persona struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Instructions is the system text. Built-ins keep it in system.md.
	Instructions string `yaml:"instructions"`
}

// BuiltinNames returns the names of the embedded personas.
func BuiltinNames() []string {
	return slices.Clone(builtinPersonaNames)
}

func IsBuiltin(name string) bool {
	return slices.Contains(builtinPersonaNames, name)
}

// Load resolves ref to a persona. ref is a built-in name, a path to a YAML
// file, or empty for no persona (nil, nil).
func Load(ref string) (*Persona, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "" || ref == "none":
		return nil, nil
	case IsBuiltin(ref):
		return loadBuiltin(ref)
	default:
		return LoadFile(ref)
	}
}

func loadBuiltin(name string) (*Persona, error) {
	data, err := builtinFS.ReadFile(fmt.Sprintf("builtin/%s/persona.yaml", name))
	if err != nil {
		return nil, fmt.Errorf("builtin persona %s not found", name)
	}
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse builtin persona %s: %w", name, err)
	}
	system, _ := builtinFS.ReadFile(fmt.Sprintf("builtin/%s/system.md", name))
	if p.Instructions == "" {
		p.Instructions = strings.TrimSpace(string(system))
	}
	return &p, nil
}

// LoadFile reads a persona from YAML. A system.md next to the file is used
// when the YAML has no instructions.
func LoadFile(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona: %w", err)
	}
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if strings.TrimSpace(p.Instructions) == "" {
		if system, err := os.ReadFile(filepath.Join(filepath.Dir(path), "system.md")); err == nil {
			p.Instructions = string(system)
		}
	}
	p.Instructions = strings.TrimSpace(p.Instructions)
	if p.Instructions == "" {
		return nil, fmt.Errorf("persona %s has no instructions", p.Name)
	}
	return &p, nil
}

// System returns the persona's instructions; a nil persona has none.
func (p *Persona) System() string {
	if p == nil {
		return ""
	}
	return p.Instructions
}
