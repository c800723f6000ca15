package prompt

import (
	"embed"
	"strings"
)

//go:embed prompts/*.md
var defaultPromptsFS embed.FS

// Built-in prompt slugs.
const (
	SlugSearchQueries = "search-queries"
	SlugHealthProbe   = "health-probe"
)

// LoadDefaults loads the embedded prompt set.
func LoadDefaults() ([]*Prompt, error) {
	return loadFS(defaultPromptsFS, "prompts", "embedded")
}

// DefaultRegistry builds a registry from embedded prompts.
func DefaultRegistry() (Registry, error) {
	return NewRegistryWithOverrides("")
}

// NewRegistryWithOverrides loads the embedded prompts and replaces any slug
// also defined in dir. An empty dir uses the embedded set only.
func NewRegistryWithOverrides(dir string) (Registry, error) {
	prompts, err := LoadDefaults()
	if err != nil {
		return nil, err
	}
	reg, err := NewRegistry(prompts)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dir) == "" {
		return reg, nil
	}
	overrides, err := LoadFromDir(dir)
	if err != nil {
		return nil, err
	}
	for _, p := range overrides {
		reg.Put(p)
	}
	return reg, nil
}
