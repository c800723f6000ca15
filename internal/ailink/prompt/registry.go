package prompt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Registry provides access to prompt definitions.
type Registry interface {
	Get(slug string) (*Prompt, error)
	List() []*Prompt
}

// ErrPromptNotFound is returned by Get for an unknown slug.
var ErrPromptNotFound = errors.New("prompt not found")

// InMemoryRegistry stores prompts by slug. Safe for concurrent use.
type InMemoryRegistry struct {
	mu      sync.RWMutex
	prompts map[string]*Prompt
}

// NewRegistry builds a registry. Every prompt without a slug and every
// duplicated slug is reported.
func NewRegistry(prompts []*Prompt) (*InMemoryRegistry, error) {
	reg := &InMemoryRegistry{prompts: make(map[string]*Prompt, len(prompts))}
	var problems *multierror.Error
	for _, p := range prompts {
		if p == nil {
			continue
		}
		slug := p.Slug()
		switch {
		case slug == "":
			problems = multierror.Append(problems, fmt.Errorf("prompt %s missing slug", p.Source))
		case reg.prompts[slug] != nil:
			problems = multierror.Append(problems, fmt.Errorf("duplicate prompt slug: %s", slug))
		default:
			reg.prompts[slug] = p
		}
	}
	if err := problems.ErrorOrNil(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Put adds or replaces a prompt by slug.
func (r *InMemoryRegistry) Put(p *Prompt) {
	if r == nil || p == nil || p.Slug() == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prompts == nil {
		r.prompts = make(map[string]*Prompt)
	}
	r.prompts[p.Slug()] = p
}

// Get returns the prompt for the slug.
func (r *InMemoryRegistry) Get(slug string) (*Prompt, error) {
	if r == nil {
		return nil, errors.New("prompt registry not configured")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, errors.New("prompt slug is required")
	}
	r.mu.RLock()
	p, ok := r.prompts[slug]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPromptNotFound, slug)
	}
	return p, nil
}

// List returns prompts sorted by slug.
func (r *InMemoryRegistry) List() []*Prompt {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	list := make([]*Prompt, 0, len(r.prompts))
	for _, p := range r.prompts {
		list = append(list, p)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Slug() < list[j].Slug() })
	return list
}
