package prompt

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"
	"gopkg.in/yaml.v3"
)

//go:embed prompt.schema.json
var promptSchema []byte

const fence = "---"

var (
	schemaOnce sync.Once
	checkJSON  func(payload []byte) ([]string, error)
	schemaErr  error
)

// Load parses a markdown prompt with YAML frontmatter and validates the
// frontmatter against the prompt schema. The markdown body becomes the user
// template when the frontmatter does not set one.
func Load(source string, data []byte) (*Prompt, error) {
	front, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", source, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(front), &cfg); err != nil {
		return nil, fmt.Errorf("parse prompt %s: invalid frontmatter: %w", source, err)
	}
	if strings.TrimSpace(cfg.UserTemplate) == "" {
		cfg.UserTemplate = strings.TrimSpace(body)
	}
	if cfg.UserTemplate == "" {
		return nil, fmt.Errorf("prompt %s missing user_template", source)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate prompt %s: %w", source, err)
	}
	return &Prompt{Config: cfg, Source: source}, nil
}

// LoadFromDir reads every *.md prompt in dir.
func LoadFromDir(dir string) ([]*Prompt, error) {
	return loadFS(os.DirFS(dir), ".", dir)
}

// loadFS loads every *.md file under root in fsys. label prefixes the
// source recorded on each prompt.
func loadFS(fsys fs.FS, root, label string) ([]*Prompt, error) {
	matches, err := fs.Glob(fsys, path.Join(root, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("scan prompts in %s: %w", label, err)
	}
	prompts := make([]*Prompt, 0, len(matches))
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", name, err)
		}
		p, err := Load(path.Join(label, path.Base(name)), data)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}

// splitFrontmatter separates the fenced YAML header from the body.
func splitFrontmatter(text string) (string, string, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return "", "", fmt.Errorf("empty prompt")
	}
	first, rest, _ := strings.Cut(text, "\n")
	if strings.TrimSpace(first) != fence {
		return "", "", fmt.Errorf("missing frontmatter")
	}
	lines := strings.Split(rest, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == fence {
			return strings.Join(lines[:i], "\n"), strings.Join(lines[i+1:], "\n"), nil
		}
	}
	return "", "", fmt.Errorf("unterminated frontmatter")
}

func compilePromptSchema() {
	v, err := schema.NewValidator(promptSchema)
	if err != nil {
		schemaErr = err
		return
	}
	checkJSON = func(payload []byte) ([]string, error) {
		diagnostics, err := v.ValidateJSON(payload)
		if err != nil {
			return nil, err
		}
		msgs := make([]string, 0, len(diagnostics))
		for _, d := range diagnostics {
			msgs = append(msgs, d.Message)
		}
		return msgs, nil
	}
}

func validateConfig(cfg Config) error {
	schemaOnce.Do(compilePromptSchema)
	if schemaErr != nil {
		return fmt.Errorf("compile prompt schema: %w", schemaErr)
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	violations, err := checkJSON(payload)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return fmt.Errorf("schema validation failed: %s", strings.Join(violations, "; "))
	}
	return nil
}
