package prompt

import (
	"fmt"
	"strings"
)

// Render fills the system and user templates with vars. Supported syntax is
// {{name}} substitution and {{#if name}}...{{else}}...{{/if}} blocks.
func Render(def *Prompt, vars map[string]string) (string, string, error) {
	if def == nil {
		return "", "", fmt.Errorf("prompt is required")
	}
	for _, required := range def.Config.Input.RequiredVariables {
		if strings.TrimSpace(vars[required]) == "" {
			return "", "", fmt.Errorf("prompt %s: required variable %q not provided", def.Config.Slug, required)
		}
	}

	system := applyVars(applyConditionals(def.Config.SystemTemplate, vars), vars)
	user := applyVars(applyConditionals(def.Config.UserTemplate, vars), vars)
	if strings.TrimSpace(user) == "" {
		return "", "", fmt.Errorf("prompt %s rendered an empty user message", def.Config.Slug)
	}
	return strings.TrimSpace(system), strings.TrimSpace(user), nil
}

func applyVars(template string, vars map[string]string) string {
	result := template
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

func applyConditionals(template string, vars map[string]string) string {
	result := template
	for {
		start := strings.Index(result, "{{#if")
		if start == -1 {
			return result
		}
		tagEnd := strings.Index(result[start:], "}}")
		if tagEnd == -1 {
			return result
		}
		tagEnd += start

		varName := strings.TrimSpace(result[start+len("{{#if") : tagEnd])
		blockStart := tagEnd + 2

		elseStart, elseEnd, endStart, endEnd := findConditionalBlock(result, blockStart)
		if endStart == -1 {
			return result
		}

		ifContent := result[blockStart:endStart]
		elseContent := ""
		if elseStart != -1 {
			ifContent = result[blockStart:elseStart]
			elseContent = result[elseEnd:endStart]
		}

		replacement := elseContent
		if strings.TrimSpace(vars[varName]) != "" {
			replacement = ifContent
		}
		result = result[:start] + replacement + result[endEnd:]
	}
}

// findConditionalBlock returns the else and /if tag bounds matching the
// {{#if}} whose body starts at start, honoring nesting.
func findConditionalBlock(input string, start int) (elseStart, elseEnd, endStart, endEnd int) {
	depth := 0
	elseStart, elseEnd = -1, -1

	pos := start
	for {
		openIdx := strings.Index(input[pos:], "{{")
		if openIdx == -1 {
			return -1, -1, -1, -1
		}
		openIdx += pos

		closeIdx := strings.Index(input[openIdx:], "}}")
		if closeIdx == -1 {
			return -1, -1, -1, -1
		}
		closeIdx += openIdx

		tag := strings.TrimSpace(input[openIdx+2 : closeIdx])
		switch {
		case tag == "#if" || strings.HasPrefix(tag, "#if "):
			depth++
		case tag == "/if":
			if depth == 0 {
				return elseStart, elseEnd, openIdx, closeIdx + 2
			}
			depth--
		case tag == "else" && depth == 0 && elseStart == -1:
			elseStart = openIdx
			elseEnd = closeIdx + 2
		}

		pos = closeIdx + 2
	}
}
