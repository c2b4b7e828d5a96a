// Package prompt renders worker prompts from role templates.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	varRe      = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)
	ifOpenRe   = regexp.MustCompile(`\{\{#if\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)
	ifCloseStr = "{{/if}}"
)

// OverrideDir is where a project may place its own templates, relative to
// the project root.
const OverrideDir = ".issuesmith/prompts"

// Vars maps template variable names to values.
type Vars map[string]string

// Render expands tmpl. {{name}} is replaced by its value and must be
// present in vars. {{#if name}}...{{/if}} keeps its body only when name is
// set and non-empty; blocks may nest. Values are inserted literally and
// never re-expanded.
func Render(tmpl string, vars Vars) (string, error) {
	result, err := resolveConditionals(tmpl, vars)
	if err != nil {
		return "", err
	}

	var missing []string
	expanded := varRe.ReplaceAllStringFunc(result, func(match string) string {
		name := varRe.FindStringSubmatch(match)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("missing template variables: %s", strings.Join(missing, ", "))
	}
	return expanded, nil
}

// resolveConditionals repeatedly pairs the first {{/if}} with the nearest
// {{#if}} before it, so inner blocks are settled before outer ones.
func resolveConditionals(tmpl string, vars Vars) (string, error) {
	result := tmpl
	for {
		closeIdx := strings.Index(result, ifCloseStr)
		if closeIdx == -1 {
			break
		}
		opens := ifOpenRe.FindAllStringSubmatchIndex(result[:closeIdx], -1)
		if opens == nil {
			return "", fmt.Errorf("dangling {{/if}} without matching {{#if}}")
		}
		loc := opens[len(opens)-1]
		name := result[loc[2]:loc[3]]

		var body string
		if val := vars[name]; val != "" {
			body = result[loc[1]:closeIdx]
		}
		result = result[:loc[0]] + body + result[closeIdx+len(ifCloseStr):]
	}

	if tag := ifOpenRe.FindString(result); tag != "" {
		return "", fmt.Errorf("unclosed conditional block: %s", tag)
	}
	return result, nil
}

// Load returns the template called name. A file under OverrideDir in
// projectRoot wins over the built-in template.
func Load(name, projectRoot string) (string, error) {
	if projectRoot != "" {
		dir := filepath.Join(projectRoot, OverrideDir)
		path := filepath.Join(dir, name)
		absDir, err1 := filepath.Abs(dir)
		absPath, err2 := filepath.Abs(path)
		if err1 == nil && err2 == nil && !strings.HasPrefix(absPath, absDir+string(filepath.Separator)) {
			return "", fmt.Errorf("template name %q escapes %s", name, OverrideDir)
		}
		if data, err := os.ReadFile(path); err == nil {
			return string(data), nil
		}
	}
	if tmpl, ok := builtinTemplates[name]; ok {
		return tmpl, nil
	}
	return "", fmt.Errorf("template %q not found", name)
}

// Build loads and renders a template in one step.
func Build(name, projectRoot string, vars Vars) (string, error) {
	tmpl, err := Load(name, projectRoot)
	if err != nil {
		return "", err
	}
	out, err := Render(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return out, nil
}

// Names lists the built-in template names.
func Names() []string {
	return []string{ExploreTemplate, ImplementTemplate, ReviewTemplate}
}
