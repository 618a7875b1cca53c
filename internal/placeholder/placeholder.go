// Package placeholder finds and fills {{variable}} placeholders in prompt templates.
package placeholder

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
)

// pattern matches {{name}} where name is one or more word characters.
var pattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Variable is a distinct placeholder found in a template.
type Variable struct {
	Name        string `json:"name"`
	Placeholder string `json:"placeholder"`
}

// Extract returns each distinct variable in first-occurrence order.
func Extract(template string) []Variable {
	matches := pattern.FindAllStringSubmatch(template, -1)
	vars := make([]Variable, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		vars = append(vars, Variable{Name: name, Placeholder: m[0]})
	}
	return vars
}

// Names returns the distinct variable names in first-occurrence order.
func Names(template string) []string {
	vars := Extract(template)
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Name
	}
	return names
}

// Has reports whether template contains at least one placeholder.
func Has(template string) bool {
	return pattern.MatchString(template)
}

// Render replaces every placeholder with its value.
// Placeholders without a value render as the empty string.
// Values are inserted literally and are never rescanned for placeholders.
func Render(template string, values map[string]string) string {
	return pattern.ReplaceAllStringFunc(template, func(token string) string {
		// token is exactly "{{name}}".
		return values[token[2:len(token)-2]]
	})
}

// Missing returns the names that have no entry in values, in first-occurrence order.
func Missing(template string, values map[string]string) []string {
	var missing []string
	for _, v := range Extract(template) {
		if _, ok := values[v.Name]; !ok {
			missing = append(missing, v.Name)
		}
	}
	return missing
}

// RenderHTML renders the template with values and converts the
// result from Markdown to HTML for previews.
func RenderHTML(template string, values map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(Render(template, values)), &buf); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
