// Package templates renders stored message templates with {{variable}}
// placeholders.
package templates

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render substitutes {{name}} placeholders in content with values from
// vars. Placeholders without a value render as empty strings.
func Render(content string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return vars[name]
	})
}

// Variables lists the distinct placeholder names in content, in order of
// first appearance.
func Variables(content string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(content, -1) {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Validate reports placeholder names in content that are not declared in
// the template's variable list.
func Validate(content string, declared []string) []string {
	allowed := make(map[string]bool, len(declared))
	for _, name := range declared {
		allowed[strings.TrimSpace(name)] = true
	}

	var undeclared []string
	for _, name := range Variables(content) {
		if !allowed[name] {
			undeclared = append(undeclared, name)
		}
	}
	return undeclared
}
