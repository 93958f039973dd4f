// Package tmpl provides template rendering utilities for scaffold files and
// hook commands.
package tmpl

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// shellQuote returns a shell-safe quoted string. It wraps the string in single
// quotes and escapes any existing single quotes using the '\" technique.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	// Replace ' with '\'' (end quote, escaped quote, start quote)
	escaped := strings.ReplaceAll(s, "'", `'\''`)
	return "'" + escaped + "'"
}

// Slugify converts a project name into a lowercase token that is safe for
// directory names, git repositories, and subdomains. Runs of spaces,
// underscores, dots, and dashes collapse into a single dash; anything else
// outside [a-z0-9] is dropped.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			pendingDash = true
		}
	}
	return b.String()
}

var funcs = template.FuncMap{
	"shq":   shellQuote,
	"join":  strings.Join,
	"slug":  Slugify,
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"year":  func() int { return time.Now().Year() },
}

// Render executes a Go template string with the given data.
// Returns an error if the template is invalid or references undefined keys.
//
// Available template functions:
//   - shq: Shell-quote a string for safe use in shell commands
//   - join: Join string slice with separator (e.g., join .Hosts " ")
//   - slug: Slugify a string (e.g., slug .Name)
//   - upper, lower: Change case
//   - year: Current four-digit year
func Render(tmpl string, data any) (string, error) {
	t, err := template.New("").Funcs(funcs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}
