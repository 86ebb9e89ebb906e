// Package sqlutil provides SQL helpers shared by the MySQL and SQLite store backends.
package sqlutil

import (
	"regexp"
	"strings"
)

// QuoteIdentifier quotes a table or column name with backticks.
// Both MySQL and SQLite accept backtick quoting. Embedded backticks are doubled.
// Example: "sources" -> "`sources`"
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var validIdentifierRegex = regexp.MustCompile("^[a-zA-Z0-9_]+$")

// IsValidIdentifier reports whether name contains only alphanumerics and underscores.
func IsValidIdentifier(name string) bool {
	return validIdentifierRegex.MatchString(name)
}

// QuoteIdentifierSafe quotes name after validating it.
// Table names come from configuration, so they are checked before use.
func QuoteIdentifierSafe(name string) (string, error) {
	if !IsValidIdentifier(name) {
		return "", &InvalidIdentifierError{Name: name}
	}
	return QuoteIdentifier(name), nil
}

// QuoteAll validates and quotes every name, stopping at the first invalid one.
func QuoteAll(names ...string) ([]string, error) {
	quoted := make([]string, len(names))
	for i, name := range names {
		q, err := QuoteIdentifierSafe(name)
		if err != nil {
			return nil, err
		}
		quoted[i] = q
	}
	return quoted, nil
}

// Placeholders returns n comma-separated bind markers, e.g. "?, ?, ?".
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// InvalidIdentifierError is returned when an identifier contains invalid characters.
type InvalidIdentifierError struct {
	Name string
}

func (e *InvalidIdentifierError) Error() string {
	return "invalid identifier: " + e.Name + " (must contain only alphanumeric characters and underscores)"
}
