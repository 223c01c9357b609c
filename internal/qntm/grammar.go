// Package qntm implements the QNTM key system: grammar, sanitization,
// LLM-backed generation, and the key reuse cache.
//
// A QNTM key is a ternary semantic address of the form
//
//	subject ~ predicate ~ object
//
// per the grammar:
//
//	relationship = expression "~" expression "~" expression
//	expression   = concept | collection
//	concept      = identifier [":" value]
//	identifier   = snake_case_word
//	collection   = "[" expression_list "]"
package qntm

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches a snake_case word: lowercase letters, digits,
// and underscores, starting with a letter.
var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Key is a parsed ternary QNTM relationship.
type Key struct {
	Subject   string
	Predicate string
	Object    string
}

// String renders the canonical form with required whitespace around "~".
func (k Key) String() string {
	return fmt.Sprintf("%s ~ %s ~ %s", k.Subject, k.Predicate, k.Object)
}

// ParseKey validates a raw key string against the ternary grammar and
// returns its parsed parts. Whitespace around "~" is tolerated on input
// (canonical form requires it, but the parser is lenient).
func ParseKey(raw string) (Key, error) {
	parts := strings.Split(raw, "~")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("qntm: key %q must have exactly three ~-separated parts, got %d", raw, len(parts))
	}

	subject := strings.TrimSpace(parts[0])
	predicate := strings.TrimSpace(parts[1])
	object := strings.TrimSpace(parts[2])

	if err := validateExpression(subject); err != nil {
		return Key{}, fmt.Errorf("qntm: invalid subject in %q: %w", raw, err)
	}
	if err := validateExpression(predicate); err != nil {
		return Key{}, fmt.Errorf("qntm: invalid predicate in %q: %w", raw, err)
	}
	if err := validateExpression(object); err != nil {
		return Key{}, fmt.Errorf("qntm: invalid object in %q: %w", raw, err)
	}

	return Key{Subject: subject, Predicate: predicate, Object: object}, nil
}

// validateExpression checks a single expression: either a concept
// ("identifier" or "identifier:value") or a bracketed collection
// ("[expr, expr, ...]").
func validateExpression(expr string) error {
	if expr == "" {
		return fmt.Errorf("empty expression")
	}
	if strings.HasPrefix(expr, "[") {
		if !strings.HasSuffix(expr, "]") {
			return fmt.Errorf("unterminated collection %q", expr)
		}
		inner := strings.TrimSuffix(strings.TrimPrefix(expr, "["), "]")
		if strings.TrimSpace(inner) == "" {
			return fmt.Errorf("empty collection")
		}
		for _, item := range strings.Split(inner, ",") {
			if err := validateConcept(strings.TrimSpace(item)); err != nil {
				return fmt.Errorf("collection item %q: %w", item, err)
			}
		}
		return nil
	}
	return validateConcept(expr)
}

// validateConcept checks "identifier" or "identifier:value".
func validateConcept(concept string) error {
	name, _, hasValue := strings.Cut(concept, ":")
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("identifier %q is not snake_case", name)
	}
	if hasValue {
		// value may be any non-empty text; no further grammar constraint.
	}
	return nil
}

// Valid reports whether raw parses as a well-formed QNTM key without
// returning the parse error.
func Valid(raw string) bool {
	_, err := ParseKey(raw)
	return err == nil
}
