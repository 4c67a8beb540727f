package convert

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrHandled is returned by a Converter in place of a ValidationError
// when the failure policy has already logged and (for ACKNOWLEDGE)
// acknowledged the message on the converter's behalf. The container
// checks for it with errors.Is and, when matched, skips both the user
// handler and the error handler - it is the Go stand-in for the
// source library's thrown ValidationHandled signal (spec §4.3, §7).
var ErrHandled = errors.New("convert: validation already handled")

// ConversionError reports malformed input the converter could not even
// parse (e.g. invalid JSON). Body is preserved so an error handler can
// log or inspect the raw payload.
type ConversionError struct {
	Body []byte
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert: malformed payload: %v", e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// FieldError is one failed constraint on one field.
type FieldError struct {
	// PropertyPath is a dotted path for nested fields and a
	// numeric-index path for array elements (e.g. "items[2].sku").
	PropertyPath string
	Constraints  []string
}

// ValidationError reports a successfully-decoded payload that failed
// schema validation. It exposes the raw per-field constraint map, a
// flattened field list, and a human-readable rendering, matching the
// three reporting shapes spec §4.3 requires.
type ValidationError struct {
	Body       []byte
	TargetType string
	ByField    map[string][]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("convert: validation failed for %s: %s", e.TargetType, e.renderLines(", "))
}

// Fields returns a flattened, deterministically-ordered view of ByField.
func (e *ValidationError) Fields() []FieldError {
	paths := make([]string, 0, len(e.ByField))
	for path := range e.ByField {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	out := make([]FieldError, 0, len(paths))
	for _, path := range paths {
		out = append(out, FieldError{PropertyPath: path, Constraints: e.ByField[path]})
	}
	return out
}

// Render produces a multiline, human-readable description of every
// failed constraint, one field per line.
func (e *ValidationError) Render() string {
	return e.renderLines("\n")
}

func (e *ValidationError) renderLines(sep string) string {
	fields := e.Fields()
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, fmt.Sprintf("%s: %s", f.PropertyPath, strings.Join(f.Constraints, ", ")))
	}
	return strings.Join(lines, sep)
}
