package convert

import (
	"errors"
	"fmt"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"go.sqslistener.dev/internal/common/logging"
)

// fieldValidator wraps go-playground/validator/v10, the pluggable
// schema-validation capability named in the domain stack (spec §4). A
// nil *fieldValidator on a converter means validation is disabled -
// the closest Go analogue of the source library's "is this optional
// capability installed" discovery.
type fieldValidator struct {
	v *validatorv10.Validate
}

func newFieldValidator() *fieldValidator {
	return &fieldValidator{v: validatorv10.New()}
}

// check runs struct validation and, on failure, builds a
// *ValidationError exposing the raw per-field map, flattened list, and
// rendering the spec requires (§4.3 "Constraint reporting"). If the
// capability itself fails - Validate.Struct returning something other
// than field-level ValidationErrors, e.g. InvalidValidationError for a
// nil or non-struct target - that is logged and treated as no errors
// rather than as a validation failure (spec §4.3, fail-open).
func (f *fieldValidator) check(target any, body []byte, logger logging.Logger) *ValidationError {
	err := f.v.Struct(target)
	if err == nil {
		return nil
	}

	var fieldErrs validatorv10.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		logger.Warn().Err(err).Msg("validator failed before producing field errors, treating message as valid")
		return nil
	}

	byField := map[string][]string{}
	for _, fe := range fieldErrs {
		path := fieldPath(fe)
		byField[path] = append(byField[path], fe.Tag())
	}

	return &ValidationError{
		Body:       body,
		TargetType: fmt.Sprintf("%T", target),
		ByField:    byField,
	}
}

// fieldPath turns a validator namespace like "Order.Items[2].SKU" into
// a dotted, struct-name-free path ("Items[2].SKU") matching the
// "dotted paths for nested objects, numeric-index paths for array
// elements" requirement.
func fieldPath(fe validatorv10.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx != -1 {
		return ns[idx+1:]
	}
	return ns
}
