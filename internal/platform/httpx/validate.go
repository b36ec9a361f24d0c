package httpx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/securhealth/portal/internal/shared"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags on v. Failures wrap shared.ErrValidation and
// name each offending field with the rule it broke.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	parts := make([]string, len(fields))
	for i, fe := range fields {
		parts[i] = fe.Field() + " " + fe.Tag()
	}
	return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(parts, ", "))
}
