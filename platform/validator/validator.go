// Package validator checks tagged structs and reports failures as
// validation errors naming the offending fields.
package validator

import (
	"errors"
	"reflect"
	"strings"

	"leadflow_backend/platform/apperr"

	"github.com/go-playground/validator/v10"
)

// Validator wraps the go-playground validator with the notblank rule
// registered.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", notBlank)
	return &Validator{v: v}
}

// notBlank rejects strings that are empty after trimming whitespace.
func notBlank(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.String {
		return !field.IsZero()
	}
	return strings.TrimSpace(field.String()) != ""
}

// Struct validates s. Tag failures come back as an apperr validation error
// listing the failing fields in declaration order.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Wrap(apperr.KindInternal, "validate", err)
	}

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field()+" "+fe.Tag())
	}
	return apperr.Validation("invalid " + strings.Join(fields, ", "))
}
