package dtos

import (
	"github.com/go-playground/validator/v10"

	domainerrors "github.com/fintrellis/ledgercore/internal/domain/errors"
)

var validate = validator.New()

// Validate runs the struct tags of a command and converts the first failure
// into a domain validation error.
func Validate(cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}
	if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domainerrors.ValidationError{
			Field:   fe.Field(),
			Message: "failed validation rule '" + fe.Tag() + "'",
		}
	}
	return err
}
