package core

import (
	"github.com/go-playground/validator/v10"

	"rainbowwatch/internal/types"
)

// Validator wraps go-playground/validator for request-struct validation,
// translating field failures into structured AppErrors.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator with the struct-tag rule set.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// ValidateStruct checks dst against its validate tags. The first failing
// field is reported in the error details.
func (v *Validator) ValidateStruct(dst interface{}) error {
	err := v.validate.Struct(dst)
	if err == nil {
		return nil
	}

	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		first := verrs[0]
		return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"request validation failed", err,
			map[string]any{
				"field": first.Field(),
				"rule":  first.Tag(),
			})
	}
	return types.NewAppError(types.ErrCodeValidationMissingField,
		"request validation failed", err)
}
