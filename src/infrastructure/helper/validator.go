package helper

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator maps validator tags to human-readable error messages
type Validator interface {
	GetErrorMsg(fe validator.FieldError) string
}

type fieldValidator struct{}

func NewValidator() Validator {
	return &fieldValidator{}
}

func (v *fieldValidator) GetErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		return fmt.Sprintf("Should be at least %s characters long", fe.Param())
	case "max":
		return fmt.Sprintf("Should be at most %s characters long", fe.Param())
	case "gt":
		return fmt.Sprintf("Should be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("Should be one of: %s", fe.Param())
	case "e164":
		return "Should be a phone number in international format"
	}
	return "Unknown validation error"
}
