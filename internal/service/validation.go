package service

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var fieldMessages = map[string]string{
	"Name.required":           "Name is required",
	"Email.required":          "Please provide a valid email",
	"Email.email":             "Please provide a valid email",
	"Password.required":       "Password is required",
	"Password.min":            "Password must be at least 6 characters",
	"ConfirmPassword.eqfield": "Passwords do not match",
	"Role.oneof":              "Role must be user or admin",
}

// validateStruct runs the struct tags and converts the first failure into a
// ValidationError. fallback replaces the per-field message when set, so
// callers like login can keep their response generic.
func validateStruct(v any, fallback string) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: "Invalid input"}
	}

	first := fieldErrs[0]
	msg := fallback
	if msg == "" {
		var ok bool
		msg, ok = fieldMessages[first.Field()+"."+first.Tag()]
		if !ok {
			msg = "Invalid " + first.Field()
		}
	}
	return &ValidationError{Field: first.Field(), Message: msg}
}
