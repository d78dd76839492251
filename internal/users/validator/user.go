package validator

import (
	"roombook/pkg/logger"
	"roombook/pkg/model"
	"roombook/pkg/validation"

	"github.com/go-playground/validator/v10"
)

type UserValidator struct {
	validate *validator.Validate
}

func NewUserValidator(log *logger.Logger) *UserValidator {
	v, err := validation.New()
	if err != nil {
		log.Fatal("Failed to initialize user validator", "error", err)
	}
	return &UserValidator{validate: v}
}

// ValidateCreate additionally requires a password.
func (v *UserValidator) ValidateCreate(input *model.UserInput) error {
	if err := v.Validate(input); err != nil {
		return err
	}
	if input.Password == "" {
		return validation.ValidationErrors{{Field: "password", Message: "password is required"}}
	}
	return nil
}

func (v *UserValidator) Validate(input *model.UserInput) error {
	return validation.Struct(v.validate, input)
}
