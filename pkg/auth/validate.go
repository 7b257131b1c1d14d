package auth

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/tendant/simple-idm-otp/pkg/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RegisterInput is the registration form.
type RegisterInput struct {
	FirstName string `json:"first_name" form:"first_name" validate:"required"`
	LastName  string `json:"last_name" form:"last_name" validate:"required"`
	Username  string `json:"username" form:"username" validate:"required"`
	Email     string `json:"email" form:"email" validate:"required"`
	Password1 string `json:"password1" form:"password1" validate:"required"`
	Password2 string `json:"password2" form:"password2" validate:"required,eqfield=Password1"`
}

// ResetPasswordInput is the password reset confirmation form.
type ResetPasswordInput struct {
	OTP       string `json:"otp" form:"otp" validate:"required"`
	Password1 string `json:"password1" form:"password1" validate:"required"`
	Password2 string `json:"password2" form:"password2" validate:"required,eqfield=Password1"`
}

// validateForm maps validator failures to domain errors. A missing field
// takes precedence over a mismatch.
func validateForm(input any) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	mismatch := false
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			return domain.ErrMissingFields
		case "eqfield":
			mismatch = true
		}
	}
	if mismatch {
		return domain.ErrPasswordMismatch
	}
	return err
}
