package validation

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/kilimopesa/internal/domain"
)

var (
	// usernameRegex mirrors the server's username rule: letters, digits and @.+-_
	usernameRegex = regexp.MustCompile(`^[\w.@+-]+$`)

	// codeRegex accepts the mailed verification code
	codeRegex = regexp.MustCompile(`^[0-9A-Za-z]{4,12}$`)
)

// ErrPasswordMismatch is reported on confirm_password when it differs
var ErrPasswordMismatch = errors.New("passwords do not match")

// NormalizeLogin trims the identifier; passwords are sent untouched
func NormalizeLogin(r domain.LoginRequest) domain.LoginRequest {
	r.Identifier = strings.TrimSpace(r.Identifier)
	return r
}

// NormalizeRegister trims username and email
func NormalizeRegister(r domain.RegisterRequest) domain.RegisterRequest {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	return r
}

// NormalizeVerify trims email and code
func NormalizeVerify(r domain.VerifyEmailRequest) domain.VerifyEmailRequest {
	r.Email = strings.TrimSpace(r.Email)
	r.Code = strings.TrimSpace(r.Code)
	return r
}

// ValidateLogin checks the login form before it is sent
func ValidateLogin(r domain.LoginRequest) error {
	return wrap(validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, validation.Length(1, 254)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 128)),
	))
}

// ValidateRegister checks the registration form. ConfirmPassword is only
// compared when the caller collected it.
func ValidateRegister(r domain.RegisterRequest) error {
	return wrap(validation.ValidateStruct(&r,
		validation.Field(&r.Username,
			validation.Required,
			validation.Length(1, 150),
			validation.Match(usernameRegex).Error("may contain only letters, numbers and @/./+/-/_"),
		),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.ConfirmPassword, validation.By(equalsPassword(r.Password))),
	))
}

// ValidateVerifyEmail checks the verification payload
func ValidateVerifyEmail(r domain.VerifyEmailRequest) error {
	return wrap(validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code,
			validation.Required,
			validation.Match(codeRegex).Error("must be the code from the verification email"),
		),
	))
}

// ValidateResend checks the resend-verification payload
func ValidateResend(r domain.ResendVerificationRequest) error {
	return wrap(validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	))
}

func equalsPassword(password string) validation.RuleFunc {
	return func(value interface{}) error {
		confirm, _ := value.(string)
		if confirm == "" {
			return nil
		}
		if confirm != password {
			return ErrPasswordMismatch
		}
		return nil
	}
}

// wrap converts ozzo errors into a VALIDATION_FAILED domain error
func wrap(err error) error {
	if err == nil {
		return nil
	}

	var errs validation.Errors
	if !errors.As(err, &errs) {
		return domain.WrapValidationError("", nil, err)
	}

	fields := make(map[string][]string, len(errs))
	for field, fieldErr := range errs {
		if fieldErr == nil {
			continue
		}
		fields[field] = []string{fieldErr.Error()}
	}
	return domain.WrapValidationError("", fields, err)
}
