package users

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/accounts/internal/credential"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validator checks create and update input before any SQL is issued.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator with the account specific rules registered.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("pwbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= credential.MaxPasswordBytes
	})
	return &Validator{validate: v}
}

// NormalizeCreate trims surrounding whitespace and lower-cases the identifiers.
func NormalizeCreate(in CreateInput) CreateInput {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Username = normalizeIdentifier(in.Username)
	in.Email = normalizeIdentifier(in.Email)
	return in
}

// NormalizeUpdate applies NormalizeCreate rules to the supplied fields.
func NormalizeUpdate(in UpdateInput) UpdateInput {
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		in.FullName = &name
	}
	if in.Email != nil {
		email := normalizeIdentifier(*in.Email)
		in.Email = &email
	}
	return in
}

// Create validates normalised create input.
func (v *Validator) Create(in CreateInput) error {
	return v.check(in)
}

// Update validates normalised update input.
func (v *Validator) Update(in UpdateInput) error {
	return v.check(in)
}

// Username reports whether a normalised username is well formed.
func (v *Validator) Username(username string) bool {
	return v.validate.Var(username, "required,min=3,max=20,username") == nil
}

func (v *Validator) check(in any) error {
	err := v.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Fields: map[string]string{"input": "is malformed"}}
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		if _, seen := fields[fe.Field()]; seen {
			continue
		}
		fields[fe.Field()] = describe(fe)
	}
	return &ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "email":
		return "must be a valid email address"
	case "username":
		return "may only contain letters, digits, underscores and hyphens"
	case "pwbytes":
		return "is too long"
	default:
		return "is invalid"
	}
}

func normalizeIdentifier(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}
