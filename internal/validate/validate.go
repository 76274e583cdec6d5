// Package validate checks request payloads before they reach the auth core.
// Rules are declared as `validate` struct tags and evaluated with
// go-playground/validator; failures come back as field/reason pairs.
package validate

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/eldercare-auth/internal/apperr"
	"github.com/iliyamo/eldercare-auth/internal/model"
	"github.com/iliyamo/eldercare-auth/internal/security"
)

// Result is the outcome of validating one payload.
type Result struct {
	Fields []apperr.FieldError
}

// OK reports whether no field was rejected.
func (r Result) OK() bool { return len(r.Fields) == 0 }

// Err returns a VALIDATION error, or nil when r is OK.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return apperr.Validation(r.Fields...)
}

// Validator wraps a configured validator.Validate. It also satisfies
// echo.Validator.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator with the service's custom rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	})
	_ = v.RegisterValidation("selfrole", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		r, ok := model.ParseRole(s)
		return ok && r != model.RoleAdmin
	})
	return &Validator{v: v}
}

// Check validates the struct s.
func (x *Validator) Check(s any) Result {
	err := x.v.Struct(s)
	if err == nil {
		return Result{}
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Result{Fields: []apperr.FieldError{{Field: "body", Reason: "invalid"}}}
	}
	out := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, apperr.FieldError{Field: fe.Field(), Reason: reason(fe)})
	}
	return Result{Fields: out}
}

// Validate implements echo.Validator.
func (x *Validator) Validate(i any) error {
	return x.Check(i).Err()
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "password":
		return "must be 8 to 72 characters and contain an upper-case letter, a lower-case letter, a digit and one of @$!%*?&"
	case "selfrole":
		return "must be one of PATIENT, CAREGIVER, DOCTOR"
	default:
		return "is invalid"
	}
}

const passwordSpecials = "@$!%*?&"

// StrongPassword reports whether p has eight to 72 characters drawn only
// from letters, digits and @$!%*?&, with at least one of each class. 72 is
// the most bcrypt will hash.
func StrongPassword(p string) bool {
	if len(p) < 8 || len(p) > security.MaxSecretBytes {
		return false
	}
	var lower, upper, digit, special bool
	for _, r := range p {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		default:
			return false
		}
	}
	return lower && upper && digit && special
}
