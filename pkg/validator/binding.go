package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Tags registers the domain primitives as validator tags.
var Tags = map[string]validator.Func{
	"identifier": func(fl validator.FieldLevel) bool {
		return IsValidIdentifier(fl.Field().String())
	},
	"phone": func(fl validator.FieldLevel) bool {
		return IsValidPhone(fl.Field().String())
	},
	"personname": func(fl validator.FieldLevel) bool {
		return IsValidName(fl.Field().String())
	},
	"bloodtype": func(fl validator.FieldLevel) bool {
		return IsValidBloodType(fl.Field().String())
	},
}

// Register installs the custom tags and reports JSON names in field errors.
func Register(v *validator.Validate) error {
	for tag, fn := range Tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return nil
}

// FirstFieldError returns the JSON field name and a message for the first
// failing field of a validator.ValidationErrors value.
func FirstFieldError(err error) (string, string, bool) {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return "", "", false
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field(), "is required", true
	case "email":
		return fe.Field(), "invalid email", true
	case "identifier":
		return fe.Field(), "invalid identifier", true
	case "min":
		return fe.Field(), fmt.Sprintf("must be at least %s characters", fe.Param()), true
	case "max":
		return fe.Field(), fmt.Sprintf("must be at most %s characters", fe.Param()), true
	default:
		return fe.Field(), fmt.Sprintf("failed %s validation", fe.Tag()), true
	}
}
