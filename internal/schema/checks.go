package schema

import (
	"fmt"
	"math"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/jwalitptl/citizen-registry/pkg/validator"
)

var clockRegex = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

func violation(format string, args ...interface{}) *Violation {
	return &Violation{Message: fmt.Sprintf(format, args...)}
}

func str(min, max int) Check {
	return func(v interface{}) *Violation {
		s, ok := v.(string)
		if !ok {
			return violation("must be a string")
		}
		n := utf8.RuneCountInString(s)
		if min > 0 && n < min {
			return violation("must be at least %d characters", min)
		}
		if max > 0 && n > max {
			return violation("must be at most %d characters", max)
		}
		return nil
	}
}

func predicate(fn func(interface{}) bool, msg string) Check {
	return func(v interface{}) *Violation {
		if !fn(v) {
			return violation(msg)
		}
		return nil
	}
}

var (
	name       = predicate(validator.IsValidName, "must contain only letters and spaces")
	email      = predicate(validator.IsValidEmail, "invalid email")
	phone      = predicate(validator.IsValidPhone, "invalid phone number")
	url        = predicate(validator.IsValidURL, "invalid URL")
	identifier = predicate(validator.IsValidIdentifier, "invalid identifier")
	date       = predicate(validator.IsValidDate, "invalid date")
	bloodType  = predicate(validator.IsValidBloodType, "invalid blood type")
	facial     = predicate(validator.IsValidFacialVector, fmt.Sprintf("must contain exactly %d numbers", validator.FacialVectorSize))
	clock      = predicate(func(v interface{}) bool {
		s, ok := v.(string)
		return ok && clockRegex.MatchString(s)
	}, "must be a time of day in HH:MM format")
)

func enum(set validator.Set[string]) Check {
	return func(v interface{}) *Violation {
		if !validator.IsMemberString(v, set) {
			return violation("invalid value %v", v)
		}
		return nil
	}
}

func boolean(v interface{}) *Violation {
	if _, ok := v.(bool); !ok {
		return violation("must be a boolean")
	}
	return nil
}

func object(v interface{}) *Violation {
	if _, ok := v.(map[string]interface{}); !ok {
		return violation("must be an object")
	}
	return nil
}

func intRange(min, max float64) Check {
	return func(v interface{}) *Violation {
		f, ok := validator.ToFloat(v)
		if !ok || f != math.Trunc(f) {
			return violation("must be an integer")
		}
		if f < min {
			return violation("must be at least %v", min)
		}
		if max >= min && f > max {
			return violation("must be at most %v", max)
		}
		return nil
	}
}

func number(min float64) Check {
	return func(v interface{}) *Violation {
		f, ok := validator.ToFloat(v)
		if !ok {
			return violation("must be a number")
		}
		if f < min {
			return violation("must be at least %v", min)
		}
		return nil
	}
}

// listOf validates each element of an array with check.
func listOf(check Check) Check {
	return func(v interface{}) *Violation {
		items, ok := v.([]interface{})
		if !ok {
			return violation("must be an array")
		}
		for i, item := range items {
			if viol := check(item); viol != nil {
				return &Violation{Field: fmt.Sprintf("[%d]%s", i, viol.Field), Message: viol.Message}
			}
		}
		return nil
	}
}

// member is a field of an element object checked by objectOf.
type member struct {
	name     string
	required bool
	check    Check
}

func objectOf(members ...member) Check {
	return func(v interface{}) *Violation {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return violation("must be an object")
		}
		for _, m := range members {
			val, ok := obj[m.name]
			if !ok || val == nil || val == "" {
				if m.required {
					return &Violation{Field: "." + m.name, Message: "is required"}
				}
				continue
			}
			if m.check == nil {
				continue
			}
			if viol := m.check(val); viol != nil {
				return &Violation{Field: "." + m.name + viol.Field, Message: viol.Message}
			}
		}
		return nil
	}
}

// normalizeDate rewrites any accepted date form as RFC 3339.
func normalizeDate(v interface{}) interface{} {
	t, ok := validator.ParseDate(v)
	if !ok {
		return v
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// normalizeMemberDates rewrites the key member of each array element as RFC 3339.
func normalizeMemberDates(key string) func(v interface{}) interface{} {
	return func(v interface{}) interface{} {
		items, ok := v.([]interface{})
		if !ok {
			return v
		}
		for _, item := range items {
			if m, ok := item.(map[string]interface{}); ok {
				if raw, ok := m[key]; ok {
					m[key] = normalizeDate(raw)
				}
			}
		}
		return v
	}
}

// timeAt reads a date at path from a merged document.
func timeAt(doc Document, path string) (time.Time, bool) {
	v, ok := lookup(doc, path)
	if !ok || v == nil {
		return time.Time{}, false
	}
	return validator.ParseDate(v)
}
