package validator

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FacialVectorSize is the number of components of a face embedding.
const FacialVectorSize = 128

// DateLayout is the calendar date format accepted alongside RFC 3339.
const DateLayout = "2006-01-02"

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	nameRegex  = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	urlRegex   = regexp.MustCompile(`^https?://[^\s/$.?#][^\s]*$`)
)

// Set is an immutable membership set built once at package init.
type Set[T comparable] map[T]struct{}

// NewSet builds a Set from its members.
func NewSet[T comparable](members ...T) Set[T] {
	s := make(Set[T], len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return s
}

// Has reports whether v is a member of s.
func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// BloodTypes lists the accepted ABO/Rh blood groups.
var BloodTypes = NewSet("A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-")

// IsMember reports whether v is in set. A nil set has no members.
func IsMember[T comparable](v T, set Set[T]) bool {
	if set == nil {
		return false
	}
	return set.Has(v)
}

// IsMemberString is IsMember for untyped values, as decoded from JSON.
func IsMemberString(v interface{}, set Set[string]) bool {
	s, ok := v.(string)
	if !ok || s == "" {
		return false
	}
	return IsMember(s, set)
}

// IsValidIdentifier reports whether id is a canonical resource identifier.
func IsValidIdentifier(id interface{}) bool {
	switch v := id.(type) {
	case string:
		if len(v) != 36 {
			return false
		}
		_, err := uuid.Parse(v)
		return err == nil
	case uuid.UUID:
		return v != uuid.Nil
	default:
		return false
	}
}

func IsValidEmail(v interface{}) bool {
	s, ok := v.(string)
	return ok && emailRegex.MatchString(s)
}

func IsValidPhone(v interface{}) bool {
	s, ok := v.(string)
	return ok && phoneRegex.MatchString(s)
}

func IsValidName(v interface{}) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != "" && nameRegex.MatchString(s)
}

func IsValidURL(v interface{}) bool {
	s, ok := v.(string)
	return ok && urlRegex.MatchString(s)
}

// ParseDate parses RFC 3339 timestamps and plain calendar dates.
func ParseDate(v interface{}) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, !d.IsZero()
	case *time.Time:
		if d == nil {
			return time.Time{}, false
		}
		return *d, !d.IsZero()
	case string:
		if d == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339Nano, d); err == nil {
			return t, true
		}
		if t, err := time.Parse(DateLayout, d); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func IsValidDate(v interface{}) bool {
	_, ok := ParseDate(v)
	return ok
}

func IsValidBloodType(v interface{}) bool {
	return IsMemberString(v, BloodTypes)
}

// IsValidFacialVector reports whether v holds exactly FacialVectorSize finite numbers.
func IsValidFacialVector(v interface{}) bool {
	switch vec := v.(type) {
	case []float64:
		if len(vec) != FacialVectorSize {
			return false
		}
		for _, f := range vec {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return false
			}
		}
		return true
	case []interface{}:
		if len(vec) != FacialVectorSize {
			return false
		}
		for _, item := range vec {
			if _, ok := ToFloat(item); !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ToFloat converts JSON-decoded numbers to float64.
func ToFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
