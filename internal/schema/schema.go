// Package schema holds the declarative constraint tables of every entity and
// enforces them on JSON documents before they reach a service.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "github.com/jwalitptl/citizen-registry/pkg/errors"
	"github.com/jwalitptl/citizen-registry/pkg/validator"
)

// Document is a decoded JSON object.
type Document = map[string]interface{}

// Violation describes a failed check. Field is relative to the checked value.
type Violation struct {
	Field   string
	Message string
}

// Check validates a single present value.
type Check func(v interface{}) *Violation

// Field is one row of a constraint table. Nested members use dotted paths and
// are only enforced when their parent object is present.
type Field struct {
	Path      string
	Required  bool
	Check     Check
	Default   func() interface{}
	Normalize func(v interface{}) interface{}
}

// Constraint is a cross-field rule evaluated after all fields pass. On update
// it runs only when one of Trigger is in the patch, against the merged document.
type Constraint struct {
	Field   string
	Trigger []string
	Check   func(doc Document, now time.Time) string
}

type Schema struct {
	Entity      string
	Fields      []Field
	Updatable   validator.Set[string]
	Constraints []Constraint
}

// ValidateCreate applies defaults, then checks required fields, field
// validators and constraints in definition order. The document is normalized
// in place.
func (s *Schema) ValidateCreate(doc Document, now time.Time) error {
	if doc == nil {
		return apperrors.NewValidation(s.Entity, "body must be a JSON object")
	}

	for _, f := range s.Fields {
		if f.Default == nil {
			continue
		}
		if _, ok := lookup(doc, f.Path); !ok && parentPresent(doc, f.Path) {
			set(doc, f.Path, f.Default())
		}
	}

	if err := s.checkFields(doc, nil); err != nil {
		return err
	}
	return s.checkConstraints(doc, nil, now)
}

// ValidateUpdate checks a partial update against the allow-list and the
// constraint table. Nothing is applied on failure. On success it returns the
// merged document.
func (s *Schema) ValidateUpdate(patch, current Document, now time.Time) (Document, error) {
	if len(patch) == 0 {
		return nil, apperrors.NewValidation(s.Entity, "update must contain at least one field")
	}

	for _, key := range s.orderedKeys(patch) {
		if !s.Updatable.Has(key) {
			return nil, apperrors.NewForbiddenField(key)
		}
	}

	present := make(map[string]bool, len(patch))
	for key := range patch {
		present[key] = true
	}
	if err := s.checkFields(patch, present); err != nil {
		return nil, err
	}

	merged := Merge(current, patch)
	if err := s.checkConstraints(merged, present, now); err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *Schema) checkFields(doc Document, only map[string]bool) error {
	for _, f := range s.Fields {
		if only != nil && !only[topLevel(f.Path)] {
			continue
		}
		if !parentPresent(doc, f.Path) {
			continue
		}

		v, ok := lookup(doc, f.Path)
		if !ok || v == nil || v == "" {
			if f.Required {
				return apperrors.NewValidation(f.Path, "is required")
			}
			continue
		}

		if f.Check != nil {
			if viol := f.Check(v); viol != nil {
				return apperrors.NewValidation(f.Path+viol.Field, viol.Message)
			}
		}
		if f.Normalize != nil {
			set(doc, f.Path, f.Normalize(v))
		}
	}
	return nil
}

func (s *Schema) checkConstraints(doc Document, only map[string]bool, now time.Time) error {
	for _, c := range s.Constraints {
		if only != nil && !triggered(c.Trigger, only) {
			continue
		}
		if msg := c.Check(doc, now); msg != "" {
			return apperrors.NewValidation(c.Field, msg)
		}
	}
	return nil
}

// orderedKeys lists patch keys in field-definition order, unknown keys last and sorted.
func (s *Schema) orderedKeys(patch Document) []string {
	seen := make(map[string]bool, len(patch))
	keys := make([]string, 0, len(patch))
	for _, f := range s.Fields {
		key := topLevel(f.Path)
		if _, ok := patch[key]; ok && !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	var rest []string
	for key := range patch {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func triggered(trigger []string, present map[string]bool) bool {
	for _, t := range trigger {
		if present[t] {
			return true
		}
	}
	return false
}

func topLevel(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

func parentPresent(doc Document, path string) bool {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return true
	}
	v, ok := lookup(doc, path[:i])
	if !ok || v == nil {
		return false
	}
	_, isObj := v.(map[string]interface{})
	return isObj
}

func lookup(doc Document, path string) (interface{}, bool) {
	var cur interface{} = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func set(doc Document, path string, v interface{}) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]interface{})
		if !ok {
			return
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// Get returns the value at a dotted path.
func Get(doc Document, path string) (interface{}, bool) {
	return lookup(doc, path)
}

// Merge overlays patch onto a copy of base. Top-level keys are replaced whole.
func Merge(base, patch Document) Document {
	merged := make(Document, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return merged
}

// ToDocument converts a typed value to its JSON document form.
func ToDocument(v interface{}) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// Decode converts a validated document into a typed value.
func Decode(doc Document, dst interface{}) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return apperrors.NewValidation("body", err.Error())
	}
	return nil
}
