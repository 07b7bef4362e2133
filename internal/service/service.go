// Package service holds helpers shared by the entity services.
package service

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/repository"
	"github.com/jwalitptl/citizen-registry/internal/schema"
	apperrors "github.com/jwalitptl/citizen-registry/pkg/errors"
	"github.com/jwalitptl/citizen-registry/pkg/validator"
)

// ParseID validates the shape of a path or query identifier before any store access.
func ParseID(field, raw string) (uuid.UUID, error) {
	if !validator.IsValidIdentifier(raw) {
		return uuid.Nil, apperrors.NewInvalidIdentifier(field)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.NewInvalidIdentifier(field)
	}
	return id, nil
}

// MapError translates repository sentinels into the API taxonomy. uniqueField
// names the field reported on a duplicate key.
func MapError(err error, resource, uniqueField string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, err)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewDuplicateKey(uniqueField, err)
	case errors.Is(err, repository.ErrStale):
		return apperrors.NewStaleStatus(resource, err)
	case errors.Is(err, repository.ErrReferenced):
		return apperrors.NewValidation(resource, "references a record that does not exist")
	}
	return apperrors.NewInternal(fmt.Errorf("%s: %w", resource, err))
}

// Optional fetches a related record for an expanded representation. A missing
// record yields nil; other errors are returned.
func Optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

// FieldNames lists the keys of an update in sorted order for event payloads.
func FieldNames(patch schema.Document) []string {
	names := make([]string, 0, len(patch))
	for k := range patch {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
