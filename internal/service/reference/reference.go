// Package reference checks that the records an entity points at exist.
package reference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/citizen-registry/internal/repository"
	apperrors "github.com/jwalitptl/citizen-registry/pkg/errors"
)

type Kind string

const (
	Citizen     Kind = "citizen"
	Institution Kind = "institution"
	Staff       Kind = "staff"
)

type Config struct {
	// TTL bounds how long a positive lookup is trusted.
	TTL             time.Duration
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		TTL:             30 * time.Second,
		CleanupInterval: 5 * time.Minute,
	}
}

// Checker caches positive existence lookups. Deletes must call Forget.
type Checker struct {
	citizens     repository.CitizenRepository
	institutions repository.InstitutionRepository
	staff        repository.StaffRepository
	cache        *cache.Cache
}

func NewChecker(
	citizens repository.CitizenRepository,
	institutions repository.InstitutionRepository,
	staff repository.StaffRepository,
	config Config,
) *Checker {
	return &Checker{
		citizens:     citizens,
		institutions: institutions,
		staff:        staff,
		cache:        cache.New(config.TTL, config.CleanupInterval),
	}
}

// Require fails with a ValidationError on field when id does not resolve.
func (c *Checker) Require(ctx context.Context, kind Kind, field string, id uuid.UUID) error {
	ok, err := c.Exists(ctx, kind, id)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if !ok {
		return apperrors.NewValidation(field, "does not exist")
	}
	return nil
}

func (c *Checker) Exists(ctx context.Context, kind Kind, id uuid.UUID) (bool, error) {
	key := cacheKey(kind, id)
	if _, found := c.cache.Get(key); found {
		return true, nil
	}

	var err error
	switch kind {
	case Citizen:
		_, err = c.citizens.Get(ctx, id)
	case Institution:
		_, err = c.institutions.Get(ctx, id)
	case Staff:
		_, err = c.staff.Get(ctx, id)
	default:
		return false, fmt.Errorf("unknown reference kind %q", kind)
	}

	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", kind, err)
	}

	c.cache.Set(key, struct{}{}, cache.DefaultExpiration)
	return true, nil
}

// Remember marks a freshly written record as existing.
func (c *Checker) Remember(kind Kind, id uuid.UUID) {
	c.cache.Set(cacheKey(kind, id), struct{}{}, cache.DefaultExpiration)
}

func (c *Checker) Forget(kind Kind, id uuid.UUID) {
	c.cache.Delete(cacheKey(kind, id))
}

func cacheKey(kind Kind, id uuid.UUID) string {
	return string(kind) + ":" + id.String()
}
