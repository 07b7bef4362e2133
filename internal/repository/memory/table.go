// Package memory implements the repository ports in process memory. It backs
// tests and the "memory" store driver.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/repository"
)

// table is a copy-on-read map of records guarded by a RWMutex.
type table[T any] struct {
	mu    sync.RWMutex
	rows  map[uuid.UUID]*T
	clone func(*T) *T
}

func newTable[T any](clone func(*T) *T) *table[T] {
	return &table[T]{
		rows:  make(map[uuid.UUID]*T),
		clone: clone,
	}
}

// insert stores v unless its id exists or conflicts reports a clash with an existing row.
func (t *table[T]) insert(id uuid.UUID, v *T, conflicts func(existing *T) bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.rows[id]; ok {
		return repository.ErrDuplicate
	}
	if conflicts != nil {
		for _, existing := range t.rows {
			if conflicts(existing) {
				return repository.ErrDuplicate
			}
		}
	}
	t.rows[id] = t.clone(v)
	return nil
}

func (t *table[T]) replace(id uuid.UUID, v *T, conflicts func(existing *T) bool) error {
	return t.update(id, conflicts, func(*T) (*T, error) { return v, nil })
}

// update stores next(stored) under the write lock. next sees the live row and
// may return an error to leave it unchanged.
func (t *table[T]) update(id uuid.UUID, conflicts func(existing *T) bool, next func(stored *T) (*T, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	stored, ok := t.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if conflicts != nil {
		for otherID, existing := range t.rows {
			if otherID != id && conflicts(existing) {
				return repository.ErrDuplicate
			}
		}
	}
	v, err := next(stored)
	if err != nil {
		return err
	}
	t.rows[id] = t.clone(v)
	return nil
}

func (t *table[T]) get(id uuid.UUID) (*T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t.clone(v), nil
}

func (t *table[T]) find(match func(*T) bool) (*T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, v := range t.rows {
		if match(v) {
			return t.clone(v), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *table[T]) remove(id uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.rows[id]; !ok {
		return repository.ErrNotFound
	}
	delete(t.rows, id)
	return nil
}

func (t *table[T]) scan(match func(*T) bool) []*T {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*T, 0)
	for _, v := range t.rows {
		if match == nil || match(v) {
			out = append(out, t.clone(v))
		}
	}
	return out
}

func (t *table[T]) count(match func(*T) bool) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, v := range t.rows {
		if match == nil || match(v) {
			n++
		}
	}
	return n
}

// newestFirst orders by key descending, ties broken by ascending id.
func newestFirst[T any](items []*T, key func(*T) (time.Time, uuid.UUID)) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return idi.String() < idj.String()
	})
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func sameID(a *uuid.UUID, b uuid.UUID) bool {
	return a == nil || *a == b
}
