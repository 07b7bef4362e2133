// Package handler holds the request plumbing shared by the entity handlers.
package handler

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/authz"
	"github.com/jwalitptl/citizen-registry/internal/middleware"
	"github.com/jwalitptl/citizen-registry/internal/schema"
	"github.com/jwalitptl/citizen-registry/internal/service"
	apperrors "github.com/jwalitptl/citizen-registry/pkg/errors"
	"github.com/jwalitptl/citizen-registry/pkg/validator"
)

// BindDocument reads the request body as a JSON object.
func BindDocument(c *gin.Context) (schema.Document, error) {
	var doc schema.Document
	if err := json.NewDecoder(c.Request.Body).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewValidation("body", "request body is required")
		}
		return nil, apperrors.NewValidation("body", "request body must be a JSON object")
	}
	if doc == nil {
		return nil, apperrors.NewValidation("body", "request body must be a JSON object")
	}
	return doc, nil
}

// BindJSON binds a fixed request struct and maps binding failures onto the
// validation taxonomy.
func BindJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		if field, msg, ok := validator.FirstFieldError(err); ok {
			return apperrors.NewValidation(field, msg)
		}
		return apperrors.NewValidation("body", "request body must be a JSON object")
	}
	return nil
}

// PathID parses a path parameter as an identifier.
func PathID(c *gin.Context, name string) (uuid.UUID, error) {
	return service.ParseID(name, c.Param(name))
}

// QueryID parses an optional query identifier; absent yields nil.
func QueryID(c *gin.Context, name string) (*uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := service.ParseID(name, raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// RequireOwner rejects citizens acting on another citizen's record.
func RequireOwner(c *gin.Context, citizenID uuid.UUID) error {
	if !authz.Owns(middleware.IdentityFrom(c), citizenID.String()) {
		return apperrors.Forbidden("")
	}
	return nil
}
