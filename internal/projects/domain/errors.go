package domain

import (
	"errors"

	"github.com/schemati/schemati-backend/internal/diagram"
)

var (
	ErrNotFound    = errors.New("project not found")
	ErrInvalidName = errors.New("project name is required")
	// ErrInvalidFormat is returned by imports missing nodes or connections.
	ErrInvalidFormat = diagram.ErrInvalidFormat
)
