package service

import (
	"errors"
	"fmt"

	"github.com/forgo/progression/internal/model"
)

// Centralized service layer errors.
// All errors returned by service methods are defined here or in model so that
// handlers can map them with errors.Is.

// ===== Progression Errors =====
var (
	ErrUserIDRequired      = errors.New("user id is required")
	ErrUnknownActivityType = errors.New("unknown activity type without dimension")
	ErrStateConflict       = fmt.Errorf("progression state modified concurrently: %w", model.ErrInvalidState)
)

// ===== Badge Errors =====
var (
	ErrBadgeNotFound       = model.ErrBadgeNotFound
	ErrDuplicateBadgeID    = fmt.Errorf("duplicate badge id: %w", model.ErrDataIntegrity)
	ErrUnknownPrerequisite = fmt.Errorf("unknown prerequisite badge: %w", model.ErrDataIntegrity)
	ErrInvalidRequirement  = fmt.Errorf("invalid badge requirement: %w", model.ErrDataIntegrity)
)

// ===== Query Errors =====
var (
	ErrUnsupportedQuery = model.ErrUnsupportedQuery
)
