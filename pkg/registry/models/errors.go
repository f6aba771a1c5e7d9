package models

import "errors"

// Common errors for registry operations.
var (
	// Principal errors
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrDuplicatePrincipal = errors.New("principal already exists")

	// Host provision errors
	ErrProvisionNotFound = errors.New("host provision not found")
)
