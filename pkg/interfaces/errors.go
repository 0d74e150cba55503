package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrRelationshipNotFound = errors.New("relationship not found")
)
