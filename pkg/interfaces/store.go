package interfaces

import (
	"context"
	"time"

	"counselrelay/pkg/types"
)

// RelationshipStore persists the students each counselor has heard from
type RelationshipStore interface {
	// FindRelationship returns ErrRelationshipNotFound when the counselor has no record
	FindRelationship(ctx context.Context, counselorID string) (*types.Relationship, error)

	// SaveRelationship creates or updates the counselor record and adds any
	// students not yet stored. Stored students are never removed.
	SaveRelationship(ctx context.Context, rel *types.Relationship) error

	// AddStudentIfAbsent atomically appends studentID to the counselor's list.
	// Returns added=false when the student was already present and
	// ErrRelationshipNotFound when the counselor has no record.
	AddStudentIfAbsent(ctx context.Context, counselorID, studentID string, at time.Time) (added bool, err error)

	// HealthCheck verifies database connectivity
	HealthCheck(ctx context.Context) error
}
