package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"counselrelay/pkg/interfaces"
	"counselrelay/pkg/types"
)

// Stats counts bootstrap outcomes since startup
type Stats struct {
	Bootstrapped int64 `json:"bootstrapped"`
	Skipped      int64 `json:"skipped"`
	Failures     int64 `json:"failures"`
}

// Service records the first time a student writes to a counselor
// ARCHITECTURAL DISCOVERY: The store does the check-and-insert atomically,
// so concurrent first messages from one student yield a single record and
// a single new_student_message broadcast
type Service struct {
	store   interfaces.RelationshipStore
	emitter interfaces.Emitter
	timeout time.Duration
	now     func() time.Time

	bootstrapped atomic.Int64
	skipped      atomic.Int64
	failures     atomic.Int64
}

// NewService creates a bootstrap service; each call is bounded by timeout
func NewService(store interfaces.RelationshipStore, emitter interfaces.Emitter, timeout time.Duration) *Service {
	return &Service{
		store:   store,
		emitter: emitter,
		timeout: timeout,
		now:     time.Now,
	}
}

// Bootstrap adds studentID to counselorID's conversation list if it is not
// there yet and announces the new conversation. A counselor without a stored
// record is skipped. Returns whether a student was added.
func (s *Service) Bootstrap(ctx context.Context, counselorID, studentID string) (bool, error) {
	if !types.IsValidIdentity(counselorID) {
		s.failures.Add(1)
		return false, ErrInvalidCounselorID
	}
	if !types.IsValidIdentity(studentID) {
		s.failures.Add(1)
		return false, ErrInvalidStudentID
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	added, err := s.store.AddStudentIfAbsent(ctx, counselorID, studentID, s.now())
	switch {
	case errors.Is(err, interfaces.ErrRelationshipNotFound):
		s.skipped.Add(1)
		log.Printf("Conversation bootstrap skipped: no record for counselor %s", counselorID)
		return false, nil
	case err != nil:
		s.failures.Add(1)
		log.Printf("Conversation bootstrap failed for counselor %s, student %s: %v", counselorID, studentID, err)
		return false, fmt.Errorf("failed to add student %s to counselor %s: %w", studentID, counselorID, err)
	case !added:
		s.skipped.Add(1)
		return false, nil
	}

	s.bootstrapped.Add(1)
	log.Printf("New conversation: counselor %s, student %s", counselorID, studentID)
	s.emitter.Broadcast(types.EventNewStudentMessage, types.NewStudentMessage{
		CounselorID: counselorID,
		StudentID:   studentID,
	})
	return true, nil
}

// Relationship returns the stored conversation list for a counselor
func (s *Service) Relationship(ctx context.Context, counselorID string) (*types.Relationship, error) {
	if !types.IsValidIdentity(counselorID) {
		return nil, ErrInvalidCounselorID
	}
	return s.store.FindRelationship(ctx, counselorID)
}

// Provision creates a counselor record or renames an existing one.
// Stored students are left untouched.
func (s *Service) Provision(ctx context.Context, counselorID, name string) (*types.Relationship, error) {
	if !types.IsValidIdentity(counselorID) {
		return nil, ErrInvalidCounselorID
	}
	if len(name) > 200 {
		return nil, ErrInvalidName
	}

	rel := &types.Relationship{CounselorID: counselorID, Name: name, CreatedAt: s.now()}
	if err := s.store.SaveRelationship(ctx, rel); err != nil {
		return nil, fmt.Errorf("failed to provision counselor %s: %w", counselorID, err)
	}
	return s.store.FindRelationship(ctx, counselorID)
}

// Stats returns a point-in-time copy of the outcome counters
func (s *Service) Stats() Stats {
	return Stats{
		Bootstrapped: s.bootstrapped.Load(),
		Skipped:      s.skipped.Load(),
		Failures:     s.failures.Load(),
	}
}
