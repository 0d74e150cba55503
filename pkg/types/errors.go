package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-facing error notices on the wire
var (
	ErrInvalidIdentity    = errors.New("identity must be 1-254 characters: letters, digits and . _ @ + -")
	ErrInvalidRole        = errors.New("role must be 'student' or 'counselor'")
	ErrMissingStudentID   = errors.New("studentId is required")
	ErrMissingCounselorID = errors.New("counselorId is required")
	ErrSameRoles          = errors.New("senderRole and receiverRole must differ")
	ErrTextTooLarge       = errors.New("message text exceeds 64KB limit")
	ErrReasonTooLarge     = errors.New("report reason exceeds 4KB limit")
)
