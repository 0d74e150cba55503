package conversation

import "errors"

var (
	ErrInvalidCounselorID = errors.New("invalid counselor ID format")
	ErrInvalidStudentID   = errors.New("invalid student ID format")
	ErrInvalidName        = errors.New("counselor name must be at most 200 characters")
)
