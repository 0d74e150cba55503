package types

import (
	"fmt"
	"regexp"
)

// FUNCTIONAL DISCOVERY: Identities are either opaque user IDs or counselor email addresses
var identityRegex = regexp.MustCompile(`^[a-zA-Z0-9._@+-]+$`)

const (
	maxIdentityLength = 254
	maxTextBytes      = 65536
	maxReasonBytes    = 4096
)

// IsValidIdentity checks that an identity is non-empty, bounded and printable
func IsValidIdentity(identity string) bool {
	if len(identity) < 1 || len(identity) > maxIdentityLength {
		return false
	}
	return identityRegex.MatchString(identity)
}

// IsValidRole reports whether role is student or counselor
func IsValidRole(role string) bool {
	return role == RoleStudent || role == RoleCounselor
}

// Validate checks a registration before it reaches the presence registry
func (r *Registration) Validate() error {
	if !IsValidIdentity(r.Identity) {
		return ErrInvalidIdentity
	}
	if !IsValidRole(r.Role) {
		return ErrInvalidRole
	}
	return nil
}

// Validate checks a chat message at the transport boundary
func (m *ChatMessage) Validate() error {
	if m.StudentID == "" {
		return ErrMissingStudentID
	}
	if m.CounselorID == "" {
		return ErrMissingCounselorID
	}
	if !IsValidIdentity(m.StudentID) {
		return fmt.Errorf("studentId: %w", ErrInvalidIdentity)
	}
	if !IsValidIdentity(m.CounselorID) {
		return fmt.Errorf("counselorId: %w", ErrInvalidIdentity)
	}
	if !IsValidRole(m.SenderRole) {
		return fmt.Errorf("senderRole: %w", ErrInvalidRole)
	}
	if !IsValidRole(m.ReceiverRole) {
		return fmt.Errorf("receiverRole: %w", ErrInvalidRole)
	}
	if m.SenderRole == m.ReceiverRole {
		return ErrSameRoles
	}
	if len(m.Text) > maxTextBytes {
		return ErrTextTooLarge
	}
	return nil
}

// IsFirstContactCandidate reports whether the message is student -> counselor
func (m *ChatMessage) IsFirstContactCandidate() bool {
	return m.SenderRole == RoleStudent && m.ReceiverRole == RoleCounselor
}

// Parties returns the receiving and sending identities of the message
func (m *ChatMessage) Parties() (receiverID, senderID string) {
	if m.ReceiverRole == RoleCounselor {
		return m.CounselorID, m.StudentID
	}
	return m.StudentID, m.CounselorID
}

// Notification derives the new_message_notification payload
func (m *ChatMessage) Notification() MessageNotification {
	receiverID, senderID := m.Parties()
	return MessageNotification{
		ReceiverID:   receiverID,
		SenderID:     senderID,
		Message:      m.Text,
		SenderRole:   m.SenderRole,
		ReceiverRole: m.ReceiverRole,
	}
}

// Validate checks a report at the transport boundary
func (r *Report) Validate() error {
	if r.StudentID == "" {
		return ErrMissingStudentID
	}
	if r.CounselorID == "" {
		return ErrMissingCounselorID
	}
	if len(r.Reason) > maxReasonBytes {
		return ErrReasonTooLarge
	}
	return nil
}
