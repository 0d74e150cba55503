package types

import (
	"encoding/json"
	"time"
)

// Roles recognised by the presence registry
const (
	RoleStudent   = "student"
	RoleCounselor = "counselor"
)

// ARCHITECTURAL DISCOVERY: Inbound event names form the client-to-server contract
const (
	EventUserConnected = "user_connected"
	EventSendMessage   = "send_message"
	EventReportStudent = "report_student"
	EventNewEvent      = "new_event"
)

// Outbound event names
const (
	EventCounselorStatusChange       = "counselor_status_change"
	EventStudentStatusChange         = "student_status_change"
	EventNewStudentMessage           = "new_student_message"
	EventReceiveMessage              = "receive_message"
	EventNewMessageNotification      = "new_message_notification"
	EventReportNotification          = "report_notification"
	EventCounselorReportNotification = "counselor_report_notification"
	EventNewEventNotification        = "new_event_notification"
	EventError                       = "error"
)

// Envelope is a single inbound WebSocket frame
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundEvent is a single outbound WebSocket frame
type OutboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Presence identifies who owns a registered connection
type Presence struct {
	Identity string `json:"identity"`
	Role     string `json:"role"`
}

// Registration is the payload of user_connected
type Registration struct {
	Identity    string `json:"identity"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName,omitempty"`
}

// ChatMessage is a chat event between a student and a counselor
// FUNCTIONAL DISCOVERY: Timestamp is normalized on decode; receive_message re-emits it as RFC 3339
type ChatMessage struct {
	StudentID    string    `json:"studentId"`
	CounselorID  string    `json:"counselorId"`
	Text         string    `json:"text"`
	SenderID     string    `json:"senderId"`
	Timestamp    time.Time `json:"timestamp"`
	SenderRole   string    `json:"senderRole"`
	ReceiverRole string    `json:"receiverRole"`
}

// MessageNotification is derived from every chat message
type MessageNotification struct {
	ReceiverID   string `json:"receiverId"`
	SenderID     string `json:"senderId"`
	Message      string `json:"message"`
	SenderRole   string `json:"senderRole"`
	ReceiverRole string `json:"receiverRole"`
}

// NewStudentMessage announces a freshly recorded student-counselor pairing
type NewStudentMessage struct {
	CounselorID string `json:"counselorId"`
	StudentID   string `json:"studentId"`
}

// Report is a moderation report against a student, addressed to a counselor
type Report struct {
	StudentID   string `json:"studentId"`
	CounselorID string `json:"counselorId"`
	Reason      string `json:"reason"`
}

// ReportNotification is sent to the targeted counselor only
type ReportNotification struct {
	StudentID   string    `json:"studentId"`
	CounselorID string    `json:"counselorId"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

// CounselorReportNotification is sent to every other online counselor
type CounselorReportNotification struct {
	StudentID  string    `json:"studentId"`
	ReportedBy string    `json:"reportedBy"`
	Timestamp  time.Time `json:"timestamp"`
}

// GenericEvent is rebroadcast verbatim; name and id are never interpreted
type GenericEvent struct {
	Name json.RawMessage `json:"name"`
	ID   json.RawMessage `json:"id"`
}

// EventNotification is the outbound form of GenericEvent
type EventNotification struct {
	EventName json.RawMessage `json:"eventName"`
	EventID   json.RawMessage `json:"eventId"`
}

// ErrorNotice tells a sender that its event was rejected
type ErrorNotice struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// Relationship is the persisted record of students who have messaged a counselor
// FUNCTIONAL DISCOVERY: Students are kept in insertion order and are unique by StudentID
type Relationship struct {
	CounselorID string                `json:"counselorId"`
	Name        string                `json:"name"`
	Students    []StudentConversation `json:"students"`
	CreatedAt   time.Time             `json:"createdAt"`
}

// StudentConversation is one entry of a counselor's student list
type StudentConversation struct {
	StudentID     string    `json:"studentId"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// HasStudent reports whether studentID is already in the list
func (r *Relationship) HasStudent(studentID string) bool {
	for _, s := range r.Students {
		if s.StudentID == studentID {
			return true
		}
	}
	return false
}

// AddStudent appends studentID unless present. Returns true when appended.
func (r *Relationship) AddStudent(studentID string, at time.Time) bool {
	if r.HasStudent(studentID) {
		return false
	}
	r.Students = append(r.Students, StudentConversation{StudentID: studentID, LastMessageAt: at})
	return true
}
