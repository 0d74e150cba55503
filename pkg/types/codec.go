package types

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Wire forms accept the field names used by the first web client
// (userId/userType/name, facultyId/senderType/receiverType) alongside the current ones.

type registrationWire struct {
	Identity    string `json:"identity"`
	Role        string `json:"role"`
	DisplayName string `json:"displayName"`
	UserID      string `json:"userId"`
	UserType    string `json:"userType"`
	Name        string `json:"name"`
}

// UnmarshalJSON decodes a registration, falling back to legacy field names
func (r *Registration) UnmarshalJSON(data []byte) error {
	var w registrationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Identity = firstNonEmpty(w.Identity, w.UserID)
	r.Role = firstNonEmpty(w.Role, w.UserType)
	r.DisplayName = firstNonEmpty(w.DisplayName, w.Name)
	return nil
}

type chatMessageWire struct {
	StudentID    string          `json:"studentId"`
	CounselorID  string          `json:"counselorId"`
	FacultyID    string          `json:"facultyId"`
	Text         string          `json:"text"`
	SenderID     string          `json:"senderId"`
	Timestamp    json.RawMessage `json:"timestamp"`
	SenderRole   string          `json:"senderRole"`
	SenderType   string          `json:"senderType"`
	ReceiverRole string          `json:"receiverRole"`
	ReceiverType string          `json:"receiverType"`
}

// UnmarshalJSON decodes a chat message. An unparseable timestamp is left zero.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var w chatMessageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.StudentID = w.StudentID
	m.CounselorID = firstNonEmpty(w.CounselorID, w.FacultyID)
	m.Text = w.Text
	m.SenderID = w.SenderID
	m.SenderRole = firstNonEmpty(w.SenderRole, w.SenderType)
	m.ReceiverRole = firstNonEmpty(w.ReceiverRole, w.ReceiverType)
	m.Timestamp = ParseTimestamp(w.Timestamp)
	return nil
}

// Zone-less layouts are read as UTC
var localTimestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Epoch milliseconds bounding years 0000 through 9999
const (
	minTimestampMillis = -62167219200000
	maxTimestampMillis = 253402300799999
)

// ParseTimestamp accepts an RFC 3339 string, a zone-less ISO 8601 string or
// epoch milliseconds. Anything else, including instants outside years
// 0000-9999, yields the zero time.
// TECHNICAL DISCOVERY: Browsers send Date.now() numbers or Date.toISOString() strings
func ParseTimestamp(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return InRange(t.UTC())
		}
		for _, layout := range localTimestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
		// numeric strings are treated as epoch milliseconds
		if ms, err := strconv.ParseFloat(s, 64); err == nil {
			return fromMillis(ms)
		}
		return time.Time{}
	}

	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}
	}
	return fromMillis(ms)
}

// InRange returns t, or the zero time when t cannot be encoded as RFC 3339
func InRange(t time.Time) time.Time {
	if y := t.Year(); y < 0 || y > 9999 {
		return time.Time{}
	}
	return t
}

func fromMillis(ms float64) time.Time {
	if math.IsNaN(ms) || ms < minTimestampMillis || ms > maxTimestampMillis {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
