package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIsValidIdentity(t *testing.T) {
	tests := []struct {
		identity string
		want     bool
	}{
		{"alice", true},
		{"dr.bob@x.org", true},
		{"student_42-b", true},
		{"first+tag@uni.edu", true},
		{"", false},
		{"has space", false},
		{"semi;colon", false},
		{strings.Repeat("a", 254), true},
		{strings.Repeat("a", 255), false},
	}

	for _, tt := range tests {
		if got := IsValidIdentity(tt.identity); got != tt.want {
			t.Errorf("IsValidIdentity(%q) = %v, want %v", tt.identity, got, tt.want)
		}
	}
}

func TestRegistration_LegacyFields(t *testing.T) {
	var r Registration
	if err := json.Unmarshal([]byte(`{"userId":"alice","userType":"student","name":"Alice"}`), &r); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if r.Identity != "alice" || r.Role != RoleStudent || r.DisplayName != "Alice" {
		t.Errorf("unexpected registration: %+v", r)
	}

	// Current field names win over legacy ones
	if err := json.Unmarshal([]byte(`{"identity":"bob","userId":"alice","role":"counselor"}`), &r); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if r.Identity != "bob" || r.Role != RoleCounselor {
		t.Errorf("unexpected registration: %+v", r)
	}
}

func TestRegistration_Validate(t *testing.T) {
	tests := []struct {
		name    string
		reg     Registration
		wantErr error
	}{
		{"valid student", Registration{Identity: "alice", Role: RoleStudent}, nil},
		{"valid counselor", Registration{Identity: "dr.bob@x.org", Role: RoleCounselor}, nil},
		{"missing identity", Registration{Role: RoleStudent}, ErrInvalidIdentity},
		{"unknown role", Registration{Identity: "alice", Role: "admin"}, ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.reg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestChatMessage_Decode(t *testing.T) {
	payload := `{
		"studentId": "alice",
		"facultyId": "dr.bob@x.org",
		"text": "hi",
		"senderId": "alice",
		"timestamp": "2024-03-01T10:00:00.000Z",
		"senderType": "student",
		"receiverType": "counselor"
	}`

	var m ChatMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if m.CounselorID != "dr.bob@x.org" {
		t.Errorf("expected facultyId alias to fill CounselorID, got %q", m.CounselorID)
	}
	if m.SenderRole != RoleStudent || m.ReceiverRole != RoleCounselor {
		t.Errorf("expected legacy role aliases, got %q -> %q", m.SenderRole, m.ReceiverRole)
	}
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if !m.Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, m.Timestamp)
	}
}

func TestParseTimestamp_DateOnly(t *testing.T) {
	got := ParseTimestamp(json.RawMessage(`"2026-03-01"`))
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestInRange(t *testing.T) {
	inside := time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	if got := InRange(inside); !got.Equal(inside) {
		t.Errorf("expected %v unchanged, got %v", inside, got)
	}
	if got := InRange(inside.Add(time.Second)); !got.IsZero() {
		t.Errorf("expected zero time past year 9999, got %v", got)
	}
}

func TestParseTimestamp(t *testing.T) {
	ms := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name string
		raw  string
		zero bool
	}{
		{"rfc3339 string", `"2024-03-01T10:00:00Z"`, false},
		{"epoch millis", `1709287200000`, false},
		{"epoch millis string", `"1709287200000"`, false},
		{"zone-less iso string", `"2024-03-01T10:00:00"`, false},
		{"zone-less iso minutes", `"2024-03-01T10:00"`, false},
		{"beyond year 9999", `1000000000000000`, true},
		{"beyond year 9999 string", `"1000000000000000"`, true},
		{"before year 0", `-100000000000000`, true},
		{"overflows int64", `1e300`, true},
		{"overflows int64 negative", `-1e300`, true},
		{"nan string", `"NaN"`, true},
		{"null", `null`, true},
		{"empty", ``, true},
		{"garbage string", `"yesterday"`, true},
		{"object", `{}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTimestamp(json.RawMessage(tt.raw))
			if tt.zero {
				if !got.IsZero() {
					t.Errorf("expected zero time, got %v", got)
				}
				return
			}
			if got.UnixMilli() != ms {
				t.Errorf("expected %d ms, got %d", ms, got.UnixMilli())
			}
		})
	}
}

func TestChatMessage_Validate(t *testing.T) {
	valid := ChatMessage{
		StudentID:    "alice",
		CounselorID:  "dr.bob@x.org",
		Text:         "hi",
		SenderRole:   RoleStudent,
		ReceiverRole: RoleCounselor,
	}

	tests := []struct {
		name    string
		mutate  func(m *ChatMessage)
		wantErr error
	}{
		{"valid", func(m *ChatMessage) {}, nil},
		{"missing student", func(m *ChatMessage) { m.StudentID = "" }, ErrMissingStudentID},
		{"missing counselor", func(m *ChatMessage) { m.CounselorID = "" }, ErrMissingCounselorID},
		{"bad counselor", func(m *ChatMessage) { m.CounselorID = "dr bob" }, ErrInvalidIdentity},
		{"bad sender role", func(m *ChatMessage) { m.SenderRole = "" }, ErrInvalidRole},
		{"same roles", func(m *ChatMessage) { m.ReceiverRole = RoleStudent }, ErrSameRoles},
		{"text too large", func(m *ChatMessage) { m.Text = strings.Repeat("x", 65537) }, ErrTextTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.mutate(&m)
			if err := m.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestChatMessage_Notification(t *testing.T) {
	toCounselor := ChatMessage{
		StudentID:    "alice",
		CounselorID:  "dr.bob@x.org",
		Text:         "hi",
		SenderRole:   RoleStudent,
		ReceiverRole: RoleCounselor,
	}
	n := toCounselor.Notification()
	if n.ReceiverID != "dr.bob@x.org" || n.SenderID != "alice" || n.Message != "hi" {
		t.Errorf("unexpected notification: %+v", n)
	}

	toStudent := toCounselor
	toStudent.SenderRole, toStudent.ReceiverRole = RoleCounselor, RoleStudent
	n = toStudent.Notification()
	if n.ReceiverID != "alice" || n.SenderID != "dr.bob@x.org" {
		t.Errorf("unexpected notification: %+v", n)
	}
	if n.SenderRole != RoleCounselor || n.ReceiverRole != RoleStudent {
		t.Errorf("roles not carried: %+v", n)
	}
}

func TestRelationship_AddStudent(t *testing.T) {
	rel := &Relationship{CounselorID: "dr.bob@x.org"}
	now := time.Now()

	if !rel.AddStudent("alice", now) {
		t.Fatal("first add should append")
	}
	if rel.AddStudent("alice", now.Add(time.Minute)) {
		t.Error("second add of same student should be a no-op")
	}
	rel.AddStudent("carl", now)

	if len(rel.Students) != 2 {
		t.Fatalf("expected 2 students, got %d", len(rel.Students))
	}
	if rel.Students[0].StudentID != "alice" || rel.Students[1].StudentID != "carl" {
		t.Errorf("insertion order not kept: %+v", rel.Students)
	}
}

func TestGenericEvent_Verbatim(t *testing.T) {
	var ev GenericEvent
	if err := json.Unmarshal([]byte(`{"name":"Wellness Week","id":42}`), &ev); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	out, err := json.Marshal(EventNotification{EventName: ev.Name, EventID: ev.ID})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `{"eventName":"Wellness Week","eventId":42}` {
		t.Errorf("unexpected notification JSON: %s", out)
	}
}

func TestReport_Validate(t *testing.T) {
	r := Report{StudentID: "alice", CounselorID: "dr.bob@x.org", Reason: "spam"}
	if err := r.Validate(); err != nil {
		t.Errorf("valid report rejected: %v", err)
	}
	r.CounselorID = ""
	if err := r.Validate(); !errors.Is(err, ErrMissingCounselorID) {
		t.Errorf("expected ErrMissingCounselorID, got %v", err)
	}
}
