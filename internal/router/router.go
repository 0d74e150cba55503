package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"counselrelay/internal/config"
	"counselrelay/internal/websocket"
	"counselrelay/pkg/interfaces"
	"counselrelay/pkg/types"
)

// Bootstrapper records first contact between a student and a counselor
type Bootstrapper interface {
	Bootstrap(ctx context.Context, counselorID, studentID string) (bool, error)
}

// Router relays chat, report and announcement events
// ARCHITECTURAL DISCOVERY: Pure routing decisions; presence lives in the registry
// and persistence behind the bootstrapper
type Router struct {
	registry     *websocket.Registry
	bootstrapper Bootstrapper
	rateLimiter  *RateLimiter
	deliveryMode string
	now          func() time.Time

	// in-flight bootstraps, drained on shutdown
	wg sync.WaitGroup
}

// NewRouter creates a router; bootstrapper may be nil to disable first-contact bookkeeping
func NewRouter(registry *websocket.Registry, bootstrapper Bootstrapper, cfg *config.RouterConfig) *Router {
	if cfg == nil {
		cfg = config.DefaultConfig().Router
	}
	return &Router{
		registry:     registry,
		bootstrapper: bootstrapper,
		rateLimiter:  NewRateLimiter(cfg.RateLimitPerMinute),
		deliveryMode: cfg.DeliveryMode,
		now:          time.Now,
	}
}

// RouteMessage relays a chat message from sender. A student writing to a
// counselor also triggers conversation bootstrap, which runs on its own
// goroutine and never delays or blocks delivery.
func (r *Router) RouteMessage(ctx context.Context, sender interfaces.Connection, message *types.ChatMessage) error {
	if message == nil {
		return ErrNilMessage
	}
	if err := message.Validate(); err != nil {
		return err
	}

	if !r.rateLimiter.Allow(r.senderKey(sender, message)) {
		return ErrRateLimitExceeded
	}

	message.Timestamp = types.InRange(message.Timestamp)
	if message.Timestamp.IsZero() {
		message.Timestamp = r.now()
	}
	message.Timestamp = message.Timestamp.UTC()

	if message.IsFirstContactCandidate() && r.bootstrapper != nil {
		r.wg.Add(1)
		go func(counselorID, studentID string) {
			defer r.wg.Done()
			// Outcome is logged and counted by the bootstrapper
			_, _ = r.bootstrapper.Bootstrap(context.WithoutCancel(ctx), counselorID, studentID)
		}(message.CounselorID, message.StudentID)
	}

	r.deliver(sender, message, types.EventReceiveMessage, message)
	r.deliver(sender, message, types.EventNewMessageNotification, message.Notification())

	return nil
}

// senderKey identifies the sender for rate limiting: its registered identity,
// falling back to the connection handle
func (r *Router) senderKey(sender interfaces.Connection, message *types.ChatMessage) string {
	if sender == nil {
		return message.SenderID
	}
	if presence, ok := r.registry.PresenceOf(sender); ok {
		return presence.Identity
	}
	return sender.ID()
}

// deliver sends a chat-derived event to everyone, or to the participants
// only when participant delivery is configured
func (r *Router) deliver(sender interfaces.Connection, message *types.ChatMessage, event string, payload interface{}) {
	if r.deliveryMode != config.DeliveryParticipants {
		r.registry.Broadcast(event, payload)
		return
	}

	seen := make(map[string]bool, 3)
	recipients := make([]interfaces.Connection, 0, 3)
	add := func(conn interfaces.Connection) {
		if conn != nil && !seen[conn.ID()] {
			seen[conn.ID()] = true
			recipients = append(recipients, conn)
		}
	}

	add(sender)
	for _, identity := range []string{message.StudentID, message.CounselorID} {
		if conn, ok := r.registry.Lookup(identity); ok {
			add(conn)
		}
	}

	for _, conn := range recipients {
		if err := r.registry.SendTo(conn, event, payload); err != nil {
			log.Printf("Failed to deliver %s to %s: %v", event, conn.ID(), err)
		}
	}
}

// RelayReport notifies the reported-to counselor, if online, and tells every
// other online counselor that a report was filed
func (r *Router) RelayReport(report *types.Report) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}
	if err := report.Validate(); err != nil {
		return err
	}

	now := r.now().UTC()

	// FUNCTIONAL DISCOVERY: an offline target is a normal branch, not an error
	if err := r.registry.SendToIdentity(report.CounselorID, types.EventReportNotification, types.ReportNotification{
		StudentID:   report.StudentID,
		CounselorID: report.CounselorID,
		Reason:      report.Reason,
		Timestamp:   now,
	}); err != nil && !errors.Is(err, websocket.ErrUnknownIdentity) {
		log.Printf("Failed to deliver report to counselor %s: %v", report.CounselorID, err)
	}

	notice := types.CounselorReportNotification{
		StudentID:  report.StudentID,
		ReportedBy: report.CounselorID,
		Timestamp:  now,
	}
	for _, counselorID := range r.registry.Snapshot(types.RoleCounselor) {
		if counselorID == report.CounselorID {
			continue
		}
		if err := r.registry.SendToIdentity(counselorID, types.EventCounselorReportNotification, notice); err != nil {
			log.Printf("Failed to notify counselor %s of report: %v", counselorID, err)
		}
	}

	return nil
}

// Announce rebroadcasts a generic event; name and id pass through untouched
func (r *Router) Announce(event types.GenericEvent) {
	r.registry.Broadcast(types.EventNewEventNotification, types.EventNotification{
		EventName: event.Name,
		EventID:   event.ID,
	})
}

// Maintain drops rate limiter state for idle senders
func (r *Router) Maintain() {
	r.rateLimiter.Cleanup()
}

// Wait blocks until in-flight bootstraps finish or ctx is done
func (r *Router) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
