package sources

import (
	"strconv"

	"gitlab.com/tinyland/lab/statebar/pkg/notify"
	"gitlab.com/tinyland/lab/statebar/pkg/signal"
)

// Notification glyphs.
const (
	BellGlyph = "󰂚"
	DNDGlyph  = "󰂛"
)

// DefaultNotificationThreshold is the pending count above which the
// notification signal becomes a warning.
const DefaultNotificationThreshold = 5

// Inbox is the read side of notify.Inbox the source needs.
type Inbox interface {
	PendingCount() int
	DND() bool
}

var _ Inbox = (*notify.Inbox)(nil)

// Notifications derives its signal synchronously from an inbox on every
// read; it has no timer.
type Notifications struct {
	inbox     Inbox
	threshold int
}

// NewNotifications wraps inbox. threshold <= 0 means
// DefaultNotificationThreshold.
func NewNotifications(inbox Inbox, threshold int) *Notifications {
	if threshold <= 0 {
		threshold = DefaultNotificationThreshold
	}
	return &Notifications{inbox: inbox, threshold: threshold}
}

// Name implements state.Source.
func (n *Notifications) Name() string { return "notifications" }

// Get implements state.Source.
func (n *Notifications) Get() *signal.Signal {
	return NotificationSignal(n.inbox.PendingCount(), n.inbox.DND(), n.threshold)
}

// NotificationSignal maps pending count and DND to a signal. It returns nil
// when nothing is pending and DND is off.
func NotificationSignal(count int, dnd bool, threshold int) *signal.Signal {
	if dnd {
		return &signal.Signal{
			Severity: signal.Info,
			Category: "notification",
			Icon:     DNDGlyph,
			Summary:  "Do Not Disturb enabled",
		}
	}
	if count == 0 {
		return nil
	}
	sev := signal.Info
	if count > threshold {
		sev = signal.Warn
	}
	summary := "1 notification"
	if count != 1 {
		summary = strconv.Itoa(count) + " notifications"
	}
	return &signal.Signal{
		Severity: sev,
		Category: "notification",
		Icon:     BellGlyph,
		Summary:  summary,
	}
}
