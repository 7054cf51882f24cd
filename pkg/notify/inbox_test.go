package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

// --- Add / replace ---

func TestInboxAddAssignsIDs(t *testing.T) {
	in := NewInbox(WithClock(fixedClock()))
	id1 := in.Add(Notification{AppName: "mail", Summary: "one"})
	id2 := in.Add(Notification{Summary: "two"})

	assert.Equal(t, uint32(1), id1)
	assert.Equal(t, uint32(2), id2)
	assert.Equal(t, 2, in.PendingCount())

	n, ok := in.Get(id2)
	require.True(t, ok)
	assert.Equal(t, "Unknown", n.AppName)
	assert.Equal(t, fixedClock()(), n.Time)
}

func TestInboxReplace(t *testing.T) {
	in := NewInbox()
	id := in.Add(Notification{AppName: "build", Summary: "50%"})
	got := in.Add(Notification{ID: id, AppName: "build", Summary: "100%"})

	assert.Equal(t, id, got)
	assert.Equal(t, 1, in.PendingCount())
	n, _ := in.Get(id)
	assert.Equal(t, "100%", n.Summary)

	// Replacing an unknown ID allocates a new one.
	fresh := in.Add(Notification{ID: 99, Summary: "late"})
	assert.NotEqual(t, uint32(99), fresh)
}

func TestInboxCapacityExpiresOldest(t *testing.T) {
	in := NewInbox(WithCapacity(2))
	var expired []uint32
	in.OnClosed(func(id uint32, reason CloseReason) {
		if reason == ReasonExpired {
			expired = append(expired, id)
		}
	})
	in.Add(Notification{Summary: "a"})
	in.Add(Notification{Summary: "b"})
	in.Add(Notification{Summary: "c"})

	assert.Equal(t, []uint32{1}, expired)
	list := in.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Summary)
}

// --- Dismissal ---

func TestInboxDismiss(t *testing.T) {
	in := NewInbox()
	var reasons []CloseReason
	in.OnClosed(func(_ uint32, r CloseReason) { reasons = append(reasons, r) })

	id := in.Add(Notification{Summary: "x"})
	assert.True(t, in.Dismiss(id))
	assert.False(t, in.Dismiss(id))
	assert.Equal(t, []CloseReason{ReasonDismissed}, reasons)
	assert.Zero(t, in.PendingCount())
}

func TestInboxDismissApp(t *testing.T) {
	in := NewInbox()
	in.Add(Notification{AppName: "slack", Summary: "1"})
	in.Add(Notification{AppName: "mail", Summary: "2"})
	in.Add(Notification{AppName: "slack", Summary: "3"})

	assert.Equal(t, 2, in.AppCount())
	assert.Equal(t, 2, in.DismissApp("slack"))
	assert.Equal(t, 0, in.DismissApp("slack"))
	assert.Equal(t, 1, in.PendingCount())
	assert.Equal(t, 1, in.AppCount())
}

func TestInboxDismissAll(t *testing.T) {
	in := NewInbox()
	changes := 0
	in.Subscribe(func() { changes++ })
	in.Add(Notification{Summary: "1"})
	in.Add(Notification{Summary: "2"})
	changes = 0

	assert.Equal(t, 2, in.DismissAll())
	assert.Equal(t, 1, changes, "one change notification for a bulk dismissal")
	assert.Equal(t, 0, in.DismissAll())
	assert.Equal(t, 1, changes)
}

func TestInboxByApp(t *testing.T) {
	in := NewInbox()
	in.Add(Notification{AppName: "slack", Summary: "1"})
	in.Add(Notification{AppName: "slack", Summary: "2"})
	grouped := in.ByApp()
	require.Len(t, grouped["slack"], 2)
	assert.Equal(t, "2", grouped["slack"][1].Summary)
}

// --- DND and listeners ---

func TestInboxDND(t *testing.T) {
	in := NewInbox()
	changes := 0
	unsub := in.Subscribe(func() { changes++ })

	in.SetDND(true)
	in.SetDND(true)
	assert.True(t, in.DND())
	assert.Equal(t, 1, changes, "setting the same value is not a change")

	assert.False(t, in.ToggleDND())
	assert.Equal(t, 2, changes)

	unsub()
	unsub()
	in.ToggleDND()
	assert.Equal(t, 2, changes)
}

func TestInboxPopupsSuppressedByDND(t *testing.T) {
	in := NewInbox()
	var popups []string
	in.SubscribePopups(func(n Notification) { popups = append(popups, n.Summary) })

	in.Add(Notification{Summary: "shown"})
	in.SetDND(true)
	in.Add(Notification{Summary: "quiet"})

	assert.Equal(t, []string{"shown"}, popups)
	assert.Equal(t, 2, in.PendingCount(), "DND still records notifications")
}

func TestInboxListenerPanicContained(t *testing.T) {
	in := NewInbox()
	reached := false
	in.Subscribe(func() { panic("boom") })
	in.Subscribe(func() { reached = true })

	assert.NotPanics(t, func() { in.Add(Notification{Summary: "x"}) })
	assert.True(t, reached)
}

func TestUrgencyString(t *testing.T) {
	assert.Equal(t, "low", UrgencyLow.String())
	assert.Equal(t, "normal", UrgencyNormal.String())
	assert.Equal(t, "critical", UrgencyCritical.String())
}
