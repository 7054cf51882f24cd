// Package notify keeps the desktop notification inbox and serves it on the
// session bus as org.freedesktop.Notifications.
package notify

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Urgency follows the freedesktop notification hint values.
type Urgency uint8

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyCritical:
		return "critical"
	}
	return "normal"
}

// MarshalText implements encoding.TextMarshaler.
func (u Urgency) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

// CloseReason is reported with the NotificationClosed signal.
type CloseReason uint32

const (
	ReasonExpired   CloseReason = 1
	ReasonDismissed CloseReason = 2
	ReasonClosed    CloseReason = 3
	ReasonUndefined CloseReason = 4
)

// DefaultCapacity bounds the inbox; the oldest entry expires first.
const DefaultCapacity = 200

// Notification is one pending entry.
type Notification struct {
	ID      uint32    `json:"id"`
	AppName string    `json:"app_name"`
	AppIcon string    `json:"app_icon,omitempty"`
	Image   string    `json:"image,omitempty"`
	Summary string    `json:"summary"`
	Body    string    `json:"body,omitempty"`
	Actions []string  `json:"actions,omitempty"`
	Urgency Urgency   `json:"urgency"`
	Time    time.Time `json:"time"`
}

type listenerSet[F any] struct {
	next uint64
	fns  map[uint64]F
}

func (s *listenerSet[F]) add(fn F) uint64 {
	if s.fns == nil {
		s.fns = make(map[uint64]F)
	}
	s.next++
	s.fns[s.next] = fn
	return s.next
}

func (s *listenerSet[F]) snapshot() []F {
	ids := make([]uint64, 0, len(s.fns))
	for id := range s.fns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]F, len(ids))
	for i, id := range ids {
		out[i] = s.fns[id]
	}
	return out
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(in *Inbox) {
		if n > 0 {
			in.capacity = n
		}
	}
}

// WithLogger sets the logger used for listener panics.
func WithLogger(l *slog.Logger) Option {
	return func(in *Inbox) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(in *Inbox) { in.now = now }
}

// Inbox holds pending notifications and the do-not-disturb flag. It is safe
// for concurrent use; listeners run outside the lock.
type Inbox struct {
	capacity int
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	items  []Notification
	nextID uint32
	dnd    bool

	changed listenerSet[func()]
	popups  listenerSet[func(Notification)]
	closed  listenerSet[func(uint32, CloseReason)]
}

// NewInbox returns an empty inbox.
func NewInbox(opts ...Option) *Inbox {
	in := &Inbox{
		capacity: DefaultCapacity,
		logger:   discardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Add stores n and returns its ID. When n.ID names a pending notification it
// is replaced in place; otherwise a fresh ID is assigned. Popup listeners
// fire unless do-not-disturb is on.
func (in *Inbox) Add(n Notification) uint32 {
	if n.AppName == "" {
		n.AppName = "Unknown"
	}
	if n.Time.IsZero() {
		n.Time = in.now()
	}

	in.mu.Lock()
	replaced := false
	if n.ID != 0 {
		for i := range in.items {
			if in.items[i].ID == n.ID {
				in.items[i] = n
				replaced = true
				break
			}
		}
	}
	if !replaced {
		in.nextID++
		n.ID = in.nextID
		in.items = append(in.items, n)
	}

	var evicted []uint32
	for len(in.items) > in.capacity {
		evicted = append(evicted, in.items[0].ID)
		in.items = in.items[1:]
	}
	dnd := in.dnd
	popups := in.popups.snapshot()
	in.mu.Unlock()

	for _, id := range evicted {
		in.emitClosed(id, ReasonExpired)
	}
	if !dnd {
		for _, fn := range popups {
			in.safe("popup", func() { fn(n) })
		}
	}
	in.emitChanged()
	return n.ID
}

// Close removes id with the given reason. It reports whether id was pending.
func (in *Inbox) Close(id uint32, reason CloseReason) bool {
	in.mu.Lock()
	found := false
	for i := range in.items {
		if in.items[i].ID == id {
			in.items = append(in.items[:i:i], in.items[i+1:]...)
			found = true
			break
		}
	}
	in.mu.Unlock()

	if !found {
		return false
	}
	in.emitClosed(id, reason)
	in.emitChanged()
	return true
}

// Dismiss removes id as a user dismissal.
func (in *Inbox) Dismiss(id uint32) bool {
	return in.Close(id, ReasonDismissed)
}

// DismissApp removes every notification from app and returns how many.
func (in *Inbox) DismissApp(app string) int {
	return in.dismissWhere(func(n Notification) bool { return n.AppName == app })
}

// DismissAll empties the inbox and returns how many were removed.
func (in *Inbox) DismissAll() int {
	return in.dismissWhere(func(Notification) bool { return true })
}

func (in *Inbox) dismissWhere(match func(Notification) bool) int {
	in.mu.Lock()
	var removed []uint32
	kept := in.items[:0:0]
	for _, n := range in.items {
		if match(n) {
			removed = append(removed, n.ID)
		} else {
			kept = append(kept, n)
		}
	}
	in.items = kept
	in.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}
	for _, id := range removed {
		in.emitClosed(id, ReasonDismissed)
	}
	in.emitChanged()
	return len(removed)
}

// Get returns the pending notification with id.
func (in *Inbox) Get(id uint32) (Notification, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, n := range in.items {
		if n.ID == id {
			return n, true
		}
	}
	return Notification{}, false
}

// List returns pending notifications in arrival order.
func (in *Inbox) List() []Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]Notification, len(in.items))
	copy(out, in.items)
	return out
}

// ByApp groups pending notifications by application name.
func (in *Inbox) ByApp() map[string][]Notification {
	grouped := make(map[string][]Notification)
	for _, n := range in.List() {
		grouped[n.AppName] = append(grouped[n.AppName], n)
	}
	return grouped
}

// PendingCount returns the number of pending notifications.
func (in *Inbox) PendingCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.items)
}

// AppCount returns the number of distinct applications with pending
// notifications.
func (in *Inbox) AppCount() int {
	return len(in.ByApp())
}

// DND reports whether do-not-disturb is on.
func (in *Inbox) DND() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.dnd
}

// SetDND switches do-not-disturb.
func (in *Inbox) SetDND(on bool) {
	in.mu.Lock()
	changed := in.dnd != on
	in.dnd = on
	in.mu.Unlock()
	if changed {
		in.emitChanged()
	}
}

// ToggleDND flips do-not-disturb and returns the new value.
func (in *Inbox) ToggleDND() bool {
	in.mu.Lock()
	in.dnd = !in.dnd
	on := in.dnd
	in.mu.Unlock()
	in.emitChanged()
	return on
}

// Subscribe registers fn for every change to the inbox or the DND flag.
func (in *Inbox) Subscribe(fn func()) (unsubscribe func()) {
	in.mu.Lock()
	id := in.changed.add(fn)
	in.mu.Unlock()
	return in.remover(func() { delete(in.changed.fns, id) })
}

// SubscribePopups registers fn for each new or replaced notification that
// arrives while DND is off.
func (in *Inbox) SubscribePopups(fn func(Notification)) (unsubscribe func()) {
	in.mu.Lock()
	id := in.popups.add(fn)
	in.mu.Unlock()
	return in.remover(func() { delete(in.popups.fns, id) })
}

// OnClosed registers fn for every removal.
func (in *Inbox) OnClosed(fn func(id uint32, reason CloseReason)) (unsubscribe func()) {
	in.mu.Lock()
	id := in.closed.add(fn)
	in.mu.Unlock()
	return in.remover(func() { delete(in.closed.fns, id) })
}

func (in *Inbox) remover(del func()) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			in.mu.Lock()
			defer in.mu.Unlock()
			del()
		})
	}
}

func (in *Inbox) emitChanged() {
	in.mu.Lock()
	fns := in.changed.snapshot()
	in.mu.Unlock()
	for _, fn := range fns {
		in.safe("change", fn)
	}
}

func (in *Inbox) emitClosed(id uint32, reason CloseReason) {
	in.mu.Lock()
	fns := in.closed.snapshot()
	in.mu.Unlock()
	for _, fn := range fns {
		in.safe("closed", func() { fn(id, reason) })
	}
}

func (in *Inbox) safe(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error("inbox listener panicked", "listener", kind, "panic", r)
		}
	}()
	fn()
}
