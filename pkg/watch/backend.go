package watch

import (
	"context"

	"gitlab.com/tinyland/lab/statebar/pkg/daemon"
	"gitlab.com/tinyland/lab/statebar/pkg/notify"
	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

// Snapshot is everything one frame shows.
type Snapshot struct {
	State state.AggregatedState
	Cells []daemon.CellHealth
	DND   bool
}

// Backend supplies snapshots to the view.
type Backend interface {
	Fetch(ctx context.Context) (Snapshot, error)
	ToggleDND(ctx context.Context) (bool, error)
}

// ClientBackend reads from a running daemon over its socket.
type ClientBackend struct {
	Client *daemon.IPCClient
}

// Fetch asks the daemon for STATE and HEALTH.
func (b ClientBackend) Fetch(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := b.Client.Call(ctx, "STATE", &snap.State); err != nil {
		return Snapshot{}, err
	}
	var hs daemon.HealthStatus
	if err := b.Client.Call(ctx, "HEALTH", &hs); err != nil {
		return Snapshot{}, err
	}
	snap.Cells = hs.Cells
	snap.DND = hs.Notifications.DND
	return snap, nil
}

// ToggleDND flips do-not-disturb on the daemon.
func (b ClientBackend) ToggleDND(ctx context.Context) (bool, error) {
	var reply daemon.DNDReply
	if err := b.Client.Call(ctx, "DND toggle", &reply); err != nil {
		return false, err
	}
	return reply.DND, nil
}

// LocalBackend reads an in-process engine, for running without a daemon.
type LocalBackend struct {
	Engine   *state.Engine
	Registry *poll.Registry
	// Inbox may be nil.
	Inbox *notify.Inbox
}

// Fetch snapshots the engine and every registered cell.
func (b LocalBackend) Fetch(context.Context) (Snapshot, error) {
	statuses := b.Registry.AllStatus()
	snap := Snapshot{
		State: b.Engine.Snapshot(),
		Cells: make([]daemon.CellHealth, 0, len(statuses)),
	}
	for _, s := range statuses {
		snap.Cells = append(snap.Cells, daemon.NewCellHealth(s))
	}
	if b.Inbox != nil {
		snap.DND = b.Inbox.DND()
	}
	return snap, nil
}

// ToggleDND flips do-not-disturb on the local inbox.
func (b LocalBackend) ToggleDND(context.Context) (bool, error) {
	if b.Inbox == nil {
		return false, daemon.ErrNotificationsDisabled
	}
	return b.Inbox.ToggleDND(), nil
}
