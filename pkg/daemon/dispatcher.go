package daemon

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/tinyland/lab/statebar/pkg/compositor"
	"gitlab.com/tinyland/lab/statebar/pkg/notify"
	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

var (
	// ErrUnknownCommand is returned for a command the daemon does not know.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUsage is returned when a command's arguments are malformed.
	ErrUsage = errors.New("usage")
	// ErrNotificationsDisabled is returned by inbox commands when the
	// notifications source is turned off.
	ErrNotificationsDisabled = errors.New("notifications disabled")
)

// Ack is the reply to commands that only report success.
type Ack struct {
	OK bool `json:"ok"`
}

// WorkspacesReply answers WORKSPACES.
type WorkspacesReply struct {
	Backend    string                 `json:"backend"`
	Supported  bool                   `json:"supported"`
	Workspaces []compositor.Workspace `json:"workspaces"`
	Focused    *compositor.Workspace  `json:"focused"`
}

// FocusedReply answers FOCUSED.
type FocusedReply struct {
	Workspace *compositor.Workspace `json:"workspace"`
	Window    *compositor.Window    `json:"window"`
}

// DNDReply answers DND.
type DNDReply struct {
	DND bool `json:"dnd"`
}

// DismissReply answers DISMISS.
type DismissReply struct {
	Dismissed int `json:"dismissed"`
}

// Dispatcher maps IPC commands onto the daemon's subsystems.
type Dispatcher struct {
	Engine     *state.Engine
	Registry   *poll.Registry
	Compositor func() compositor.Adapter
	// Inbox is nil when the notifications source is disabled.
	Inbox  *notify.Inbox
	Health func() *HealthStatus
	Quit   func()
}

var _ IPCHandler = (*Dispatcher)(nil)

// Commands lists the supported command names.
func Commands() []string {
	return []string{
		"PING", "STATE", "HEALTH", "WORKSPACES", "WINDOWS", "FOCUSED",
		"SWITCH", "FOCUS", "DND", "NOTIFICATIONS", "DISMISS", "REFRESH", "QUIT",
	}
}

// HandleCommand implements IPCHandler.
func (d *Dispatcher) HandleCommand(ctx context.Context, cmd string, args []string) (any, error) {
	switch cmd {
	case "PING":
		return Ack{OK: true}, nil
	case "STATE":
		return d.Engine.Snapshot(), nil
	case "HEALTH":
		if d.Health == nil {
			return nil, errors.New("health reporting unavailable")
		}
		return d.Health(), nil
	case "WORKSPACES":
		return d.workspaces(ctx, optionalArg(args))
	case "WINDOWS":
		return d.windows(ctx, args)
	case "FOCUSED":
		return d.focused(ctx, optionalArg(args))
	case "SWITCH":
		id, err := workspaceArg(cmd, args)
		if err != nil {
			return nil, err
		}
		d.Compositor().SwitchToWorkspace(ctx, id)
		return Ack{OK: true}, nil
	case "FOCUS":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: FOCUS <address>", ErrUsage)
		}
		d.Compositor().FocusWindow(ctx, args[0])
		return Ack{OK: true}, nil
	case "DND":
		return d.dnd(args)
	case "NOTIFICATIONS":
		if d.Inbox == nil {
			return nil, ErrNotificationsDisabled
		}
		return d.Inbox.List(), nil
	case "DISMISS":
		return d.dismiss(args)
	case "REFRESH":
		return d.refresh(ctx, args)
	case "QUIT":
		if d.Quit != nil {
			d.Quit()
		}
		return Ack{OK: true}, nil
	case "":
		return nil, fmt.Errorf("%w: empty command", ErrUsage)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

func (d *Dispatcher) workspaces(ctx context.Context, monitor string) (WorkspacesReply, error) {
	return QueryWorkspaces(ctx, d.Compositor(), monitor)
}

// QueryWorkspaces builds the WORKSPACES reply for monitor from a.
func QueryWorkspaces(ctx context.Context, a compositor.Adapter, monitor string) (WorkspacesReply, error) {
	ws, err := a.Workspaces(ctx, monitor)
	if err != nil {
		return WorkspacesReply{}, err
	}
	focused, err := a.FocusedWorkspace(ctx, monitor)
	if err != nil {
		return WorkspacesReply{}, err
	}
	return WorkspacesReply{
		Backend:    a.Name(),
		Supported:  a.SupportsWorkspaces(),
		Workspaces: ws,
		Focused:    focused,
	}, nil
}

func (d *Dispatcher) windows(ctx context.Context, args []string) ([]compositor.Window, error) {
	a := d.Compositor()
	if len(args) == 0 {
		return a.Windows(ctx)
	}
	id, err := workspaceArg("WINDOWS", args)
	if err != nil {
		return nil, err
	}
	return a.WorkspaceWindows(ctx, id)
}

func (d *Dispatcher) focused(ctx context.Context, monitor string) (FocusedReply, error) {
	a := d.Compositor()
	ws, err := a.FocusedWorkspace(ctx, monitor)
	if err != nil {
		return FocusedReply{}, err
	}
	var win *compositor.Window
	if monitor == "" {
		win, err = a.FocusedWindow(ctx)
	} else {
		win, err = a.FocusedWindowForMonitor(ctx, monitor)
	}
	if err != nil {
		return FocusedReply{}, err
	}
	return FocusedReply{Workspace: ws, Window: win}, nil
}

func (d *Dispatcher) dnd(args []string) (DNDReply, error) {
	if d.Inbox == nil {
		return DNDReply{}, ErrNotificationsDisabled
	}
	switch strings.ToLower(optionalArg(args)) {
	case "":
	case "on":
		d.Inbox.SetDND(true)
	case "off":
		d.Inbox.SetDND(false)
	case "toggle":
		d.Inbox.ToggleDND()
	default:
		return DNDReply{}, fmt.Errorf("%w: DND [on|off|toggle]", ErrUsage)
	}
	return DNDReply{DND: d.Inbox.DND()}, nil
}

func (d *Dispatcher) dismiss(args []string) (DismissReply, error) {
	if d.Inbox == nil {
		return DismissReply{}, ErrNotificationsDisabled
	}
	if len(args) != 1 {
		return DismissReply{}, fmt.Errorf("%w: DISMISS <id|all>", ErrUsage)
	}
	if strings.EqualFold(args[0], "all") {
		return DismissReply{Dismissed: d.Inbox.DismissAll()}, nil
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return DismissReply{}, fmt.Errorf("%w: DISMISS <id|all>: %q is not an id", ErrUsage, args[0])
	}
	if !d.Inbox.Dismiss(uint32(id)) {
		return DismissReply{}, nil
	}
	return DismissReply{Dismissed: 1}, nil
}

// refresh re-runs every registered cell, or one named cell, then
// recomputes the aggregate.
func (d *Dispatcher) refresh(ctx context.Context, args []string) (Ack, error) {
	if name := optionalArg(args); name != "" {
		c, ok := d.Registry.Get(name)
		if !ok {
			return Ack{}, fmt.Errorf("no cell named %q", name)
		}
		if err := c.Refresh(ctx); err != nil {
			return Ack{}, err
		}
	} else if err := d.Registry.RefreshAll(ctx); err != nil {
		return Ack{}, err
	}
	if err := d.Engine.Refresh(ctx); err != nil {
		return Ack{}, err
	}
	return Ack{OK: true}, nil
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func workspaceArg(cmd string, args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: %s <workspace-id>", ErrUsage, cmd)
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q is not a workspace id", ErrUsage, cmd, args[0])
	}
	return id, nil
}
