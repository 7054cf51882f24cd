// Package compositor normalizes window-manager backends behind one Adapter
// interface: Hyprland over its IPC sockets, niri through its CLI, and a
// fallback that supports nothing.
package compositor

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// ErrUnsupported is returned by a forced selection that names no known
// backend.
var ErrUnsupported = errors.New("compositor: unsupported backend")

// Workspace is identified by a backend-global ID. Name is an optional display
// label.
type Workspace struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Window is identified by Address, which stays stable for the lifetime of
// the window.
type Window struct {
	Address     string `json:"address" yaml:"address"`
	Title       string `json:"title" yaml:"title"`
	AppClass    string `json:"app_class" yaml:"app_class"`
	WorkspaceID int    `json:"workspace_id" yaml:"workspace_id"`
	Hidden      bool   `json:"hidden" yaml:"hidden"`
}

// EventHandlers is a bundle of optional callbacks. Several bundles may be
// connected to one adapter at once; they never replace each other.
type EventHandlers struct {
	WorkspacesChanged       func()
	FocusedWorkspaceChanged func()
	FocusedWindowChanged    func()
	WindowAdded             func()
	WindowRemoved           func()
	WindowMoved             func()
}

// Adapter is the capability interface every backend implements.
//
// Query methods return an empty result and an error when the backend cannot
// answer. Mutating methods log and swallow failures; there is no feedback
// channel for them.
type Adapter interface {
	Name() string
	SupportsWorkspaces() bool
	SupportsWindows() bool

	// Workspaces lists workspaces. Backends without per-monitor scoping
	// ignore monitor; an empty monitor means the focused one.
	Workspaces(ctx context.Context, monitor string) ([]Workspace, error)
	FocusedWorkspace(ctx context.Context, monitor string) (*Workspace, error)
	Windows(ctx context.Context) ([]Window, error)
	FocusedWindow(ctx context.Context) (*Window, error)
	FocusedWindowForMonitor(ctx context.Context, monitor string) (*Window, error)
	WorkspaceWindows(ctx context.Context, workspaceID int) ([]Window, error)

	SwitchToWorkspace(ctx context.Context, workspaceID int)
	FocusWindow(ctx context.Context, address string)

	// Connect registers handlers and returns a function that removes exactly
	// this registration. Calling it more than once is harmless.
	Connect(handlers EventHandlers) (disconnect func())

	// Close releases background resources (event streams, poll loops).
	Close() error
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// safeCall runs an event callback, containing any panic.
func safeCall(logger *slog.Logger, event string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("compositor event handler panicked", "event", event, "panic", r)
		}
	}()
	fn()
}

// visibleOn filters windows on workspaceID that are not hidden.
func visibleOn(windows []Window, workspaceID int) []Window {
	out := make([]Window, 0, len(windows))
	for _, w := range windows {
		if w.WorkspaceID == workspaceID && !w.Hidden {
			out = append(out, w)
		}
	}
	return out
}
