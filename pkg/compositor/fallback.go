package compositor

import (
	"context"
	"log/slog"
)

// Fallback is used when no supported compositor is running. Every query
// returns an empty result and mutating calls only log.
type Fallback struct {
	logger *slog.Logger
}

var _ Adapter = (*Fallback)(nil)

// NewFallback returns the no-op adapter. It never fails.
func NewFallback(logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = discardLogger()
	}
	return &Fallback{logger: logger.With("component", "compositor", "backend", KindFallback)}
}

func (f *Fallback) Name() string             { return string(KindFallback) }
func (f *Fallback) SupportsWorkspaces() bool { return false }
func (f *Fallback) SupportsWindows() bool    { return false }

func (f *Fallback) Workspaces(context.Context, string) ([]Workspace, error) {
	return []Workspace{}, nil
}

func (f *Fallback) FocusedWorkspace(context.Context, string) (*Workspace, error) {
	return nil, nil
}

func (f *Fallback) Windows(context.Context) ([]Window, error) {
	return []Window{}, nil
}

func (f *Fallback) FocusedWindow(context.Context) (*Window, error) {
	return nil, nil
}

func (f *Fallback) FocusedWindowForMonitor(context.Context, string) (*Window, error) {
	return nil, nil
}

func (f *Fallback) WorkspaceWindows(context.Context, int) ([]Window, error) {
	return []Window{}, nil
}

func (f *Fallback) SwitchToWorkspace(_ context.Context, workspaceID int) {
	f.logger.Warn("switch workspace not supported", "workspace", workspaceID)
}

func (f *Fallback) FocusWindow(_ context.Context, address string) {
	f.logger.Warn("focus window not supported", "address", address)
}

func (f *Fallback) Connect(EventHandlers) func() {
	return func() {}
}

func (f *Fallback) Close() error { return nil }
