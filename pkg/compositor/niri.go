package compositor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"gitlab.com/tinyland/lab/statebar/pkg/poll"
)

// DefaultNiriPollInterval is how often a connected niri adapter diffs state.
const DefaultNiriPollInterval = 200 * time.Millisecond

// niriMsgTimeout bounds one shared `niri msg` process.
const niriMsgTimeout = 2 * time.Second

var focusedOutputRe = regexp.MustCompile(`Output "[^"]*" \(([^)]+)\)`)

// niriWorkspace mirrors one entry of `niri msg --json workspaces`.
type niriWorkspace struct {
	ID             int     `json:"id"`
	Idx            int     `json:"idx"`
	Name           *string `json:"name"`
	Output         string  `json:"output"`
	IsUrgent       bool    `json:"is_urgent"`
	IsActive       bool    `json:"is_active"`
	IsFocused      bool    `json:"is_focused"`
	ActiveWindowID *int64  `json:"active_window_id"`
}

// niriWindow mirrors `niri msg --json windows` and `focused-window`.
type niriWindow struct {
	ID          int64   `json:"id"`
	Title       *string `json:"title"`
	AppID       *string `json:"app_id"`
	WorkspaceID *int    `json:"workspace_id"`
}

func (w niriWindow) toWindow() (Window, bool) {
	if w.WorkspaceID == nil {
		return Window{}, false
	}
	win := Window{
		Address:     strconv.FormatInt(w.ID, 10),
		WorkspaceID: *w.WorkspaceID,
	}
	if w.Title != nil {
		win.Title = *w.Title
	}
	if w.AppID != nil {
		win.AppClass = *w.AppID
	}
	return win, true
}

type niriHandlers struct {
	h       EventHandlers
	removed atomic.Bool
}

// NiriOption configures a Niri adapter.
type NiriOption func(*Niri)

// WithNiriRunner replaces the os/exec command runner.
func WithNiriRunner(r poll.Runner) NiriOption {
	return func(n *Niri) { n.runner = r }
}

// WithNiriPollInterval overrides DefaultNiriPollInterval.
func WithNiriPollInterval(d time.Duration) NiriOption {
	return func(n *Niri) {
		if d > 0 {
			n.interval = d
		}
	}
}

// WithNiriLogger sets the adapter logger.
func WithNiriLogger(l *slog.Logger) NiriOption {
	return func(n *Niri) {
		if l != nil {
			n.logger = l
		}
	}
}

// Niri drives niri through `niri msg`. Queries run the CLI on demand;
// connected handlers are fed by a diffing poll loop.
type Niri struct {
	runner   poll.Runner
	interval time.Duration
	logger   *slog.Logger
	group    singleflight.Group

	mu       sync.Mutex
	handlers []*niriHandlers
	stop     context.CancelFunc

	// guarded by tickMu
	tickMu          sync.Mutex
	lastWorkspaces  string
	lastActiveByOut string
}

var _ Adapter = (*Niri)(nil)

// NewNiri builds the adapter. Without an injected runner it requires the
// niri binary on PATH.
func NewNiri(opts ...NiriOption) (*Niri, error) {
	n := &Niri{
		interval: DefaultNiriPollInterval,
		logger:   discardLogger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.runner == nil {
		if _, err := exec.LookPath("niri"); err != nil {
			return nil, fmt.Errorf("niri adapter: %w", err)
		}
		n.runner = poll.ExecRunner{}
	}
	n.logger = n.logger.With("component", "compositor", "backend", KindNiri)
	return n, nil
}

func (n *Niri) Name() string             { return string(KindNiri) }
func (n *Niri) SupportsWorkspaces() bool { return true }
func (n *Niri) SupportsWindows() bool    { return true }

// msg runs `niri msg <args>`. Concurrent identical queries share one
// process, which is bounded by niriMsgTimeout rather than by whichever
// caller started it; each caller still returns when its own ctx ends.
func (n *Niri) msg(ctx context.Context, args ...string) ([]byte, error) {
	argv := append([]string{"niri", "msg"}, args...)
	ch := n.group.DoChan(strings.Join(args, " "), func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), niriMsgTimeout)
		defer cancel()
		return n.runner.Output(callCtx, argv)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (n *Niri) focusedOutput(ctx context.Context) (string, error) {
	out, err := n.msg(ctx, "focused-output")
	if err != nil {
		return "", fmt.Errorf("niri focused-output: %w", err)
	}
	m := focusedOutputRe.FindSubmatch(out)
	if m == nil {
		return "", nil
	}
	return string(m[1]), nil
}

func (n *Niri) allWorkspaces(ctx context.Context) ([]niriWorkspace, error) {
	out, err := n.msg(ctx, "--json", "workspaces")
	if err != nil {
		return nil, fmt.Errorf("niri workspaces: %w", err)
	}
	var ws []niriWorkspace
	if err := json.Unmarshal(out, &ws); err != nil {
		return nil, fmt.Errorf("niri workspaces: decode: %w", err)
	}
	return ws, nil
}

func (n *Niri) targetOutput(ctx context.Context, monitor string) (string, error) {
	if monitor != "" {
		return monitor, nil
	}
	return n.focusedOutput(ctx)
}

// Workspaces lists the workspaces on monitor, or on the focused output when
// monitor is empty, ordered by their per-output index.
func (n *Niri) Workspaces(ctx context.Context, monitor string) ([]Workspace, error) {
	target, err := n.targetOutput(ctx, monitor)
	if err != nil {
		return []Workspace{}, err
	}
	if target == "" {
		return []Workspace{}, nil
	}
	all, err := n.allWorkspaces(ctx)
	if err != nil {
		return []Workspace{}, err
	}

	var onOutput []niriWorkspace
	for _, ws := range all {
		if ws.Output == target {
			onOutput = append(onOutput, ws)
		}
	}
	sort.SliceStable(onOutput, func(i, j int) bool { return onOutput[i].Idx < onOutput[j].Idx })

	result := make([]Workspace, 0, len(onOutput))
	for _, ws := range onOutput {
		result = append(result, Workspace{ID: ws.ID, Name: strconv.Itoa(ws.Idx)})
	}
	return result, nil
}

// FocusedWorkspace returns the active workspace on monitor (default: the
// focused output).
func (n *Niri) FocusedWorkspace(ctx context.Context, monitor string) (*Workspace, error) {
	target, err := n.targetOutput(ctx, monitor)
	if err != nil || target == "" {
		return nil, err
	}
	all, err := n.allWorkspaces(ctx)
	if err != nil {
		return nil, err
	}
	for _, ws := range all {
		if ws.Output == target && ws.IsActive {
			return &Workspace{ID: ws.ID, Name: strconv.Itoa(ws.Idx)}, nil
		}
	}
	return nil, nil
}

// Windows lists windows that belong to a workspace.
func (n *Niri) Windows(ctx context.Context) ([]Window, error) {
	out, err := n.msg(ctx, "--json", "windows")
	if err != nil {
		return []Window{}, fmt.Errorf("niri windows: %w", err)
	}
	var raw []*niriWindow
	if err := json.Unmarshal(out, &raw); err != nil {
		return []Window{}, fmt.Errorf("niri windows: decode: %w", err)
	}
	windows := make([]Window, 0, len(raw))
	for _, w := range raw {
		if w == nil {
			continue
		}
		if win, ok := w.toWindow(); ok {
			windows = append(windows, win)
		}
	}
	return windows, nil
}

// FocusedWindow returns nil when nothing has focus.
func (n *Niri) FocusedWindow(ctx context.Context) (*Window, error) {
	out, err := n.msg(ctx, "--json", "focused-window")
	if err != nil {
		return nil, fmt.Errorf("niri focused-window: %w", err)
	}
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, nil
	}
	var raw *niriWindow
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("niri focused-window: decode: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	win, ok := raw.toWindow()
	if !ok {
		return nil, nil
	}
	return &win, nil
}

// FocusedWindowForMonitor returns the active window of the active workspace
// on monitor.
func (n *Niri) FocusedWindowForMonitor(ctx context.Context, monitor string) (*Window, error) {
	all, err := n.allWorkspaces(ctx)
	if err != nil {
		return nil, err
	}
	var active *niriWorkspace
	for i := range all {
		if all[i].Output == monitor && all[i].IsActive {
			active = &all[i]
			break
		}
	}
	if active == nil || active.ActiveWindowID == nil {
		return nil, nil
	}

	windows, err := n.Windows(ctx)
	if err != nil {
		return nil, err
	}
	want := strconv.FormatInt(*active.ActiveWindowID, 10)
	for _, w := range windows {
		if w.Address == want {
			return &w, nil
		}
	}
	return nil, nil
}

// WorkspaceWindows lists visible windows on the workspace with the given
// global ID.
func (n *Niri) WorkspaceWindows(ctx context.Context, workspaceID int) ([]Window, error) {
	windows, err := n.Windows(ctx)
	if err != nil {
		return []Window{}, err
	}
	return visibleOn(windows, workspaceID), nil
}

// SwitchToWorkspace focuses a workspace by global ID. niri switches by
// per-output index, so the ID is translated first.
func (n *Niri) SwitchToWorkspace(ctx context.Context, workspaceID int) {
	all, err := n.allWorkspaces(ctx)
	if err != nil {
		n.logger.Error("switch workspace failed", "workspace", workspaceID, "error", err)
		return
	}
	for _, ws := range all {
		if ws.ID == workspaceID {
			n.action(ctx, "focus-workspace", strconv.Itoa(ws.Idx))
			return
		}
	}
	n.logger.Warn("workspace not found", "workspace", workspaceID)
}

// FocusWindow focuses the window whose address is its niri window ID.
func (n *Niri) FocusWindow(ctx context.Context, address string) {
	if _, err := strconv.ParseInt(address, 10, 64); err != nil {
		n.logger.Warn("invalid niri window id", "address", address)
		return
	}
	n.action(ctx, "focus-window", "--id", address)
}

func (n *Niri) action(ctx context.Context, args ...string) {
	argv := append([]string{"niri", "msg", "action"}, args...)
	if _, err := n.runner.Output(ctx, argv); err != nil {
		n.logger.Error("niri action failed", "action", strings.Join(args, " "), "error", err)
	}
}

// Connect adds handlers to the poll loop, starting it on the first
// registration.
func (n *Niri) Connect(handlers EventHandlers) func() {
	entry := &niriHandlers{h: handlers}

	n.mu.Lock()
	n.handlers = append(n.handlers, entry)
	if n.stop == nil {
		ctx, cancel := context.WithCancel(context.Background())
		n.stop = cancel
		go n.pollLoop(ctx)
	}
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.disconnect(entry) })
	}
}

func (n *Niri) disconnect(entry *niriHandlers) {
	entry.removed.Store(true)

	n.mu.Lock()
	defer n.mu.Unlock()
	for i, h := range n.handlers {
		if h == entry {
			n.handlers = append(n.handlers[:i:i], n.handlers[i+1:]...)
			break
		}
	}
	if len(n.handlers) == 0 && n.stop != nil {
		n.stop()
		n.stop = nil
	}
}

// Connected reports how many handler bundles are registered.
func (n *Niri) Connected() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.handlers)
}

func (n *Niri) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.checkOnce(ctx)
		}
	}
}

type outputWindow struct {
	Output   string `json:"output"`
	WindowID *int64 `json:"window_id"`
}

// checkOnce runs one diff tick. A failed fetch skips the tick and keeps the
// previous snapshots.
func (n *Niri) checkOnce(ctx context.Context) {
	n.tickMu.Lock()
	defer n.tickMu.Unlock()

	all, err := n.allWorkspaces(ctx)
	if err != nil {
		n.logger.Debug("poll tick skipped", "error", err)
		return
	}
	focused, err := n.focusedOutput(ctx)
	if err != nil {
		n.logger.Debug("poll tick skipped", "error", err)
		return
	}

	sorted := append([]niriWorkspace(nil), all...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	wsKey, err := json.Marshal(struct {
		Workspaces []niriWorkspace `json:"workspaces"`
		Focused    string          `json:"focused"`
	}{sorted, focused})
	if err != nil {
		return
	}

	var active []outputWindow
	for _, ws := range all {
		if ws.IsActive {
			active = append(active, outputWindow{Output: ws.Output, WindowID: ws.ActiveWindowID})
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Output < active[j].Output })
	activeKey, err := json.Marshal(active)
	if err != nil {
		return
	}

	workspacesChanged := string(wsKey) != n.lastWorkspaces
	windowChanged := string(activeKey) != n.lastActiveByOut
	n.lastWorkspaces = string(wsKey)
	n.lastActiveByOut = string(activeKey)
	if !workspacesChanged && !windowChanged {
		return
	}

	n.mu.Lock()
	entries := append([]*niriHandlers(nil), n.handlers...)
	n.mu.Unlock()

	for _, e := range entries {
		if e.removed.Load() {
			continue
		}
		if workspacesChanged {
			safeCall(n.logger, "workspaces", e.h.WorkspacesChanged)
			safeCall(n.logger, "focused-workspace", e.h.FocusedWorkspaceChanged)
		}
		if windowChanged {
			safeCall(n.logger, "focused-window", e.h.FocusedWindowChanged)
		}
	}
}

// Close stops the poll loop and drops every handler.
func (n *Niri) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, h := range n.handlers {
		h.removed.Store(true)
	}
	n.handlers = nil
	if n.stop != nil {
		n.stop()
		n.stop = nil
	}
	return nil
}
