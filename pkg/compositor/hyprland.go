package compositor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type hyprWorkspace struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Monitor string `json:"monitor"`
}

type hyprClient struct {
	Address   string `json:"address"`
	Mapped    bool   `json:"mapped"`
	Hidden    bool   `json:"hidden"`
	Class     string `json:"class"`
	Title     string `json:"title"`
	Workspace struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"workspace"`
}

func (c hyprClient) toWindow() Window {
	return Window{
		Address:     c.Address,
		Title:       c.Title,
		AppClass:    c.Class,
		WorkspaceID: c.Workspace.ID,
		Hidden:      c.Hidden,
	}
}

func (w hyprWorkspace) toWorkspace() Workspace {
	name := w.Name
	if name == "" {
		name = strconv.Itoa(w.ID)
	}
	return Workspace{ID: w.ID, Name: name}
}

// hyprGraph is the in-memory object graph queries read from.
type hyprGraph struct {
	workspaces []hyprWorkspace
	clients    []hyprClient
	active     *hyprWorkspace
	focused    *hyprClient
}

type eventKind int

const (
	kindWorkspaces eventKind = iota
	kindFocusedWorkspace
	kindFocusedWindow
	kindWindowAdded
	kindWindowRemoved
	kindWindowMoved
)

// hyprEventKinds maps Hyprland event names to the callbacks they trigger.
var hyprEventKinds = map[string][]eventKind{
	"workspace":          {kindWorkspaces, kindFocusedWorkspace},
	"workspacev2":        {kindWorkspaces, kindFocusedWorkspace},
	"createworkspace":    {kindWorkspaces},
	"createworkspacev2":  {kindWorkspaces},
	"destroyworkspace":   {kindWorkspaces},
	"destroyworkspacev2": {kindWorkspaces},
	"renameworkspace":    {kindWorkspaces},
	"moveworkspace":      {kindWorkspaces},
	"moveworkspacev2":    {kindWorkspaces},
	"focusedmon":         {kindFocusedWorkspace},
	"focusedmonv2":       {kindFocusedWorkspace},
	"activewindow":       {kindFocusedWindow},
	"activewindowv2":     {kindFocusedWindow},
	"windowtitle":        {kindFocusedWindow},
	"windowtitlev2":      {kindFocusedWindow},
	"openwindow":         {kindWindowAdded},
	"closewindow":        {kindWindowRemoved},
	"movewindow":         {kindWindowMoved},
	"movewindowv2":       {kindWindowMoved},
}

type hyprListener struct {
	kind    eventKind
	fn      func()
	removed atomic.Bool
}

// hyprResyncTimeout bounds one full graph reload.
const hyprResyncTimeout = 2 * time.Second

// HyprlandOption configures a Hyprland adapter.
type HyprlandOption func(*Hyprland)

// WithHyprlandLogger sets the adapter logger.
func WithHyprlandLogger(l *slog.Logger) HyprlandOption {
	return func(h *Hyprland) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHyprlandEnv replaces os.Getenv for socket discovery.
func WithHyprlandEnv(getenv func(string) string) HyprlandOption {
	return func(h *Hyprland) { h.getenv = getenv }
}

func withHyprIPC(ipc hyprIPC) HyprlandOption {
	return func(h *Hyprland) { h.ipc = ipc }
}

func withReconnectDelay(d time.Duration) HyprlandOption {
	return func(h *Hyprland) { h.reconnectDelay = d }
}

func withResyncTimeout(d time.Duration) HyprlandOption {
	return func(h *Hyprland) { h.resyncTimeout = d }
}

// Hyprland mirrors Hyprland's state from its IPC sockets. A background
// goroutine follows the event socket, resynchronizes the object graph on
// every relevant event and then notifies listeners. Queries never touch the
// sockets.
type Hyprland struct {
	ipc            hyprIPC
	getenv         func(string) string
	logger         *slog.Logger
	reconnectDelay time.Duration
	resyncTimeout  time.Duration

	graphMu sync.RWMutex
	graph   hyprGraph

	listenMu  sync.Mutex
	listeners []*hyprListener

	cancel context.CancelFunc
	done   chan struct{}
}

var _ Adapter = (*Hyprland)(nil)

// NewHyprland locates the running instance, loads the initial state and
// starts following events. It fails when no instance is reachable.
func NewHyprland(opts ...HyprlandOption) (*Hyprland, error) {
	h := &Hyprland{
		getenv:         os.Getenv,
		logger:         discardLogger(),
		reconnectDelay: time.Second,
		resyncTimeout:  hyprResyncTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "compositor", "backend", KindHyprland)

	if h.ipc == nil {
		dir, err := hyprSocketDir(h.getenv, h.getenv("HYPRLAND_INSTANCE_SIGNATURE"))
		if err != nil {
			return nil, err
		}
		h.ipc = socketIPC{dir: dir}
	}

	if err := h.boundedResync(context.Background()); err != nil {
		return nil, fmt.Errorf("hyprland initial sync: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	h.cancel = stop
	h.done = make(chan struct{})
	go h.run(runCtx)
	return h, nil
}

func (h *Hyprland) Name() string             { return string(KindHyprland) }
func (h *Hyprland) SupportsWorkspaces() bool { return true }
func (h *Hyprland) SupportsWindows() bool    { return true }

func (h *Hyprland) query(ctx context.Context, cmd string, v any) error {
	reply, err := h.ipc.Request(ctx, cmd)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(reply, v); err != nil {
		return fmt.Errorf("hyprland %s: decode: %w", cmd, err)
	}
	return nil
}

// boundedResync runs resync with every socket round trip under
// resyncTimeout, so a command socket that never answers cannot stall the
// event stream.
func (h *Hyprland) boundedResync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.resyncTimeout)
	defer cancel()
	return h.resync(ctx)
}

// resync reloads the whole graph. On failure the previous graph stays.
func (h *Hyprland) resync(ctx context.Context) error {
	var g hyprGraph
	if err := h.query(ctx, "j/workspaces", &g.workspaces); err != nil {
		return err
	}
	if err := h.query(ctx, "j/clients", &g.clients); err != nil {
		return err
	}

	var active hyprWorkspace
	if err := h.query(ctx, "j/activeworkspace", &active); err != nil {
		return err
	}
	if active.ID != 0 {
		g.active = &active
	}

	var focused hyprClient
	if err := h.query(ctx, "j/activewindow", &focused); err != nil {
		return err
	}
	if focused.Address != "" {
		g.focused = &focused
	}

	h.graphMu.Lock()
	h.graph = g
	h.graphMu.Unlock()
	return nil
}

func (h *Hyprland) run(ctx context.Context) {
	defer close(h.done)
	for {
		err := h.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		h.logger.Warn("event stream lost, reconnecting", "error", err, "delay", h.reconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(h.reconnectDelay):
		}
		if err := h.boundedResync(ctx); err != nil {
			h.logger.Warn("resync after reconnect failed", "error", err)
		}
	}
}

func (h *Hyprland) stream(ctx context.Context) error {
	rc, err := h.ipc.Events(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			rc.Close()
		case <-finished:
		}
	}()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		h.handleLine(ctx, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

func (h *Hyprland) handleLine(ctx context.Context, line string) {
	name, _, ok := strings.Cut(line, ">>")
	if !ok {
		return
	}
	kinds, ok := hyprEventKinds[name]
	if !ok {
		return
	}
	if err := h.boundedResync(ctx); err != nil {
		h.logger.Warn("resync failed", "event", name, "error", err)
	}
	h.emit(name, kinds)
}

func (h *Hyprland) emit(event string, kinds []eventKind) {
	h.listenMu.Lock()
	listeners := append([]*hyprListener(nil), h.listeners...)
	h.listenMu.Unlock()

	for _, l := range listeners {
		if l.removed.Load() {
			continue
		}
		for _, k := range kinds {
			if l.kind == k {
				safeCall(h.logger, event, l.fn)
				break
			}
		}
	}
}

// Workspaces returns every workspace with a positive ID, sorted by ID.
// Hyprland has no per-monitor scoping, so monitor is ignored.
func (h *Hyprland) Workspaces(_ context.Context, _ string) ([]Workspace, error) {
	h.graphMu.RLock()
	defer h.graphMu.RUnlock()

	result := make([]Workspace, 0, len(h.graph.workspaces))
	for _, ws := range h.graph.workspaces {
		if ws.ID > 0 {
			result = append(result, ws.toWorkspace())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// FocusedWorkspace ignores monitor.
func (h *Hyprland) FocusedWorkspace(_ context.Context, _ string) (*Workspace, error) {
	h.graphMu.RLock()
	defer h.graphMu.RUnlock()
	if h.graph.active == nil {
		return nil, nil
	}
	ws := h.graph.active.toWorkspace()
	return &ws, nil
}

// Windows returns every mapped client.
func (h *Hyprland) Windows(_ context.Context) ([]Window, error) {
	h.graphMu.RLock()
	defer h.graphMu.RUnlock()

	result := make([]Window, 0, len(h.graph.clients))
	for _, c := range h.graph.clients {
		if c.Mapped && c.Address != "" {
			result = append(result, c.toWindow())
		}
	}
	return result, nil
}

func (h *Hyprland) FocusedWindow(_ context.Context) (*Window, error) {
	h.graphMu.RLock()
	defer h.graphMu.RUnlock()
	if h.graph.focused == nil {
		return nil, nil
	}
	w := h.graph.focused.toWindow()
	return &w, nil
}

// FocusedWindowForMonitor returns the global focused window; Hyprland has a
// single focus.
func (h *Hyprland) FocusedWindowForMonitor(ctx context.Context, _ string) (*Window, error) {
	return h.FocusedWindow(ctx)
}

func (h *Hyprland) WorkspaceWindows(ctx context.Context, workspaceID int) ([]Window, error) {
	windows, _ := h.Windows(ctx)
	return visibleOn(windows, workspaceID), nil
}

func (h *Hyprland) SwitchToWorkspace(ctx context.Context, workspaceID int) {
	h.dispatch(ctx, "workspace", strconv.Itoa(workspaceID))
}

func (h *Hyprland) FocusWindow(ctx context.Context, address string) {
	h.dispatch(ctx, "focuswindow", "address:"+address)
}

func (h *Hyprland) dispatch(ctx context.Context, args ...string) {
	cmd := "dispatch " + strings.Join(args, " ")
	reply, err := h.ipc.Request(ctx, cmd)
	if err != nil {
		h.logger.Error("dispatch failed", "command", cmd, "error", err)
		return
	}
	if r := strings.TrimSpace(string(reply)); r != "ok" {
		h.logger.Warn("dispatch rejected", "command", cmd, "reply", r)
	}
}

// Connect registers one listener per non-nil callback. The returned function
// removes exactly those listeners.
func (h *Hyprland) Connect(handlers EventHandlers) func() {
	var mine []*hyprListener
	add := func(k eventKind, fn func()) {
		if fn != nil {
			mine = append(mine, &hyprListener{kind: k, fn: fn})
		}
	}
	add(kindWorkspaces, handlers.WorkspacesChanged)
	add(kindFocusedWorkspace, handlers.FocusedWorkspaceChanged)
	add(kindFocusedWindow, handlers.FocusedWindowChanged)
	add(kindWindowAdded, handlers.WindowAdded)
	add(kindWindowRemoved, handlers.WindowRemoved)
	add(kindWindowMoved, handlers.WindowMoved)

	h.listenMu.Lock()
	h.listeners = append(h.listeners, mine...)
	h.listenMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.listenMu.Lock()
			defer h.listenMu.Unlock()
			kept := h.listeners[:0:0]
			for _, l := range h.listeners {
				owned := false
				for _, m := range mine {
					if l == m {
						owned = true
						m.removed.Store(true)
						break
					}
				}
				if !owned {
					kept = append(kept, l)
				}
			}
			h.listeners = kept
		})
	}
}

// listenerCount is used by tests.
func (h *Hyprland) listenerCount() int {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()
	return len(h.listeners)
}

// Close stops following the event socket.
func (h *Hyprland) Close() error {
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}
	return nil
}
