package daemon

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"gitlab.com/tinyland/lab/statebar/pkg/compositor"
	"gitlab.com/tinyland/lab/statebar/pkg/notify"
	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/signal"
	"gitlab.com/tinyland/lab/statebar/pkg/state"
)

// fakeAdapter answers queries from fixed data and records mutations.
type fakeAdapter struct {
	*compositor.Fallback
	workspaces []compositor.Workspace
	windows    []compositor.Window
	switched   []int
	focused    []string
}

func (f *fakeAdapter) Name() string             { return "fake" }
func (f *fakeAdapter) SupportsWorkspaces() bool { return true }

func (f *fakeAdapter) Workspaces(context.Context, string) ([]compositor.Workspace, error) {
	return f.workspaces, nil
}

func (f *fakeAdapter) FocusedWorkspace(context.Context, string) (*compositor.Workspace, error) {
	return &f.workspaces[0], nil
}

func (f *fakeAdapter) Windows(context.Context) ([]compositor.Window, error) {
	return f.windows, nil
}

func (f *fakeAdapter) WorkspaceWindows(_ context.Context, id int) ([]compositor.Window, error) {
	var out []compositor.Window
	for _, w := range f.windows {
		if w.WorkspaceID == id {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeAdapter) FocusedWindowForMonitor(context.Context, string) (*compositor.Window, error) {
	return &f.windows[0], nil
}

func (f *fakeAdapter) SwitchToWorkspace(_ context.Context, id int) { f.switched = append(f.switched, id) }
func (f *fakeAdapter) FocusWindow(_ context.Context, addr string)  { f.focused = append(f.focused, addr) }

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeAdapter) {
	t.Helper()
	sig := &signal.Signal{Severity: signal.Warn, Category: "updates", Summary: "2 updates"}
	engine := state.NewEngine([]state.Source{
		state.SourceFunc("updates", func() *signal.Signal { return sig }),
	})
	adapter := &fakeAdapter{
		Fallback:   compositor.NewFallback(nil),
		workspaces: []compositor.Workspace{{ID: 1, Name: "1"}, {ID: 2, Name: "2"}},
		windows: []compositor.Window{
			{Address: "0xa", Title: "term", WorkspaceID: 1},
			{Address: "0xb", Title: "web", WorkspaceID: 2},
		},
	}
	return &Dispatcher{
		Engine:     engine,
		Registry:   poll.NewRegistry(),
		Compositor: func() compositor.Adapter { return adapter },
		Inbox:      notify.NewInbox(),
	}, adapter
}

func TestDispatchStateAndRefresh(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	got, err := d.HandleCommand(ctx, "STATE", nil)
	if err != nil {
		t.Fatal(err)
	}
	if st := got.(state.AggregatedState); st.Summary != state.AllClear {
		t.Errorf("state before first tick = %q", st.Summary)
	}

	if _, err := d.HandleCommand(ctx, "REFRESH", nil); err != nil {
		t.Fatalf("REFRESH: %v", err)
	}
	got, _ = d.HandleCommand(ctx, "STATE", nil)
	st := got.(state.AggregatedState)
	if st.Summary != "2 updates" || st.Severity != signal.Warn {
		t.Errorf("state after refresh = %+v", st)
	}

	if _, err := d.HandleCommand(ctx, "REFRESH", []string{"missing"}); err == nil {
		t.Error("refreshing an unknown cell should fail")
	}
}

func TestDispatchCompositor(t *testing.T) {
	d, adapter := newTestDispatcher(t)
	ctx := context.Background()

	got, err := d.HandleCommand(ctx, "WORKSPACES", nil)
	if err != nil {
		t.Fatal(err)
	}
	ws := got.(WorkspacesReply)
	if ws.Backend != "fake" || !ws.Supported || len(ws.Workspaces) != 2 || ws.Focused.ID != 1 {
		t.Errorf("workspaces = %+v", ws)
	}

	got, err = d.HandleCommand(ctx, "WINDOWS", []string{"2"})
	if err != nil {
		t.Fatal(err)
	}
	if wins := got.([]compositor.Window); len(wins) != 1 || wins[0].Address != "0xb" {
		t.Errorf("windows on 2 = %+v", wins)
	}

	got, err = d.HandleCommand(ctx, "FOCUSED", []string{"DP-1"})
	if err != nil {
		t.Fatal(err)
	}
	if f := got.(FocusedReply); f.Window.Address != "0xa" || f.Workspace.ID != 1 {
		t.Errorf("focused = %+v", f)
	}

	if _, err := d.HandleCommand(ctx, "SWITCH", []string{"2"}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.HandleCommand(ctx, "FOCUS", []string{"0xb"}); err != nil {
		t.Fatal(err)
	}
	if len(adapter.switched) != 1 || adapter.switched[0] != 2 {
		t.Errorf("switched = %v", adapter.switched)
	}
	if len(adapter.focused) != 1 || adapter.focused[0] != "0xb" {
		t.Errorf("focused = %v", adapter.focused)
	}

	for _, bad := range [][]string{nil, {"two"}, {"1", "2"}} {
		if _, err := d.HandleCommand(ctx, "SWITCH", bad); !errors.Is(err, ErrUsage) {
			t.Errorf("SWITCH %v: err = %v, want ErrUsage", bad, err)
		}
	}
}

func TestDispatchNotifications(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	id := d.Inbox.Add(notify.Notification{AppName: "mail", Summary: "hi"})
	d.Inbox.Add(notify.Notification{AppName: "chat", Summary: "yo"})

	got, err := d.HandleCommand(ctx, "NOTIFICATIONS", nil)
	if err != nil {
		t.Fatal(err)
	}
	if list := got.([]notify.Notification); len(list) != 2 {
		t.Errorf("list = %+v", list)
	}

	got, err = d.HandleCommand(ctx, "DND", []string{"toggle"})
	if err != nil {
		t.Fatal(err)
	}
	if !got.(DNDReply).DND {
		t.Error("toggle should enable DND")
	}
	got, _ = d.HandleCommand(ctx, "DND", []string{"off"})
	if got.(DNDReply).DND {
		t.Error("off should disable DND")
	}
	if _, err := d.HandleCommand(ctx, "DND", []string{"maybe"}); !errors.Is(err, ErrUsage) {
		t.Errorf("DND maybe: err = %v", err)
	}

	got, err = d.HandleCommand(ctx, "DISMISS", []string{"99"})
	if err != nil || got.(DismissReply).Dismissed != 0 {
		t.Errorf("dismiss unknown id = %v, %v", got, err)
	}
	got, _ = d.HandleCommand(ctx, "DISMISS", []string{strconv.FormatUint(uint64(id), 10)})
	if got.(DismissReply).Dismissed != 1 {
		t.Errorf("dismiss id = %+v", got)
	}
	got, _ = d.HandleCommand(ctx, "DISMISS", []string{"ALL"})
	if got.(DismissReply).Dismissed != 1 {
		t.Errorf("dismiss all = %+v", got)
	}
	if d.Inbox.PendingCount() != 0 {
		t.Error("inbox not empty")
	}
}

func TestDispatchNotificationsDisabled(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Inbox = nil
	for _, cmd := range []string{"NOTIFICATIONS", "DND"} {
		if _, err := d.HandleCommand(context.Background(), cmd, nil); !errors.Is(err, ErrNotificationsDisabled) {
			t.Errorf("%s: err = %v", cmd, err)
		}
	}
}

func TestDispatchUnknownAndQuit(t *testing.T) {
	d, _ := newTestDispatcher(t)
	quit := false
	d.Quit = func() { quit = true }

	if _, err := d.HandleCommand(context.Background(), "FROB", nil); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("err = %v", err)
	}
	if _, err := d.HandleCommand(context.Background(), "QUIT", nil); err != nil || !quit {
		t.Errorf("QUIT: err=%v quit=%v", err, quit)
	}
}
