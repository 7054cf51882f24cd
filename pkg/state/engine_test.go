package state

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/signal"
)

type countingSource struct {
	name  string
	reads atomic.Int64
	sig   atomic.Pointer[signal.Signal]
}

func (s *countingSource) Name() string { return s.name }
func (s *countingSource) Get() *signal.Signal {
	s.reads.Add(1)
	return s.sig.Load()
}

func TestEngineComputeReadsSnapshots(t *testing.T) {
	updates := &countingSource{name: "updates"}
	updates.sig.Store(sig(signal.Warn, "updates", "U", "3 updates", false))
	media := &countingSource{name: "media"}
	media.sig.Store(sig(signal.Info, "audio", "A", "Audio is playing", true))

	e := NewEngine([]Source{updates, media})
	st := e.Compute()

	assert.Equal(t, signal.Warn, st.Severity)
	assert.Equal(t, []string{"A", "U"}, st.Icons)
	assert.EqualValues(t, 1, updates.reads.Load())
	assert.EqualValues(t, 1, media.reads.Load())
}

func TestEngineSnapshotBeforeFirstTick(t *testing.T) {
	e := NewEngine(nil)
	st := e.Snapshot()
	assert.Equal(t, AllClear, st.Summary)
	assert.Equal(t, signal.Idle, st.Severity)
}

func TestEngineRefreshNotifies(t *testing.T) {
	src := &countingSource{name: "n"}
	e := NewEngine([]Source{src}, WithInterval(time.Hour))

	notified := make(chan struct{}, 4)
	unsub := e.Subscribe(func() { notified <- struct{}{} })
	defer unsub()

	// Drain the immediate first tick.
	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("no initial tick")
	}

	src.sig.Store(sig(signal.Error, "network", "N", "Offline", true))
	require.NoError(t, e.Refresh(context.Background()))
	<-notified
	assert.Equal(t, "Offline", e.Snapshot().Summary)
}

func TestEngineSetIconPriority(t *testing.T) {
	a := &countingSource{name: "a"}
	a.sig.Store(sig(signal.Info, "audio", "A", "", false))
	u := &countingSource{name: "u"}
	u.sig.Store(sig(signal.Warn, "updates", "U", "", false))

	e := NewEngine([]Source{a, u})
	assert.Equal(t, []string{"A", "U"}, e.Compute().Icons)

	e.SetIconPriority([]string{"updates"})
	assert.Equal(t, []string{"updates"}, e.IconPriority())
	assert.Equal(t, []string{"U", "A"}, e.Compute().Icons)
}

func TestEngineKeepsCellSourcesRunning(t *testing.T) {
	var ticks atomic.Int64
	cell := poll.New[*signal.Signal]("updates", nil, time.Hour, poll.Func(func() *signal.Signal {
		ticks.Add(1)
		return sig(signal.Warn, "updates", "U", "1 update", false)
	}))
	e := NewEngine([]Source{cell}, WithInterval(time.Hour))

	assert.False(t, cell.Status().Running)
	unsub := e.Subscribe(func() {})
	assert.True(t, cell.Status().Running)
	assert.Eventually(t, func() bool { return ticks.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)

	unsub()
	unsub()
	assert.False(t, cell.Status().Running)
}

func TestSourceFunc(t *testing.T) {
	s := SourceFunc("notifications", func() *signal.Signal { return nil })
	assert.Equal(t, "notifications", s.Name())
	assert.Nil(t, s.Get())
}
