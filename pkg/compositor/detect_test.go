package compositor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

type versionRunner struct {
	err   error
	calls int
}

func (p *versionRunner) Output(context.Context, []string) ([]byte, error) {
	p.calls++
	return []byte("niri 25.05"), p.err
}

// --- Detect ---

func TestDetect(t *testing.T) {
	noNiri := errors.New("executable file not found")
	cases := []struct {
		name       string
		env        map[string]string
		versionErr error
		want       []Kind
		ranVersion bool
	}{
		{"hyprland signature", map[string]string{"HYPRLAND_INSTANCE_SIGNATURE": "abc"}, noNiri, []Kind{KindHyprland, KindFallback}, false},
		{"desktop hyprland", map[string]string{"XDG_CURRENT_DESKTOP": "Hyprland"}, noNiri, []Kind{KindHyprland, KindFallback}, false},
		{"desktop niri", map[string]string{"XDG_CURRENT_DESKTOP": "niri"}, noNiri, []Kind{KindNiri, KindFallback}, false},
		{"niri socket", map[string]string{"NIRI_SOCKET": "/run/user/1000/niri.sock"}, noNiri, []Kind{KindNiri, KindFallback}, false},
		{"both markers", map[string]string{"HYPRLAND_INSTANCE_SIGNATURE": "abc", "NIRI_SOCKET": "/x"}, nil, []Kind{KindHyprland, KindNiri, KindFallback}, false},
		{"niri version check", map[string]string{}, nil, []Kind{KindNiri, KindFallback}, true},
		{"nothing", map[string]string{"WAYLAND_DISPLAY": "wayland-1"}, noNiri, []Kind{KindFallback}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &versionRunner{err: tc.versionErr}
			got := Detect(context.Background(), Options{Getenv: envOf(tc.env), Runner: r})
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.ranVersion, r.calls > 0)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Niri ")
	require.NoError(t, err)
	assert.Equal(t, KindNiri, k)

	k, err = ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindAuto, k)

	_, err = ParseKind("sway")
	assert.ErrorIs(t, err, ErrUnsupported)
}

// --- Select ---

func TestSelectFallsThroughFailingConstructors(t *testing.T) {
	factories := map[Kind]Factory{
		KindHyprland: func(Options) (Adapter, error) { return nil, errors.New("no socket") },
		KindNiri:     func(Options) (Adapter, error) { panic("broken") },
	}
	a := Select([]Kind{KindHyprland, KindNiri, KindFallback}, factories, Options{})
	assert.Equal(t, "fallback", a.Name())
}

func TestSelectFirstSuccess(t *testing.T) {
	built := 0
	factories := map[Kind]Factory{
		KindHyprland: func(Options) (Adapter, error) { return nil, errors.New("no socket") },
		KindNiri: func(o Options) (Adapter, error) {
			built++
			return NewNiri(WithNiriRunner(&versionRunner{}))
		},
	}
	a := Select([]Kind{KindHyprland, KindNiri, KindFallback}, factories, Options{})
	assert.Equal(t, "niri", a.Name())
	assert.Equal(t, 1, built)
}

func TestSelectEmptyCandidates(t *testing.T) {
	a := Select(nil, map[Kind]Factory{}, Options{})
	assert.Equal(t, "fallback", a.Name())
}

func TestNewForcedBackend(t *testing.T) {
	factories := map[Kind]Factory{
		KindNiri: func(Options) (Adapter, error) { return nil, errors.New("niri missing") },
	}
	a := newWith(context.Background(), Options{Backend: KindNiri}, factories)
	assert.Equal(t, "fallback", a.Name())

	a = newWith(context.Background(), Options{Backend: KindFallback}, factories)
	assert.Equal(t, "fallback", a.Name())
}

// --- Provider ---

func TestProviderBuildsOnce(t *testing.T) {
	builds := 0
	p := &Provider{
		opts: Options{Backend: KindHyprland},
		factories: map[Kind]Factory{
			KindHyprland: func(o Options) (Adapter, error) {
				builds++
				return NewFallback(o.Logger), nil
			},
		},
	}
	a1 := p.Adapter()
	a2 := p.Adapter()
	assert.Same(t, a1, a2)
	assert.Equal(t, 1, builds)
	assert.NoError(t, p.Close())
}

func TestProviderCloseBeforeUse(t *testing.T) {
	p := NewProvider(Options{Backend: KindFallback})
	assert.NoError(t, p.Close())
	assert.Nil(t, p.Adapter())
}
