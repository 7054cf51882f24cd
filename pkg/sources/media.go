package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/signal"
)

// Media glyphs.
const (
	MicGlyph   = "󰍬"
	MusicGlyph = "󰎆"
)

// Stream is one PulseAudio/PipeWire client stream.
type Stream struct {
	Index  uint32
	App    string
	Corked bool
	Mute   bool
	// Volume is the loudest channel in raw units (65536 is 100%).
	Volume int
}

// Live reports whether the stream is carrying audible sound.
func (s Stream) Live() bool {
	return !s.Corked && !s.Mute && s.Volume > 0
}

// Player is one MPRIS media player.
type Player struct {
	BusName string
	Status  string
	Title   string
	Artist  string
}

// MediaBackend lists capture streams, MPRIS players and playback streams.
type MediaBackend interface {
	Recorders(ctx context.Context) ([]Stream, error)
	Players(ctx context.Context) ([]Player, error)
	Playback(ctx context.Context) ([]Stream, error)
}

// NewMedia returns the media cell. A probe that fails is treated as empty;
// the tick only fails when every probe does.
func NewMedia(b MediaBackend, opts ...Option) *Cell {
	return newCell("media", MediaInterval, poll.FuncErr(func(ctx context.Context) (*signal.Signal, error) {
		rec, recErr := b.Recorders(ctx)
		players, plErr := b.Players(ctx)
		out, outErr := b.Playback(ctx)
		if recErr != nil && plErr != nil && outErr != nil {
			return nil, errors.Join(recErr, plErr, outErr)
		}
		return MediaSignal(rec, players, out), nil
	}), opts)
}

// MediaSignal picks the most notable media activity: live capture, then a
// playing MPRIS player, then any live playback stream, else an idle
// placeholder.
func MediaSignal(recorders []Stream, players []Player, playback []Stream) *signal.Signal {
	for _, r := range recorders {
		if r.Live() {
			return &signal.Signal{
				Severity:   signal.Info,
				Category:   "mic",
				Icon:       MicGlyph,
				Summary:    "Microphone is active",
				Contextual: true,
				Raw:        map[string]any{"type": "microphone", "app": r.App},
			}
		}
	}
	for _, p := range players {
		if p.Status != "Playing" {
			continue
		}
		title := p.Title
		if title == "" {
			title = "Unknown"
		}
		summary := title
		if p.Artist != "" {
			summary = p.Artist + " - " + title
		}
		return &signal.Signal{
			Severity:   signal.Info,
			Category:   "audio",
			Icon:       MusicGlyph,
			Summary:    "Playing: " + summary,
			Contextual: true,
			Raw:        map[string]any{"type": "media-player", "player": p.BusName},
		}
	}
	for _, s := range playback {
		if s.Live() {
			return &signal.Signal{
				Severity:   signal.Info,
				Category:   "audio",
				Icon:       MusicGlyph,
				Summary:    "Audio is playing",
				Contextual: true,
				Raw:        map[string]any{"type": "audio-stream", "app": s.App},
			}
		}
	}
	return &signal.Signal{
		Severity:   signal.Idle,
		Category:   "media",
		Icon:       MusicGlyph,
		Summary:    "No active media",
		Contextual: true,
		Raw:        map[string]any{"type": "idle"},
	}
}

// Pactl lists streams with `pactl --format=json`.
type Pactl struct {
	Runner poll.Runner
}

// Recorders lists capture streams (source-outputs).
func (p Pactl) Recorders(ctx context.Context) ([]Stream, error) {
	return p.list(ctx, "source-outputs")
}

// Playback lists playback streams (sink-inputs).
func (p Pactl) Playback(ctx context.Context) ([]Stream, error) {
	return p.list(ctx, "sink-inputs")
}

func (p Pactl) list(ctx context.Context, kind string) ([]Stream, error) {
	runner := p.Runner
	if runner == nil {
		runner = poll.ExecRunner{}
	}
	out, err := runner.Output(ctx, []string{"pactl", "--format=json", "list", kind})
	if err != nil {
		return nil, err
	}
	return parsePactlStreams(out)
}

type pactlStream struct {
	Index  uint32 `json:"index"`
	Corked bool   `json:"corked"`
	Mute   bool   `json:"mute"`
	Volume map[string]struct {
		Value int `json:"value"`
	} `json:"volume"`
	Properties map[string]string `json:"properties"`
}

func parsePactlStreams(data []byte) ([]Stream, error) {
	var raw []pactlStream
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse pactl output: %w", err)
	}
	out := make([]Stream, 0, len(raw))
	for _, r := range raw {
		s := Stream{Index: r.Index, Corked: r.Corked, Mute: r.Mute}
		for _, ch := range r.Volume {
			if ch.Value > s.Volume {
				s.Volume = ch.Value
			}
		}
		s.App = r.Properties["application.name"]
		if s.App == "" {
			s.App = r.Properties["media.name"]
		}
		out = append(out, s)
	}
	return out, nil
}

// SystemMedia combines pactl streams with MPRIS players.
type SystemMedia struct {
	Pactl
	*Mpris
}

var _ MediaBackend = SystemMedia{}
