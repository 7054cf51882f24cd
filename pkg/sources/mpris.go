package sources

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	mprisPrefix      = "org.mpris.MediaPlayer2."
	mprisPath        = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"
)

// Mpris enumerates media players on the session bus.
type Mpris struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

// NewMpris returns a player lister that connects on first use.
func NewMpris() *Mpris { return &Mpris{} }

// Players returns every MPRIS player sorted by bus name. Players that fail
// to answer are skipped.
func (m *Mpris) Players(ctx context.Context) ([]Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("connect session bus: %w", err)
		}
		m.conn = conn
	}

	var names []string
	if err := m.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		m.conn.Close()
		m.conn = nil
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	sort.Strings(names)

	var players []Player
	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		obj := m.conn.Object(name, mprisPath)
		status, err := getProperty(ctx, obj, mprisPlayerIface, "PlaybackStatus")
		if err != nil {
			continue
		}
		p := Player{BusName: name}
		p.Status, _ = status.Value().(string)
		if meta, err := getProperty(ctx, obj, mprisPlayerIface, "Metadata"); err == nil {
			if md, ok := meta.Value().(map[string]dbus.Variant); ok {
				p.Title, p.Artist = mprisTrack(md)
			}
		}
		players = append(players, p)
	}
	return players, nil
}

// mprisTrack extracts title and the joined artist list from MPRIS metadata.
func mprisTrack(md map[string]dbus.Variant) (title, artist string) {
	if v, ok := md["xesam:title"]; ok {
		title, _ = v.Value().(string)
	}
	if v, ok := md["xesam:artist"]; ok {
		switch a := v.Value().(type) {
		case []string:
			artist = strings.Join(a, ", ")
		case string:
			artist = a
		}
	}
	return title, artist
}

// Close drops the session bus connection.
func (m *Mpris) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}
