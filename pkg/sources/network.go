package sources

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"gitlab.com/tinyland/lab/statebar/pkg/poll"
	"gitlab.com/tinyland/lab/statebar/pkg/signal"
)

// Network glyphs.
const (
	VPNGlyph      = "󰖂"
	WifiGlyph     = "󰖩"
	EthernetGlyph = "󰈀"
	OfflineGlyph  = "󰖪"
)

// WeakSignal is the wifi strength (percent) below which the link is flagged.
const WeakSignal = 30

// LinkState is the coarse connection state.
type LinkState int

const (
	Offline LinkState = iota
	Connecting
	Online
)

func (s LinkState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Online:
		return "online"
	}
	return "offline"
}

// Link kinds.
const (
	KindWifi     = "wifi"
	KindEthernet = "ethernet"
	KindOther    = "other"
)

// Connectivity values as reported by NetworkManager.
const (
	ConnectivityUnknown = "unknown"
	ConnectivityNone    = "none"
	ConnectivityPortal  = "portal"
	ConnectivityLimited = "limited"
	ConnectivityFull    = "full"
)

// NetworkStatus is one observation of the host's connectivity.
type NetworkStatus struct {
	State        LinkState
	Kind         string
	Interface    string
	SSID         string
	Strength     int // percent, negative when unknown
	Connectivity string
	VPNs         []string
	Backend      string
}

// NetworkBackend observes the primary connection.
type NetworkBackend interface {
	Network(ctx context.Context) (NetworkStatus, error)
}

// VPNProbe reports overlay VPNs that the network backend cannot see. It
// returns the empty string when no tunnel is up.
type VPNProbe interface {
	VPN(ctx context.Context) (string, error)
}

// NewNetwork returns the network cell. vpn may be nil; its failures are
// ignored.
func NewNetwork(b NetworkBackend, vpn VPNProbe, opts ...Option) *Cell {
	return newCell("network", NetworkInterval, poll.FuncErr(func(ctx context.Context) (*signal.Signal, error) {
		st, err := b.Network(ctx)
		if err != nil {
			return nil, err
		}
		if vpn != nil && st.State == Online {
			if name, err := vpn.VPN(ctx); err == nil && name != "" {
				st.VPNs = append(st.VPNs, name)
			}
		}
		return NetworkSignal(st), nil
	}), opts)
}

// NetworkSignal derives the network signal from one observation.
func NetworkSignal(st NetworkStatus) *signal.Signal {
	sig := &signal.Signal{
		Severity:   signal.Idle,
		Category:   "network",
		Icon:       WifiGlyph,
		Summary:    "Network connected",
		Contextual: true,
	}
	connectivity := st.Connectivity

	switch st.State {
	case Offline:
		sig.Severity = signal.Error
		sig.Icon = OfflineGlyph
		sig.Summary = "No network connection"
		connectivity = ConnectivityNone
	case Connecting:
		sig.Severity = signal.Info
		sig.Summary = "Connecting to network..."
		connectivity = "connecting"
	case Online:
		switch st.Kind {
		case KindEthernet:
			sig.Icon = EthernetGlyph
			sig.Summary = "Ethernet connected"
		case KindWifi:
			ssid := st.SSID
			if ssid == "" {
				ssid = "Unknown"
			}
			sig.Summary = "Connected to " + ssid
			if st.Strength >= 0 && st.Strength < WeakSignal {
				sig.Severity = signal.Warn
				sig.Summary += " (weak signal)"
			}
		}
		switch connectivity {
		case ConnectivityLimited:
			sig.Severity = signal.Warn
			sig.Summary += " (limited connectivity)"
		case ConnectivityPortal:
			sig.Severity = signal.Warn
			sig.Summary += " (captive portal)"
		case ConnectivityNone:
			sig.Severity = signal.Warn
			sig.Summary += " (no internet)"
		}
		if len(st.VPNs) > 0 {
			sig.Summary += " via " + strings.Join(st.VPNs, ", ")
			if sig.Severity == signal.Idle {
				sig.Severity = signal.Info
				sig.Icon = VPNGlyph
			}
		}
	}

	raw := map[string]any{
		"connectivity": connectivity,
		"vpnActive":    st.State == Online && len(st.VPNs) > 0,
		"kind":         st.Kind,
	}
	if len(st.VPNs) > 0 {
		raw["vpn"] = st.VPNs
	}
	if st.Kind == KindWifi && st.Strength >= 0 {
		raw["wifiStrength"] = st.Strength
	}
	if st.Interface != "" {
		raw["interface"] = st.Interface
	}
	if st.Backend != "" {
		raw["backend"] = st.Backend
	}
	sig.Raw = raw
	return sig
}

// FallbackNetwork asks Primary first and Secondary when it fails.
type FallbackNetwork struct {
	Primary   NetworkBackend
	Secondary NetworkBackend
	Logger    *slog.Logger

	usingSecondary bool
}

// Network implements NetworkBackend.
func (f *FallbackNetwork) Network(ctx context.Context) (NetworkStatus, error) {
	st, err := f.Primary.Network(ctx)
	if err == nil {
		if f.usingSecondary && f.Logger != nil {
			f.Logger.Info("primary network backend recovered")
		}
		f.usingSecondary = false
		return st, nil
	}
	st, err2 := f.Secondary.Network(ctx)
	if err2 != nil {
		return NetworkStatus{}, errors.Join(err, err2)
	}
	if !f.usingSecondary && f.Logger != nil {
		f.Logger.Warn("primary network backend unavailable, scanning interfaces", "error", err)
	}
	f.usingSecondary = true
	return st, nil
}

// nmState maps NetworkManager's NMState to a LinkState.
func nmState(v uint32) LinkState {
	switch {
	case v >= 50:
		return Online
	case v == 40:
		return Connecting
	}
	return Offline
}

// nmConnectivity maps NMConnectivityState to its name.
func nmConnectivity(v uint32) string {
	switch v {
	case 1:
		return ConnectivityNone
	case 2:
		return ConnectivityPortal
	case 3:
		return ConnectivityLimited
	case 4:
		return ConnectivityFull
	}
	return ConnectivityUnknown
}

// nmKind maps a connection type such as "802-11-wireless" to a link kind.
func nmKind(connType string) string {
	switch connType {
	case "802-11-wireless":
		return KindWifi
	case "802-3-ethernet":
		return KindEthernet
	}
	return KindOther
}

// isVPNType reports whether an active connection type is a tunnel.
func isVPNType(connType string) bool {
	return connType == "vpn" || connType == "wireguard"
}
