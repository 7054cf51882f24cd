package sources

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	nmDest       = "org.freedesktop.NetworkManager"
	nmPath       = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmIface      = "org.freedesktop.NetworkManager"
	nmActiveConn = "org.freedesktop.NetworkManager.Connection.Active"
	nmAP         = "org.freedesktop.NetworkManager.AccessPoint"
	nmDevice     = "org.freedesktop.NetworkManager.Device"
)

// NetworkManager reads connection state from NetworkManager on the system
// bus.
type NetworkManager struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

// NewNetworkManager returns a backend that connects on first use.
func NewNetworkManager() *NetworkManager { return &NetworkManager{} }

// Network implements NetworkBackend.
func (n *NetworkManager) Network(ctx context.Context) (NetworkStatus, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
		if err != nil {
			return NetworkStatus{}, fmt.Errorf("connect system bus: %w", err)
		}
		n.conn = conn
	}
	st, err := n.query(ctx)
	if err != nil {
		n.conn.Close()
		n.conn = nil
		return NetworkStatus{}, err
	}
	return st, nil
}

func (n *NetworkManager) query(ctx context.Context) (NetworkStatus, error) {
	nm := n.conn.Object(nmDest, nmPath)
	st := NetworkStatus{Strength: -1, Backend: "networkmanager"}

	state, err := getProperty(ctx, nm, nmIface, "State")
	if err != nil {
		return st, err
	}
	v, _ := state.Value().(uint32)
	st.State = nmState(v)

	st.Connectivity = ConnectivityUnknown
	if c, err := getProperty(ctx, nm, nmIface, "Connectivity"); err == nil {
		v, _ := c.Value().(uint32)
		st.Connectivity = nmConnectivity(v)
	}

	if st.State != Online {
		return st, nil
	}

	if pt, err := getProperty(ctx, nm, nmIface, "PrimaryConnectionType"); err == nil {
		t, _ := pt.Value().(string)
		st.Kind = nmKind(t)
	}
	if pc, err := getProperty(ctx, nm, nmIface, "PrimaryConnection"); err == nil {
		if path, ok := pc.Value().(dbus.ObjectPath); ok && path != "/" {
			n.describePrimary(ctx, path, &st)
		}
	}
	st.VPNs = n.activeVPNs(ctx, nm)
	return st, nil
}

// describePrimary fills interface, SSID and strength from the primary
// active connection. Missing properties are left empty.
func (n *NetworkManager) describePrimary(ctx context.Context, path dbus.ObjectPath, st *NetworkStatus) {
	ac := n.conn.Object(nmDest, path)
	if d, err := getProperty(ctx, ac, nmActiveConn, "Devices"); err == nil {
		if devs, ok := d.Value().([]dbus.ObjectPath); ok && len(devs) > 0 {
			if iface, err := getProperty(ctx, n.conn.Object(nmDest, devs[0]), nmDevice, "Interface"); err == nil {
				st.Interface, _ = iface.Value().(string)
			}
		}
	}
	if st.Kind != KindWifi {
		return
	}
	so, err := getProperty(ctx, ac, nmActiveConn, "SpecificObject")
	if err != nil {
		return
	}
	apPath, ok := so.Value().(dbus.ObjectPath)
	if !ok || apPath == "/" {
		return
	}
	ap := n.conn.Object(nmDest, apPath)
	if s, err := getProperty(ctx, ap, nmAP, "Ssid"); err == nil {
		if b, ok := s.Value().([]byte); ok {
			st.SSID = string(b)
		}
	}
	if s, err := getProperty(ctx, ap, nmAP, "Strength"); err == nil {
		if b, ok := s.Value().(byte); ok {
			st.Strength = int(b)
		}
	}
}

// activeVPNs returns the ids of active VPN and WireGuard connections.
func (n *NetworkManager) activeVPNs(ctx context.Context, nm dbus.BusObject) []string {
	v, err := getProperty(ctx, nm, nmIface, "ActiveConnections")
	if err != nil {
		return nil
	}
	paths, _ := v.Value().([]dbus.ObjectPath)
	var names []string
	for _, p := range paths {
		ac := n.conn.Object(nmDest, p)
		t, err := getProperty(ctx, ac, nmActiveConn, "Type")
		if err != nil {
			continue
		}
		connType, _ := t.Value().(string)
		if !isVPNType(connType) {
			continue
		}
		name := connType
		if id, err := getProperty(ctx, ac, nmActiveConn, "Id"); err == nil {
			if s, _ := id.Value().(string); s != "" {
				name = s
			}
		}
		names = append(names, name)
	}
	return names
}

// Close drops the system bus connection.
func (n *NetworkManager) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}
