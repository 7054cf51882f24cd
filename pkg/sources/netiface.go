package sources

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// InterfaceScan infers connectivity from local interfaces when no network
// daemon answers. It cannot see wifi strength or upstream connectivity.
type InterfaceScan struct {
	// List defaults to gopsutil's interface listing.
	List func(ctx context.Context) (psnet.InterfaceStatList, error)
}

// Network implements NetworkBackend.
func (s InterfaceScan) Network(ctx context.Context) (NetworkStatus, error) {
	list := s.List
	if list == nil {
		list = psnet.InterfacesWithContext
	}
	ifaces, err := list(ctx)
	if err != nil {
		return NetworkStatus{}, fmt.Errorf("list interfaces: %w", err)
	}
	return scanInterfaces(ifaces), nil
}

func scanInterfaces(ifaces psnet.InterfaceStatList) NetworkStatus {
	st := NetworkStatus{
		State:        Offline,
		Strength:     -1,
		Connectivity: ConnectivityUnknown,
		Backend:      "interfaces",
	}
	rank := func(kind string) int {
		switch kind {
		case KindEthernet:
			return 2
		case KindWifi:
			return 1
		}
		return 0
	}
	for _, iface := range ifaces {
		if !slices.Contains(iface.Flags, "up") || !hasRoutableAddr(iface.Addrs) {
			continue
		}
		switch kind := classifyInterface(iface.Name); kind {
		case KindEthernet, KindWifi:
			if st.State != Online || rank(kind) > rank(st.Kind) {
				st.State = Online
				st.Kind = kind
				st.Interface = iface.Name
			}
		case "vpn":
			st.VPNs = append(st.VPNs, iface.Name)
		}
	}
	if st.State != Online {
		st.VPNs = nil
	}
	return st
}

// classifyInterface sorts a Linux interface name into ethernet, wifi, vpn,
// loopback or virtual.
func classifyInterface(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "lo"):
		return "loopback"
	case strings.HasPrefix(lower, "tailscale"),
		strings.HasPrefix(lower, "wg"),
		strings.HasPrefix(lower, "tun"),
		strings.HasPrefix(lower, "ppp"):
		return "vpn"
	case strings.HasPrefix(lower, "veth"),
		strings.HasPrefix(lower, "br-"),
		strings.HasPrefix(lower, "docker"),
		strings.HasPrefix(lower, "cni"),
		strings.HasPrefix(lower, "flannel"),
		strings.HasPrefix(lower, "vxlan"),
		strings.HasPrefix(lower, "virbr"):
		return "virtual"
	case strings.HasPrefix(lower, "eth"),
		strings.HasPrefix(lower, "enp"),
		strings.HasPrefix(lower, "eno"),
		strings.HasPrefix(lower, "ens"),
		strings.HasPrefix(lower, "enx"):
		return KindEthernet
	case strings.HasPrefix(lower, "wl"), strings.HasPrefix(lower, "ww"):
		return KindWifi
	}
	return "virtual"
}

// hasRoutableAddr reports whether any address is neither loopback nor
// link-local.
func hasRoutableAddr(addrs psnet.InterfaceAddrList) bool {
	for _, a := range addrs {
		s := a.Addr
		if i := strings.IndexByte(s, '/'); i >= 0 {
			s = s[:i]
		}
		ip, err := netip.ParseAddr(s)
		if err != nil {
			continue
		}
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			continue
		}
		return true
	}
	return false
}
