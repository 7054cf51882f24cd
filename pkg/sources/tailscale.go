package sources

import (
	"context"
	"fmt"
	"strings"

	"tailscale.com/client/local"
	"tailscale.com/ipn/ipnstate"
)

// TailscaleClient abstracts the tailscaled LocalAPI. *local.Client satisfies
// it.
type TailscaleClient interface {
	Status(ctx context.Context) (*ipnstate.Status, error)
}

// Tailscale reports the tailnet as a VPN when tailscaled is running.
type Tailscale struct {
	Client TailscaleClient
}

// NewTailscale talks to tailscaled over socketPath, or the platform default
// socket when empty.
func NewTailscale(socketPath string) *Tailscale {
	lc := &local.Client{}
	if socketPath != "" {
		lc.Socket = socketPath
	}
	return &Tailscale{Client: lc}
}

// VPN implements VPNProbe. The name is "Tailscale", qualified with the exit
// node's host name when traffic is routed through one.
func (t *Tailscale) VPN(ctx context.Context) (string, error) {
	st, err := t.Client.Status(ctx)
	if err != nil {
		return "", fmt.Errorf("tailscale status: %w", err)
	}
	return tailscaleVPN(st), nil
}

func tailscaleVPN(st *ipnstate.Status) string {
	if st == nil || st.BackendState != "Running" {
		return ""
	}
	for _, k := range st.Peers() {
		ps := st.Peer[k]
		if ps != nil && ps.ExitNode {
			host := ps.HostName
			if host == "" {
				host = strings.TrimSuffix(ps.DNSName, ".")
			}
			return "Tailscale (exit " + host + ")"
		}
	}
	return "Tailscale"
}
