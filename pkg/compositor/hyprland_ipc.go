package compositor

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
)

// hyprIPC is the transport to a running Hyprland instance.
type hyprIPC interface {
	// Request sends one command on the command socket and returns the full
	// reply.
	Request(ctx context.Context, cmd string) ([]byte, error)
	// Events opens the event socket, which streams EVENT>>DATA lines.
	Events(ctx context.Context) (io.ReadCloser, error)
}

// socketIPC talks to the unix sockets in Hyprland's runtime directory.
type socketIPC struct {
	dir string
}

// hyprSocketDir resolves the runtime directory for an instance signature.
// Hyprland 0.40+ uses $XDG_RUNTIME_DIR/hypr; older releases used /tmp/hypr.
func hyprSocketDir(getenv func(string) string, signature string) (string, error) {
	if signature == "" {
		return "", fmt.Errorf("hyprland: HYPRLAND_INSTANCE_SIGNATURE not set")
	}
	var candidates []string
	if rt := getenv("XDG_RUNTIME_DIR"); rt != "" {
		candidates = append(candidates, filepath.Join(rt, "hypr", signature))
	}
	candidates = append(candidates, filepath.Join("/tmp", "hypr", signature))

	for _, dir := range candidates {
		if _, err := os.Stat(filepath.Join(dir, ".socket.sock")); err == nil {
			return dir, nil
		}
	}
	return "", fmt.Errorf("hyprland: no command socket for instance %s", signature)
}

func (s socketIPC) dial(ctx context.Context, name string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", filepath.Join(s.dir, name))
}

func (s socketIPC) Request(ctx context.Context, cmd string) ([]byte, error) {
	conn, err := s.dial(ctx, ".socket.sock")
	if err != nil {
		return nil, fmt.Errorf("hyprland request %q: %w", cmd, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if _, err := io.WriteString(conn, cmd); err != nil {
		return nil, fmt.Errorf("hyprland request %q: %w", cmd, err)
	}
	reply, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("hyprland request %q: read: %w", cmd, err)
	}
	return reply, nil
}

func (s socketIPC) Events(ctx context.Context) (io.ReadCloser, error) {
	conn, err := s.dial(ctx, ".socket2.sock")
	if err != nil {
		return nil, fmt.Errorf("hyprland events: %w", err)
	}
	return conn, nil
}
