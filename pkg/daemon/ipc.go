package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// IPCHandler processes incoming IPC commands. Implementations dispatch
// commands to the appropriate daemon subsystem and return a value that is
// sent back as JSON.
type IPCHandler interface {
	HandleCommand(ctx context.Context, cmd string, args []string) (any, error)
}

// IPCHandlerFunc adapts a function to IPCHandler.
type IPCHandlerFunc func(ctx context.Context, cmd string, args []string) (any, error)

// HandleCommand calls f.
func (f IPCHandlerFunc) HandleCommand(ctx context.Context, cmd string, args []string) (any, error) {
	return f(ctx, cmd, args)
}

// requestTimeout bounds one client conversation on the server side.
const requestTimeout = 5 * time.Second

// IPCServer listens on a Unix domain socket for line-based text commands
// and returns JSON responses.
//
// Protocol:
//   - Client sends a single line: COMMAND [arg1] [arg2] ...
//   - Server responds with one JSON line: the result, or {"error": "..."}.
type IPCServer struct {
	socketPath string
	handler    IPCHandler
	logger     *slog.Logger
	listener   net.Listener
	wg         sync.WaitGroup
	done       chan struct{}
	stopOnce   sync.Once
}

// NewIPCServer creates an IPC server that will listen on socketPath and
// dispatch commands to handler.
func NewIPCServer(socketPath string, handler IPCHandler, logger *slog.Logger) *IPCServer {
	if logger == nil {
		logger = discardLogger()
	}
	return &IPCServer{
		socketPath: socketPath,
		handler:    handler,
		logger:     logger.With("component", "ipc"),
		done:       make(chan struct{}),
	}
}

// Start begins listening for connections on the Unix socket. The socket file
// is created with mode 0600. Any existing socket file at the path is removed
// first; callers hold the PID file, so it can only be stale.
func (s *IPCServer) Start() error {
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener, waits for active connections to finish and
// removes the socket file. It is safe to call more than once.
func (s *IPCServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *IPCServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Debug("accept failed", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn reads one line, dispatches it and writes one JSON line back.
func (s *IPCServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(requestTimeout))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}
	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return
	}

	cmd, args := parseIPCCommand(line)
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	data := s.dispatch(ctx, cmd, args)
	fmt.Fprintf(conn, "%s\n", data)
}

// dispatch runs the handler with panic containment and encodes the reply.
func (s *IPCServer) dispatch(ctx context.Context, cmd string, args []string) (data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("ipc handler panicked", "command", cmd, "panic", r)
			data = errorJSON(fmt.Errorf("internal error handling %s", cmd))
		}
	}()

	result, err := s.handler.HandleCommand(ctx, cmd, args)
	if err != nil {
		s.logger.Debug("ipc command failed", "command", cmd, "error", err)
		return errorJSON(err)
	}
	data, err = json.Marshal(result)
	if err != nil {
		return errorJSON(fmt.Errorf("encode %s response: %w", cmd, err))
	}
	return data
}

func errorJSON(err error) []byte {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return data
}

// parseIPCCommand splits a line into the upper-cased command name and its
// positional arguments.
//
// Format:
//
//	STATE                 -> cmd="STATE", args=[]
//	WORKSPACES DP-1       -> cmd="WORKSPACES", args=[DP-1]
//	DISMISS all           -> cmd="DISMISS", args=[all]
func parseIPCCommand(line string) (string, []string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", nil
	}
	return strings.ToUpper(parts[0]), parts[1:]
}

// RemoteError is an error reported by the daemon.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "daemon: " + e.Message }

// IPCClient connects to a running daemon via Unix socket to send commands.
type IPCClient struct {
	socketPath string
}

// NewIPCClient creates a client that will connect to the daemon at socketPath.
func NewIPCClient(socketPath string) *IPCClient {
	return &IPCClient{socketPath: socketPath}
}

// SendCommand sends a text command to the daemon and returns the raw JSON
// response line. Each call opens a new connection.
func (c *IPCClient) SendCommand(ctx context.Context, cmd string) ([]byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(requestTimeout)
	}
	_ = conn.SetDeadline(deadline)

	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return nil, fmt.Errorf("send command: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return nil, fmt.Errorf("empty response from daemon")
	}
	return append([]byte(nil), scanner.Bytes()...), nil
}

// Call sends cmd and decodes the reply into v. A daemon-side error comes
// back as *RemoteError.
func (c *IPCClient) Call(ctx context.Context, cmd string, v any) error {
	data, err := c.SendCommand(ctx, cmd)
	if err != nil {
		return err
	}
	if err := ReplyError(data); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s response: %w", strings.Fields(cmd)[0], err)
	}
	return nil
}

// ReplyError returns a *RemoteError when data is an error reply.
func ReplyError(data []byte) error {
	var envelope struct {
		Error *string `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Error != nil {
		return &RemoteError{Message: *envelope.Error}
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
