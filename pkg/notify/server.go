package notify

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const (
	BusName    = "org.freedesktop.Notifications"
	ObjectPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	Interface  = "org.freedesktop.Notifications"
)

// ErrNameTaken means another notification daemon already owns BusName.
var ErrNameTaken = errors.New("notify: " + BusName + " is owned by another process")

// ServerInfo is returned by GetServerInformation.
type ServerInfo struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}

// Capabilities advertised to clients.
var Capabilities = []string{"body", "body-markup", "actions", "persistence", "icon-static"}

// emitter is the part of *dbus.Conn used to send NotificationClosed.
type emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// handler carries the exported D-Bus methods. Method names and signatures
// are the wire contract.
type handler struct {
	inbox  *Inbox
	info   ServerInfo
	logger *slog.Logger
}

// Notify implements org.freedesktop.Notifications.Notify.
func (h *handler) Notify(appName string, replacesID uint32, appIcon, summary, body string,
	actions []string, hints map[string]dbus.Variant, expireTimeout int32) (uint32, *dbus.Error) {
	n := Notification{
		ID:      replacesID,
		AppName: appName,
		AppIcon: appIcon,
		Summary: summary,
		Body:    body,
		Actions: actions,
		Urgency: UrgencyNormal,
	}
	applyHints(&n, hints)
	id := h.inbox.Add(n)
	h.logger.Debug("notification received", "id", id, "app", n.AppName, "urgency", n.Urgency)
	return id, nil
}

// CloseNotification implements org.freedesktop.Notifications.CloseNotification.
func (h *handler) CloseNotification(id uint32) *dbus.Error {
	h.inbox.Close(id, ReasonClosed)
	return nil
}

// GetCapabilities implements org.freedesktop.Notifications.GetCapabilities.
func (h *handler) GetCapabilities() ([]string, *dbus.Error) {
	return append([]string(nil), Capabilities...), nil
}

// GetServerInformation implements
// org.freedesktop.Notifications.GetServerInformation.
func (h *handler) GetServerInformation() (string, string, string, string, *dbus.Error) {
	return h.info.Name, h.info.Vendor, h.info.Version, h.info.SpecVersion, nil
}

// applyHints copies the hints the inbox understands. Unknown or mistyped
// hints are ignored.
func applyHints(n *Notification, hints map[string]dbus.Variant) {
	if v, ok := hints["urgency"]; ok {
		switch u := v.Value().(type) {
		case byte:
			n.Urgency = Urgency(u)
		case int32:
			n.Urgency = Urgency(u)
		case uint32:
			n.Urgency = Urgency(u)
		}
		if n.Urgency > UrgencyCritical {
			n.Urgency = UrgencyNormal
		}
	}
	for _, key := range []string{"image-path", "image_path"} {
		if v, ok := hints[key]; ok {
			if s, ok := v.Value().(string); ok && s != "" {
				n.Image = s
				break
			}
		}
	}
	if n.AppIcon == "" {
		if v, ok := hints["desktop-entry"]; ok {
			if s, ok := v.Value().(string); ok {
				n.AppIcon = s
			}
		}
	}
}

// Server exports the inbox on a bus connection.
type Server struct {
	conn     *dbus.Conn
	handler  *handler
	logger   *slog.Logger
	unsubbed func()
}

// Serve exports the notification interface on conn and claims BusName. It
// returns ErrNameTaken when another daemon owns the name; the inbox stays
// usable either way.
func Serve(conn *dbus.Conn, inbox *Inbox, info ServerInfo, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = discardLogger()
	}
	logger = logger.With("component", "notify")
	h := &handler{inbox: inbox, info: info, logger: logger}

	if err := conn.Export(h, ObjectPath, Interface); err != nil {
		return nil, fmt.Errorf("export %s: %w", Interface, err)
	}
	node := &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    Interface,
				Methods: introspect.Methods(h),
				Signals: []introspect.Signal{{
					Name: "NotificationClosed",
					Args: []introspect.Arg{
						{Name: "id", Type: "u", Direction: "out"},
						{Name: "reason", Type: "u", Direction: "out"},
					},
				}},
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		unexport(conn)
		return nil, fmt.Errorf("request name %s: %w", BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		unexport(conn)
		return nil, ErrNameTaken
	}

	s := &Server{conn: conn, handler: h, logger: logger}
	s.unsubbed = inbox.OnClosed(closedEmitter(conn, logger))
	logger.Info("notification server running", "name", BusName)
	return s, nil
}

func closedEmitter(e emitter, logger *slog.Logger) func(uint32, CloseReason) {
	return func(id uint32, reason CloseReason) {
		if err := e.Emit(ObjectPath, Interface+".NotificationClosed", id, uint32(reason)); err != nil {
			logger.Warn("emit NotificationClosed failed", "id", id, "error", err)
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func unexport(conn *dbus.Conn) {
	_ = conn.Export(nil, ObjectPath, Interface)
	_ = conn.Export(nil, ObjectPath, "org.freedesktop.DBus.Introspectable")
}

// Close releases the bus name and stops emitting signals. The connection
// itself belongs to the caller.
func (s *Server) Close() error {
	s.unsubbed()
	unexport(s.conn)
	if _, err := s.conn.ReleaseName(BusName); err != nil {
		return fmt.Errorf("release %s: %w", BusName, err)
	}
	return nil
}
