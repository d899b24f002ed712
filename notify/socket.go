package notify

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/types"
)

// NotifyWriteChunkSize is the chunk size when writing payload to Unix socket (avoid large single write).
const NotifyWriteChunkSize = 32 * 1024 // 32KB

// MaxNotifyFiles caps the file and link lists of the session snapshot carried in a socket payload.
const MaxNotifyFiles = 20

var (
	// DefaultUnixSocketPath is the default Unix socket path for IPC
	DefaultUnixSocketPath = "/tmp/submitsession-notify.sock"
	// UnixSocketTimeout is the timeout for Unix socket operations
	UnixSocketTimeout = 3 * time.Second
)

// SocketSink forwards lifecycle notifications to a local listener over a Unix socket.
// Each message is a 4-byte little-endian length followed by the JSON payload.
// Progress updates (session_updated) are not forwarded.
type SocketSink struct {
	Path    string
	Timeout time.Duration
}

var _ Sink = (*SocketSink)(nil)

func NewSocketSink(path string) *SocketSink {
	if path == "" {
		path = DefaultUnixSocketPath
	}
	return &SocketSink{Path: path, Timeout: UnixSocketTimeout}
}

func (s *SocketSink) Broadcast(notification *types.Notification) {
	if notification == nil || notification.Type == types.NotifyTypeSessionUpdated {
		return
	}
	if err := s.Send(notification); err != nil {
		tool.DefaultLogger.Debugf("[UnixSocket] %v", err)
	}
}

// Send delivers one notification and waits for the listener's reply.
func (s *SocketSink) Send(notification *types.Notification) error {
	// Check if socket file exists
	if _, err := os.Stat(s.Path); os.IsNotExist(err) {
		return fmt.Errorf("unix socket not found: %s", s.Path)
	}

	payload, err := sonic.Marshal(truncate(notification))
	if err != nil {
		return fmt.Errorf("failed to serialize notification data: %v", err)
	}

	// Reject payload over 32KB
	if len(payload) > NotifyWriteChunkSize {
		return fmt.Errorf("notification payload too large: %d bytes (max %d)", len(payload), NotifyWriteChunkSize)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = UnixSocketTimeout
	}
	conn, err := net.DialTimeout("unix", s.Path, timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to Unix socket %s: %v", s.Path, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			tool.DefaultLogger.Errorf("Failed to close Unix socket connection: %v", err)
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		tool.DefaultLogger.Errorf("Failed to set deadline: %v", err)
	}

	lengthBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lengthBuf, uint32(len(payload)))
	if _, err := conn.Write(lengthBuf); err != nil {
		return fmt.Errorf("failed to write length to Unix socket: %v", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("failed to write payload to Unix socket: %v", err)
	}

	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read response from Unix socket: %v", err)
	}
	if n > 0 {
		var response map[string]any
		if err := sonic.Unmarshal(buf[:n], &response); err != nil {
			tool.DefaultLogger.Debugf("Unix socket response (raw): %s", string(buf[:n]))
		} else if errMsg, ok := response["error"].(string); ok && errMsg != "" {
			return fmt.Errorf("server returned error: %s", errMsg)
		}
	}

	tool.DefaultLogger.Infof("[UnixSocket] Notification sent: %s - %s", notification.Type, notification.Title)
	return nil
}

// truncate returns a copy whose session and update lists are capped at MaxNotifyFiles.
func truncate(n *types.Notification) *types.Notification {
	out := *n
	if n.Session != nil {
		s := n.Session.Clone()
		if len(s.Files) > MaxNotifyFiles {
			s.Files = s.Files[:MaxNotifyFiles]
		}
		if len(s.Links) > MaxNotifyFiles {
			s.Links = s.Links[:MaxNotifyFiles]
		}
		out.Session = &s
	}
	if n.Update != nil {
		u := *n.Update
		if len(u.Files) > MaxNotifyFiles {
			u.Files = u.Files[:MaxNotifyFiles]
		}
		if len(u.Links) > MaxNotifyFiles {
			u.Links = u.Links[:MaxNotifyFiles]
		}
		out.Update = &u
	}
	return &out
}
