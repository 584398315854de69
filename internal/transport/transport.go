package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var ErrJoinRejected = errors.New("join rejected")
var ErrNotConnected = errors.New("not connected")
var ErrSendQueueFull = errors.New("send queue full")

// ErrPolicyClose is a server close with a rejection code. Before the first snapshot the
// session reports it as ErrJoinRejected.
var ErrPolicyClose = errors.New("closed by server policy")

// Error is a connect or socket failure. The caller may reconnect.
type Error struct {
	Op  string // dial, read, write, ping
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Frame is one inbound message, stamped when it came off the socket.
type Frame struct {
	Data       []byte
	ReceivedAt time.Time
}

// Conn is one physical connection. It never reconnects on its own.
type Conn interface {
	// Frames yields inbound frames in arrival order and is closed once the connection ends.
	Frames() <-chan Frame
	// Send queues data for the writer. It does not block.
	Send(data []byte) error
	Done() <-chan struct{}
	// Err is the reason the connection ended; nil after a local Close or while still open.
	Err() error
	// Close is idempotent.
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// NormalizeWSURL maps http(s) bases onto ws(s).
func NormalizeWSURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", base)
	}
	return u.String(), nil
}

// BuildURL returns {base}/groups/group/{groupID}/{token}.
func BuildURL(base, groupID, token string) (string, error) {
	if groupID == "" || token == "" {
		return "", errors.New("group id and token are required")
	}
	normalized, err := NormalizeWSURL(base)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return "", err
	}
	escaped := strings.TrimRight(u.EscapedPath(), "/") +
		"/groups/group/" + url.PathEscape(groupID) + "/" + url.PathEscape(token)
	path, err := url.PathUnescape(escaped)
	if err != nil {
		return "", err
	}
	u.Path = path
	u.RawPath = escaped
	return u.String(), nil
}
