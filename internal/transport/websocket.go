package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Close codes the server uses to turn a member away.
const (
	StatusUnauthorized websocket.StatusCode = 4401
	StatusForbidden    websocket.StatusCode = 4403
)

type WSDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval is how often we ping; a ping without a pong inside PingTimeout ends
	// the connection. Zero disables keepalive.
	PingInterval time.Duration
	PingTimeout  time.Duration
	SendQueue    int
	ReadLimit    int64
	Header       http.Header
	Log          *zap.Logger
}

func NewWSDialer(log *zap.Logger) *WSDialer {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSDialer{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     3 * time.Second,
		PingInterval:     15 * time.Second,
		PingTimeout:      10 * time.Second,
		SendQueue:        64,
		ReadLimit:        1 << 20,
		Log:              log.Named("transport"),
	}
}

func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	dialCtx := ctx
	if d.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d.HandshakeTimeout)
		defer cancel()
	}

	ws, resp, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{HTTPHeader: d.Header})
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
				return nil, fmt.Errorf("dial: http %d: %w", resp.StatusCode, ErrJoinRejected)
			}
		}
		return nil, &Error{Op: "dial", Err: err}
	}
	if d.ReadLimit > 0 {
		ws.SetReadLimit(d.ReadLimit)
	}

	queue := d.SendQueue
	if queue <= 0 {
		queue = 64
	}
	wt := d.WriteTimeout
	if wt <= 0 {
		wt = 3 * time.Second
	}
	connCtx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		ws:     ws,
		log:    log,
		frames: make(chan Frame, 64),
		sendq:  make(chan []byte, queue),
		done:   make(chan struct{}),
		ctx:    connCtx,
		cancel: cancel,
		wt:     wt,
	}
	go c.readLoop()
	go c.writeLoop()
	if d.PingInterval > 0 {
		go c.pingLoop(d.PingInterval, d.PingTimeout)
	}
	log.Debug("connected", zap.String("url", redact(url)))
	return c, nil
}

type wsConn struct {
	ws     *websocket.Conn
	log    *zap.Logger
	frames chan Frame
	sendq  chan []byte
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wt     time.Duration

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (c *wsConn) Frames() <-chan Frame   { return c.frames }
func (c *wsConn) Done() <-chan struct{} { return c.done }

func (c *wsConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.sendq <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *wsConn) Close() error {
	c.finish(nil, websocket.StatusNormalClosure)
	return nil
}

// finish records the first terminal cause and tears everything down exactly once.
func (c *wsConn) finish(cause error, status websocket.StatusCode) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = cause
		c.mu.Unlock()
		c.cancel()
		if cause == nil {
			// Close waits for the peer's reply, up to five seconds.
			go func() { _ = c.ws.Close(status, "bye") }()
		} else {
			_ = c.ws.CloseNow()
		}
		close(c.done)
		if cause != nil {
			c.log.Info("connection ended", zap.Error(cause))
		}
	})
}

func (c *wsConn) readLoop() {
	defer close(c.frames)
	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			c.finish(classifyRead(err), websocket.StatusNormalClosure)
			return
		}
		select {
		case c.frames <- Frame{Data: data, ReceivedAt: time.Now()}:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.sendq:
			ctx, cancel := context.WithTimeout(c.ctx, c.wt)
			err := c.ws.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					c.finish(&Error{Op: "write", Err: err}, websocket.StatusInternalError)
				}
				return
			}
		}
	}
}

func (c *wsConn) pingLoop(every, timeout time.Duration) {
	if timeout <= 0 {
		timeout = every
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, timeout)
			err := c.ws.Ping(ctx)
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					c.finish(&Error{Op: "ping", Err: err}, websocket.StatusGoingAway)
				}
				return
			}
		}
	}
}

// classifyRead maps a read failure to the session's taxonomy. A local Close makes the
// read fail too, but finish has already recorded nil by then.
func classifyRead(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusPolicyViolation, StatusUnauthorized, StatusForbidden:
		return &Error{Op: "read", Err: ErrPolicyClose}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return &Error{Op: "read", Err: err}
}

// redact drops the token, which is the last path segment.
func redact(url string) string {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			return url[:i+1] + "***"
		}
	}
	return url
}

var _ Dialer = (*WSDialer)(nil)
