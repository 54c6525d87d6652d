package signal

import (
	"sync"
	"time"

	"pairline/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Connection is the outbound half of one websocket. Events are queued and
// written by a single writer goroutine, so Send never blocks and preserves
// enqueue order.
type Connection struct {
	conn         *websocket.Conn
	send         chan *domain.Event
	closed       chan struct{}
	closeOnce    sync.Once
	done         chan struct{}
	pingInterval time.Duration
	writeTimeout time.Duration
	logger       *zap.SugaredLogger
}

func newConnection(conn *websocket.Conn, queueSize int, pingInterval, writeTimeout time.Duration, logger *zap.SugaredLogger) *Connection {
	return &Connection{
		conn:         conn,
		send:         make(chan *domain.Event, queueSize),
		closed:       make(chan struct{}),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Send enqueues event for delivery.
func (c *Connection) Send(event *domain.Event) error {
	select {
	case <-c.closed:
		return domain.ErrTransportClosed
	default:
	}

	select {
	case c.send <- event:
		return nil
	default:
		return domain.ErrTransportOverflow
	}
}

// Close stops the writer after it flushes what is already queued. The
// underlying socket is closed by the writer.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Done is closed once the writer has exited and the socket is closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) writeLoop() {
	pingTicker := time.NewTicker(c.pingInterval)
	defer func() {
		pingTicker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case event := <-c.send:
			if err := c.write(event); err != nil {
				c.logger.Debugw("websocket write failed", "event", event.Type, "error", err)
				c.Close()
				return
			}

		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debugw("error sending ping", "error", err)
				c.Close()
				return
			}

		case <-c.closed:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush drains events queued before Close.
func (c *Connection) flush() {
	for {
		select {
		case event := <-c.send:
			if err := c.write(event); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) write(event *domain.Event) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(event)
}
