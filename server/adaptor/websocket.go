package adaptor

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ponyo877/relaychat/server/domain"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var (
	ErrTransportClosed = errors.New("transport closed")
	ErrSendQueueFull   = errors.New("send queue full")
)

// WebSocketTransport adapts a gorilla connection to usecase.Transport. Reads
// happen on one goroutine and writes on another, fed by a bounded queue.
type WebSocketTransport struct {
	conn   *websocket.Conn
	remote string
	logger *zap.Logger

	events chan domain.Event
	send   chan string
	done   chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

func NewWebSocketTransport(conn *websocket.Conn, queueSize int, logger *zap.Logger) *WebSocketTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &WebSocketTransport{
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		logger: logger,
		events: make(chan domain.Event, 16),
		send:   make(chan string, queueSize),
		done:   make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPingHandler(func(data string) error {
		t.events <- domain.NewPingEvent([]byte(data))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return nil
	})
	conn.SetPongHandler(func(data string) error {
		t.events <- domain.NewPongEvent([]byte(data))
		return nil
	})

	go t.readPump()
	go t.writePump()
	return t
}

func (t *WebSocketTransport) Events() <-chan domain.Event {
	return t.events
}

func (t *WebSocketTransport) RemoteAddr() string {
	return t.remote
}

func (t *WebSocketTransport) readPump() {
	code, reason := websocket.CloseNormalClosure, ""
	defer func() {
		t.shutdown()
		t.events <- domain.NewCloseEvent(code, reason)
		close(t.events)
	}()

	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			switch {
			case errors.As(err, &ce):
				code, reason = ce.Code, ce.Text
			case errors.Is(err, websocket.ErrReadLimit):
				code, reason = websocket.CloseMessageTooBig, "message too big"
			case t.closed.Load():
				reason = "closed by server"
			default:
				code, reason = websocket.CloseAbnormalClosure, err.Error()
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !t.closed.Load() {
				t.logger.Debug("websocket read failed", zap.String("remote", t.remote), zap.Error(err))
			}
			return
		}
		switch mt {
		case websocket.TextMessage:
			t.events <- domain.NewTextEvent(string(data))
		case websocket.BinaryMessage:
			t.events <- domain.NewBinaryEvent(data)
		}
	}
}

// writePump owns every data write and the final close of the connection.
// Messages queued before a close are flushed first.
func (t *WebSocketTransport) writePump() {
	defer t.conn.Close()
	for {
		select {
		case <-t.done:
			t.flush()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		case msg := <-t.send:
			if err := t.write(msg); err != nil {
				t.logger.Debug("websocket write failed", zap.String("remote", t.remote), zap.Error(err))
				t.shutdown()
				return
			}
		}
	}
}

func (t *WebSocketTransport) flush() {
	for {
		select {
		case msg := <-t.send:
			if err := t.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (t *WebSocketTransport) write(msg string) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// Send queues text for the writer. A full queue is reported as a failure.
func (t *WebSocketTransport) Send(text string) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	select {
	case t.send <- text:
		return nil
	case <-t.done:
		return ErrTransportClosed
	default:
		return ErrSendQueueFull
	}
}

func (t *WebSocketTransport) Ping() error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (t *WebSocketTransport) Close() error {
	t.shutdown()
	return nil
}

func (t *WebSocketTransport) Closed() bool {
	return t.closed.Load()
}

func (t *WebSocketTransport) shutdown() {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.done)
	})
}
