package ws

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/chat/internal/domain"
	"github.com/cwrk-planet/chat/internal/errs"
)

type connConfig struct {
	sendBuffer int
	writeWait  time.Duration
	pingEvery  time.Duration
}

// wsConn: единственный писатель в сокет это writePump, остальные кладут кадры в send.
type wsConn struct {
	ws  *websocket.Conn
	id  domain.Identity
	cfg connConfig

	send chan []byte

	closeOnce   sync.Once
	closed      chan struct{}
	closeCode   int
	closeReason string

	done chan struct{}
}

func newWsConn(ws *websocket.Conn, id domain.Identity, cfg connConfig) *wsConn {
	return &wsConn{
		ws:        ws,
		id:        id,
		cfg:       cfg,
		send:      make(chan []byte, cfg.sendBuffer),
		closed:    make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
		done:      make(chan struct{}),
	}
}

func (c *wsConn) Identity() domain.Identity { return c.id }

func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.closed:
		return fmt.Errorf("%w: connection closed", errs.ErrDeliveryFailed)
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("%w: send buffer full", errs.ErrDeliveryFailed)
	}
}

func (c *wsConn) Close() error {
	c.CloseWith(websocket.CloseNormalClosure, "")
	return nil
}

// CloseWith asks the write pump to flush, send a close frame and drop the socket.
// Only the first call decides the code.
func (c *wsConn) CloseWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.closed)
	})
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.cfg.pingEvery)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				logWriteError(c, err)
				c.CloseWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.writeWait)); err != nil {
				logWriteError(c, err)
				c.CloseWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.closed:
			c.flush()
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.writeWait))
			return
		}
	}
}

// flush дописывает то, что уже в очереди, например Error перед закрытием.
func (c *wsConn) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func logWriteError(c *wsConn, err error) {
	if isExpectedCloseError(err) {
		return
	}
	slog.Warn("ws write failed", slog.String("user_id", c.id.UserID.String()), slog.Any("err", err))
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}
