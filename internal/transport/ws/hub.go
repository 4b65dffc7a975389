package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/chat/internal/domain"
	"github.com/cwrk-planet/chat/internal/errs"
	"github.com/cwrk-planet/chat/pkg/logger"
)

type Authenticator interface {
	Authenticate(token string) (domain.Identity, error)
}

type ChatSvc interface {
	Send(ctx context.Context, author domain.Identity, content string) (*domain.ChatMessage, error)
}

// Worst case of one rune inside a JSON string: a surrogate pair written as two \uXXXX escapes.
const (
	bytesPerEscapedRune = 12
	frameEnvelopeBytes  = 1024
)

// MinFrameBytes is the smallest read limit that still fits a SendMessage frame
// carrying maxMessageLength runes, however the client escapes them.
func MinFrameBytes(maxMessageLength int) int64 {
	return int64(maxMessageLength)*bytesPerEscapedRune + frameEnvelopeBytes
}

type HubConfig struct {
	AllowedOrigins   []string
	MaxMessageLength int
	SendBuffer       int
	MaxFrameBytes    int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
}

func (c *HubConfig) setDefaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = 4000
	}
	// слишком длинный текст должен доходить до сервиса и получать InvalidMessage, а не 1009
	if minFrame := MinFrameBytes(c.MaxMessageLength); c.MaxFrameBytes < minFrame {
		c.MaxFrameBytes = minFrame
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 5 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
}

// Hub is the websocket endpoint. Each connection goes Connecting -> Active -> Closed.
// A request with a bad token is refused before the upgrade and never reaches the registry.
type Hub struct {
	auth     Authenticator
	chat     ChatSvc
	registry *Registry
	cfg      HubConfig
	upgrader websocket.Upgrader
	now      func() time.Time

	// order держится от Append до Broadcast, чтобы живой поток шёл в порядке id
	order  sync.Mutex
	active sync.WaitGroup
}

func NewHub(auth Authenticator, chat ChatSvc, registry *Registry, cfg HubConfig) *Hub {
	cfg.setDefaults()
	origins := newOriginPolicy(cfg.AllowedOrigins)

	return &Hub{
		auth:     auth,
		chat:     chat,
		registry: registry,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if origins.check(r) {
					return true
				}
				slog.Warn("ws origin rejected", slog.String("origin", r.Header.Get("Origin")))
				return false
			},
		},
		now: time.Now,
	}
}

// WS endpoint: GET /hubs/chat?access_token=...
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := h.auth.Authenticate(bearerToken(r))
	if err != nil {
		slog.WarnContext(ctx, "ws connection rejected", append(logger.Args(ctx), slog.Any("err", err))...)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		slog.WarnContext(ctx, "ws upgrade failed", slog.Any("err", err))
		return
	}

	h.active.Add(1)
	defer h.active.Done()

	c := newWsConn(ws, id, connConfig{
		sendBuffer: h.cfg.SendBuffer,
		writeWait:  h.cfg.WriteWait,
		pingEvery:  h.cfg.PingInterval,
	})
	h.registry.Register(c)
	go c.writePump()

	expiry := time.AfterFunc(id.ExpiresAt.Sub(h.now()), func() {
		c.CloseWith(websocket.ClosePolicyViolation, "token expired")
	})

	log := slog.With(slog.String("user_id", id.UserID.String()), slog.String("user_name", id.UserName))
	log.InfoContext(ctx, "ws connected")

	h.readLoop(context.WithoutCancel(ctx), c)

	expiry.Stop()
	h.registry.Unregister(c)
	_ = c.Close()
	<-c.done
	log.InfoContext(ctx, "ws disconnected")
}

func (h *Hub) readLoop(ctx context.Context, c *wsConn) {
	c.ws.SetReadLimit(h.cfg.MaxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !isExpectedCloseError(err) && !errors.Is(err, websocket.ErrReadLimit) {
				slog.DebugContext(ctx, "ws read stopped", slog.String("user_id", c.id.UserID.String()), slog.Any("err", err))
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				c.CloseWith(websocket.CloseMessageTooBig, "frame too large")
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			h.sendError(c, errs.ErrInvalidMessage, "malformed frame", "")
			continue
		}

		switch in.Type {
		case TypeSendMessage:
			h.handleSend(ctx, c, in.Payload)
		case TypeLogout:
			c.CloseWith(websocket.CloseNormalClosure, "logout")
			return
		default:
			h.sendError(c, errs.ErrInvalidMessage, "unknown event type "+in.Type, "")
		}
	}
}

func (h *Hub) handleSend(ctx context.Context, c *wsConn, raw json.RawMessage) {
	var p SendMessagePayload
	if len(raw) == 0 || json.Unmarshal(raw, &p) != nil {
		h.sendError(c, errs.ErrInvalidMessage, "payload must be {\"content\": string}", "")
		return
	}

	if c.id.Expired(h.now()) {
		c.CloseWith(websocket.ClosePolicyViolation, "token expired")
		return
	}

	msg, delivered, err := h.appendAndBroadcast(ctx, c.id, p.Content)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrInvalidMessage):
			h.sendError(c, err, err.Error(), p.Ref)
		case errors.Is(err, errs.ErrAuthenticationRejected):
			h.sendError(c, err, "identity is no longer valid", p.Ref)
			c.CloseWith(websocket.ClosePolicyViolation, "authentication rejected")
		default:
			h.sendError(c, errs.ErrStorageUnavailable, "message could not be stored, try again", p.Ref)
		}
		return
	}

	slog.DebugContext(ctx, "ws message broadcast", slog.Int64("id", msg.ID), slog.Int("delivered", delivered))
}

// appendAndBroadcast persists and fans out as one step. Broadcast only enqueues,
// so the lock is held for the storage call plus a non-blocking pass over the registry.
func (h *Hub) appendAndBroadcast(ctx context.Context, author domain.Identity, content string) (*domain.ChatMessage, int, error) {
	h.order.Lock()
	defer h.order.Unlock()

	msg, err := h.chat.Send(ctx, author, content)
	if err != nil {
		return nil, 0, err
	}

	delivered, err := h.registry.Broadcast(NewReceiveMessage(msg))
	if err != nil {
		// сообщение уже сохранено, клиенты получат его через историю
		slog.ErrorContext(ctx, "ws broadcast encode failed", slog.Any("err", err))
	}
	return msg, delivered, nil
}

// sendError goes to this connection only.
func (h *Hub) sendError(c *wsConn, kind error, text, ref string) {
	data, err := json.Marshal(Message{
		Type:    TypeError,
		Payload: ErrorPayload{Code: errs.Code(kind), Message: text, Ref: ref},
	})
	if err != nil {
		return
	}
	if err := c.Send(data); err != nil {
		slog.Warn("ws error frame dropped", slog.String("user_id", c.id.UserID.String()), slog.Any("err", err))
	}
}

// Shutdown closes every live connection and waits for their handlers to finish.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.registry.CloseAll()

	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// bearerToken: браузерный WebSocket не умеет заголовки, поэтому сначала query.
func bearerToken(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("access_token")); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
