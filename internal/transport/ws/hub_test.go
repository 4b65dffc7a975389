package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/cwrk-planet/chat/internal/domain"
	"github.com/cwrk-planet/chat/internal/errs"
)

func newRequestWithOrigin(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/hubs/chat", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

// tokenAuth maps opaque tokens to identities.
type tokenAuth map[string]domain.Identity

func (a tokenAuth) Authenticate(token string) (domain.Identity, error) {
	id, ok := a[token]
	if !ok {
		return domain.Identity{}, errs.ErrAuthenticationRejected
	}
	return id, nil
}

// fakeChat повторяет контракт ChatService: trim, пустое отклоняем, сбой хранилища по флагу.
type fakeChat struct {
	mu     sync.Mutex
	nextID int64
	failFn func(author domain.Identity) bool
	// afterStore runs once the id is assigned, outside the lock, like a slow storage round trip
	afterStore func(id int64)
}

func (f *fakeChat) Send(_ context.Context, author domain.Identity, content string) (*domain.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errs.ErrInvalidMessage
	}

	f.mu.Lock()
	if f.failFn != nil && f.failFn(author) {
		f.mu.Unlock()
		return nil, errs.ErrStorageUnavailable
	}
	f.nextID++
	m := &domain.ChatMessage{
		ID:       f.nextID,
		UserID:   author.UserID,
		UserName: author.UserName,
		Content:  content,
		SentAt:   time.Now().UTC(),
	}
	f.mu.Unlock()

	if f.afterStore != nil {
		f.afterStore(m.ID)
	}
	return m, nil
}

type hubEnv struct {
	srv      *httptest.Server
	hub      *Hub
	registry *Registry
	chat     *fakeChat
	auth     tokenAuth
}

func newHubEnv(t *testing.T, cfg HubConfig) *hubEnv {
	t.Helper()
	later := time.Now().Add(time.Hour)
	env := &hubEnv{
		registry: NewRegistry(),
		chat:     &fakeChat{},
		auth: tokenAuth{
			"tok-alice": {UserID: "u-alice", UserName: "alice", ExpiresAt: later},
			"tok-bob":   {UserID: "u-bob", UserName: "bob", ExpiresAt: later},
			"tok-carol": {UserID: "u-carol", UserName: "carol", ExpiresAt: later},
		},
	}
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{"http://localhost:5173"}
	}
	env.hub = NewHub(env.auth, env.chat, env.registry, cfg)
	env.srv = httptest.NewServer(env.hub)
	t.Cleanup(func() {
		_ = env.hub.Shutdown(context.Background())
		env.srv.Close()
	})
	return env
}

func (e *hubEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	before := e.registry.Count()

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/hubs/chat?access_token=" + token
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.Eventually(t, func() bool { return e.registry.Count() == before+1 }, time.Second, 5*time.Millisecond)
	return c
}

func send(t *testing.T, c *websocket.Conn, content, ref string) {
	t.Helper()
	require.NoError(t, c.WriteJSON(map[string]any{
		"type":    TypeSendMessage,
		"payload": map[string]string{"content": content, "ref": ref},
	}))
}

type frame struct {
	Type    string `json:"type"`
	Payload struct {
		ID       int64     `json:"id"`
		UserName string    `json:"userName"`
		Content  string    `json:"content"`
		SentAt   time.Time `json:"sentAt"`
		Code     string    `json:"code"`
		Message  string    `json:"message"`
		Ref      string    `json:"ref"`
	} `json:"payload"`
}

func read(t *testing.T, c *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func TestHub_RejectsMissingOrBadToken(t *testing.T) {
	env := newHubEnv(t, HubConfig{})
	base := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/hubs/chat"

	for _, url := range []string{base, base + "?access_token=forged"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	require.Zero(t, env.registry.Count())
}

func TestHub_AcceptsAuthorizationHeader(t *testing.T) {
	env := newHubEnv(t, HubConfig{})
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/hubs/chat"

	c, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer tok-alice"}})
	require.NoError(t, err)
	defer c.Close()
	require.Eventually(t, func() bool { return env.registry.Count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	env := newHubEnv(t, HubConfig{})
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/hubs/chat?access_token=tok-alice"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	c, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://localhost:5173"}})
	require.NoError(t, err)
	_ = c.Close()
}

func TestHub_BroadcastScenario(t *testing.T) {
	r := require.New(t)
	env := newHubEnv(t, HubConfig{})
	env.chat.failFn = func(author domain.Identity) bool { return author.UserName == "carol" }

	alice := env.dial(t, "tok-alice")
	bob := env.dial(t, "tok-bob")

	// A sends, everyone including A gets it
	send(t, alice, "  hi  ", "a1")
	for _, c := range []*websocket.Conn{alice, bob} {
		f := read(t, c)
		r.Equal(TypeReceiveMessage, f.Type)
		r.Equal("hi", f.Payload.Content)
		r.Equal("alice", f.Payload.UserName)
		r.EqualValues(1, f.Payload.ID)
		r.False(f.Payload.SentAt.IsZero())
	}

	// B sends empty, only B gets an error
	send(t, bob, "   ", "b1")
	f := read(t, bob)
	r.Equal(TypeError, f.Type)
	r.Equal("InvalidMessage", f.Payload.Code)
	r.Equal("b1", f.Payload.Ref)

	// C's store write fails, only C hears about it
	carol := env.dial(t, "tok-carol")
	send(t, carol, "lost", "c1")
	f = read(t, carol)
	r.Equal(TypeError, f.Type)
	r.Equal("StorageUnavailable", f.Payload.Code)
	r.Equal("c1", f.Payload.Ref)

	// next broadcast is the first thing A and B see after "hi"
	send(t, bob, "second", "b2")
	for _, c := range []*websocket.Conn{alice, bob, carol} {
		f := read(t, c)
		r.Equal(TypeReceiveMessage, f.Type)
		r.Equal("second", f.Payload.Content)
		r.EqualValues(2, f.Payload.ID)
	}
}

func TestHub_SameUserTwoTabs(t *testing.T) {
	r := require.New(t)
	env := newHubEnv(t, HubConfig{})

	tab1 := env.dial(t, "tok-alice")
	tab2 := env.dial(t, "tok-alice")
	r.Equal(2, env.registry.Count())

	send(t, tab1, "from tab1", "")
	r.Equal("from tab1", read(t, tab1).Payload.Content)
	r.Equal("from tab1", read(t, tab2).Payload.Content)
}

func TestHub_MalformedFrames(t *testing.T) {
	r := require.New(t)
	env := newHubEnv(t, HubConfig{})
	c := env.dial(t, "tok-alice")

	r.NoError(c.WriteMessage(websocket.TextMessage, []byte("{not json")))
	r.Equal("InvalidMessage", read(t, c).Payload.Code)

	r.NoError(c.WriteJSON(map[string]any{"type": "Shout"}))
	r.Equal("InvalidMessage", read(t, c).Payload.Code)

	r.NoError(c.WriteJSON(map[string]any{"type": TypeSendMessage}))
	r.Equal("InvalidMessage", read(t, c).Payload.Code)

	// соединение живо
	send(t, c, "still here", "")
	r.Equal("still here", read(t, c).Payload.Content)
}

func TestHub_Logout(t *testing.T) {
	r := require.New(t)
	env := newHubEnv(t, HubConfig{})
	c := env.dial(t, "tok-alice")

	r.NoError(c.WriteJSON(map[string]any{"type": TypeLogout}))

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	r.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	r.Eventually(func() bool { return env.registry.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_ClosesOnTokenExpiry(t *testing.T) {
	r := require.New(t)
	env := newHubEnv(t, HubConfig{})
	env.auth["tok-short"] = domain.Identity{UserID: "u-s", UserName: "short", ExpiresAt: time.Now().Add(150 * time.Millisecond)}

	c := env.dial(t, "tok-short")
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	r.True(websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	r.Eventually(func() bool { return env.registry.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_OversizedFrame(t *testing.T) {
	r := require.New(t)
	env := newHubEnv(t, HubConfig{MaxMessageLength: 8, MaxFrameBytes: 128})
	c := env.dial(t, "tok-alice")

	send(t, c, strings.Repeat("x", int(MinFrameBytes(8))+1), "")
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	r.True(websocket.IsCloseError(err, websocket.CloseMessageTooBig), "got %v", err)
	r.Eventually(func() bool { return env.registry.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubConfig_FrameFitsLongestMessage(t *testing.T) {
	cfg := HubConfig{MaxMessageLength: 100, MaxFrameBytes: 10}
	cfg.setDefaults()
	require.Equal(t, MinFrameBytes(100), cfg.MaxFrameBytes)

	cfg = HubConfig{}
	cfg.setDefaults()
	require.Equal(t, 4000, cfg.MaxMessageLength)
	require.GreaterOrEqual(t, cfg.MaxFrameBytes, MinFrameBytes(4000))

	// больший лимит не уменьшаем
	cfg = HubConfig{MaxMessageLength: 10, MaxFrameBytes: 1 << 20}
	cfg.setDefaults()
	require.Equal(t, int64(1<<20), cfg.MaxFrameBytes)
}

// Наблюдатель видит сообщения нескольких авторов строго по возрастанию id.
func TestHub_ConcurrentSendersKeepIDOrder(t *testing.T) {
	r := require.New(t)
	env := newHubEnv(t, HubConfig{SendBuffer: 1024})
	// чётные id «сохраняются» дольше, без упорядочивания они обгоняются нечётными
	env.chat.afterStore = func(id int64) {
		if id%2 == 0 {
			time.Sleep(2 * time.Millisecond)
		}
	}

	const senders, perSender = 4, 25
	observer := env.dial(t, "tok-carol")

	var conns []*websocket.Conn
	for i := 0; i < senders; i++ {
		tok := fmt.Sprintf("tok-sender-%d", i)
		env.auth[tok] = domain.Identity{UserID: domain.UserID(tok), UserName: tok, ExpiresAt: time.Now().Add(time.Hour)}
		conns = append(conns, env.dial(t, tok))
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		// отправители тоже получают рассылку, вычитываем её
		go func(c *websocket.Conn) {
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					return
				}
			}
		}(c)

		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				if err := c.WriteJSON(map[string]any{
					"type":    TypeSendMessage,
					"payload": map[string]string{"content": fmt.Sprintf("m%d", j)},
				}); err != nil {
					return
				}
			}
		}(c)
	}
	wg.Wait()

	var last int64
	for i := 0; i < senders*perSender; i++ {
		f := read(t, observer)
		r.Equal(TypeReceiveMessage, f.Type)
		r.Greater(f.Payload.ID, last, "frame %d out of order", i)
		last = f.Payload.ID
	}
	r.Equal(int64(senders*perSender), last)
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	r := require.New(t)
	env := newHubEnv(t, HubConfig{})
	c := env.dial(t, "tok-alice")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	r.NoError(env.hub.Shutdown(ctx))

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := c.ReadMessage()
	r.True(websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	r.Zero(env.registry.Count())
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/hubs/chat?access_token=q", nil)
	req.Header.Set("Authorization", "Bearer h")
	require.Equal(t, "q", bearerToken(req))

	req = httptest.NewRequest(http.MethodGet, "/hubs/chat", nil)
	req.Header.Set("Authorization", "bearer h")
	require.Equal(t, "h", bearerToken(req))

	req = httptest.NewRequest(http.MethodGet, "/hubs/chat", nil)
	require.Empty(t, bearerToken(req))
}
