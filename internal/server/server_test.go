package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/huddle/internal/app"
	"github.com/nfrund/huddle/internal/config"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/server"
	"github.com/nfrund/huddle/internal/testutils"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type harness struct {
	t    *testing.T
	srv  *server.Server
	deps *app.Dependencies
	http *httptest.Server
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := testutils.ConfigForTests(t)
	if mutate != nil {
		mutate(cfg)
	}

	deps, err := app.Build(context.Background(), cfg, nil)
	require.NoError(t, err)

	s := server.New(deps)
	s.RegisterRoutes()
	ts := httptest.NewServer(s.E)
	t.Cleanup(ts.Close)
	return &harness{t: t, srv: s, deps: deps, http: ts}
}

func (h *harness) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(h.t, h.srv.Shutdown(ctx))
}

// browser is an HTTP client with its own cookie jar.
func (h *harness) browser() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(h.t, err)
	return &http.Client{Jar: jar}
}

func (h *harness) postJSON(c *http.Client, path, body string) (int, map[string]any) {
	h.t.Helper()
	resp, err := c.Post(h.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(h.t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (h *harness) login(c *http.Client, name string) {
	h.t.Helper()
	code, _ := h.postJSON(c, "/register", `{"username":"`+name+`","password":"pw-`+name+`"}`)
	require.Equal(h.t, http.StatusOK, code)
	code, body := h.postJSON(c, "/login", `{"username":"`+name+`","password":"pw-`+name+`"}`)
	require.Equal(h.t, http.StatusOK, code)
	require.Equal(h.t, name, body["username"])
}

func (h *harness) dial(c *http.Client) *gorillaws.Conn {
	h.t.Helper()
	header := http.Header{}
	if c != nil {
		u, _ := url.Parse(h.http.URL)
		for _, ck := range c.Jar.Cookies(u) {
			header.Add("Cookie", ck.String())
		}
	}
	wsURL := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, header)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *gorillaws.Conn, event string, data any) {
	t.Helper()
	raw, err := protocol.Encode(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, raw))
}

func readUntil(t *testing.T, conn *gorillaws.Conn, event string) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		if f.Event == event {
			return f
		}
	}
}

func TestServer_PageAndAssets(t *testing.T) {
	h := newHarness(t, nil)
	defer h.shutdown()

	for path, want := range map[string]string{
		"/":                 "<title>Huddle</title>",
		"/static/client.js": "WebSocket",
		"/health":           "OK",
	} {
		resp, err := http.Get(h.http.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, string(body), want, path)
		assert.NotEmpty(t, resp.Header.Get("X-Request-Id"), path)
	}
}

func TestServer_ChatModerationAndShutdown(t *testing.T) {
	h := newHarness(t, nil)

	aliceHTTP := h.browser()
	h.login(aliceHTTP, "alice")
	alice := h.dial(aliceHTTP)
	send(t, alice, protocol.EventJoin, "alice")
	readUntil(t, alice, protocol.EventLoadMessages)

	send(t, alice, protocol.EventChatMessage, map[string]string{"text": "hello"})
	f := readUntil(t, alice, protocol.EventMessage)
	var ev protocol.MessageEvent
	require.NoError(t, json.Unmarshal(f.Data, &ev))
	assert.Equal(t, 0, ev.Index)

	// A non-moderator cannot edit over HTTP.
	code, _ := h.postJSON(aliceHTTP, "/edit", `{"index":0,"newText":"hacked"}`)
	assert.Equal(t, http.StatusForbidden, code)

	// The admin can, and the joined connection sees the change.
	adminHTTP := h.browser()
	h.login(adminHTTP, "admin")
	code, _ = h.postJSON(adminHTTP, "/edit", `{"index":0,"newText":"moderated"}`)
	require.Equal(t, http.StatusOK, code)

	f = readUntil(t, alice, protocol.EventUpdateMessage)
	var upd protocol.UpdateMessageEvent
	require.NoError(t, json.Unmarshal(f.Data, &upd))
	assert.Equal(t, protocol.UpdateMessageEvent{Index: 0, NewText: "moderated"}, upd)

	h.shutdown()

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(3*time.Second)))
	var closeErr error
	for closeErr == nil {
		_, _, closeErr = alice.ReadMessage()
	}
	var ce *gorillaws.CloseError
	require.ErrorAs(t, closeErr, &ce)
	assert.Equal(t, gorillaws.CloseGoingAway, ce.Code)
	assert.Equal(t, domain.CloseReasonShutdown, ce.Text)

	// The final snapshot reached the backend.
	persisted, err := h.deps.Backend.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "moderated", persisted[0].Text)
}

func TestServer_RequireAuth(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.RequireAuth = true })
	defer h.shutdown()

	wsURL := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	_, resp, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	code, _ := h.postJSON(http.DefaultClient, "/upload", `{}`)
	assert.Equal(t, http.StatusUnauthorized, code)

	// An authenticated socket may only join as its own identity.
	bobHTTP := h.browser()
	h.login(bobHTTP, "bob")
	bob := h.dial(bobHTTP)
	send(t, bob, protocol.EventJoin, "mallory")
	send(t, bob, protocol.EventJoin, "bob")
	f := readUntil(t, bob, protocol.EventOnlineUsers)
	assert.JSONEq(t, `["bob"]`, string(f.Data))
}

func TestServer_UploadThenShareImage(t *testing.T) {
	h := newHarness(t, nil)
	defer h.shutdown()

	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", `form-data; name="image"; filename="cat.png"`)
	partHeader.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(partHeader)
	require.NoError(t, err)
	_, err = part.Write(png)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(h.http.URL+"/upload", mw.FormDataContentType(), body)
	require.NoError(t, err)
	var uploaded struct {
		Success bool   `json:"success"`
		File    string `json:"file"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	resp.Body.Close()
	require.True(t, uploaded.Success)

	carol := h.dial(nil)
	send(t, carol, protocol.EventJoin, "carol")
	readUntil(t, carol, protocol.EventLoadMessages)
	send(t, carol, protocol.EventChatMessage, map[string]string{"image": uploaded.File})

	f := readUntil(t, carol, protocol.EventMessage)
	var ev protocol.MessageEvent
	require.NoError(t, json.Unmarshal(f.Data, &ev))
	require.NotNil(t, ev.Message.Attachment)
	assert.Equal(t, uploaded.File, *ev.Message.Attachment)
	assert.Equal(t, "", ev.Message.Text)

	img, err := http.Get(h.http.URL + uploaded.File)
	require.NoError(t, err)
	defer img.Body.Close()
	assert.Equal(t, http.StatusOK, img.StatusCode)
	assert.Equal(t, "image/png", img.Header.Get("Content-Type"))
}
