package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chadiek/smileright-voice/internal/agent"
	"github.com/chadiek/smileright-voice/internal/extract"
	"github.com/chadiek/smileright-voice/internal/language"
)

func newTestServer(t *testing.T, opts Options) (*Server, *agent.Manager) {
	t.Helper()
	return newTestServerWithArchiver(t, opts, nil)
}

func newTestServerWithArchiver(t *testing.T, opts Options, arch agent.Archiver) (*Server, *agent.Manager) {
	t.Helper()
	mgr, err := agent.NewManager(agent.Dependencies{Extractor: extract.Literal{}, Location: time.UTC, Archiver: arch})
	require.NoError(t, err)
	t.Cleanup(mgr.Shutdown)
	opts.Manager = mgr
	return New(opts), mgr
}

func postForm(srv *Server, path string, form url.Values) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Host = "localhost:8080"
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)
	return w
}

func TestServer_Healthz(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthOK(t *testing.T) {
	assert.True(t, authOK(nil, ""), "empty expected password disables auth")

	r := httptest.NewRequest(http.MethodGet, "/?password=secret", nil)
	assert.True(t, authOK(r, "secret"))

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "tok")
	assert.True(t, authOK(r2, "tok"))

	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "bearer abc")
	assert.True(t, authOK(r3, "abc"))
}

func TestAuthOK_NegativeCases(t *testing.T) {
	r1 := httptest.NewRequest(http.MethodGet, "/?password=wrong", nil)
	assert.False(t, authOK(r1, "secret"))

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("X-Auth-Token", "nope")
	assert.False(t, authOK(r2, "secret"))

	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.Header.Set("Authorization", "Bearer nope")
	assert.False(t, authOK(r3, "secret"))
}

func TestTransitions_AuthAndNotFound(t *testing.T) {
	srv, _ := newTestServer(t, Options{AuthPassword: "secret"})

	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/nope/transitions", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	srv.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/nope/transitions?password=secret", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTwilio_CallFlow(t *testing.T) {
	srv, mgr := newTestServer(t, Options{SkipTwilioSignature: true})

	w := postForm(srv, "/twilio/voice", url.Values{"CallSid": {"CA1"}, "From": {"+15145859691"}})
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<Gather")
	assert.Contains(t, body, `input="speech"`)
	assert.Contains(t, body, `language="en-US"`)
	assert.Contains(t, body, "http://localhost:8080/twilio/gather")
	assert.Contains(t, body, "welcome to SmileRight Dental Clinic")

	// A retried webhook keeps the same session.
	w = postForm(srv, "/twilio/voice", url.Values{"CallSid": {"CA1"}, "From": {"+15145859691"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, mgr.Len())

	w = postForm(srv, "/twilio/gather", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"Bonjour je voudrais un rendez-vous"}})
	require.Equal(t, http.StatusOK, w.Code)
	body = w.Body.String()
	assert.Contains(t, body, `language="fr-CA"`)
	assert.Contains(t, body, "Je vais vous aider")

	r := httptest.NewRequest(http.MethodGet, "/sessions/CA1/transitions", nil)
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	var tr transitionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tr))
	assert.Equal(t, "french", tr.Language)
	require.Len(t, tr.Transitions, 1)
	assert.Equal(t, agent.FrenchBookingID, tr.Transitions[0].To)

	w = postForm(srv, "/twilio/status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, mgr.Len())

	w = postForm(srv, "/twilio/gather", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"hello"}})
	assert.Contains(t, w.Body.String(), "<Hangup")
}

// heldArchiver blocks every upload until release is closed.
type heldArchiver struct{ release chan struct{} }

func (a heldArchiver) Archive(ctx context.Context, _ agent.SessionRecord) error {
	select {
	case <-a.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestTwilio_GoodbyeDoesNotWaitForArchive(t *testing.T) {
	arch := heldArchiver{release: make(chan struct{})}
	srv, mgr := newTestServerWithArchiver(t, Options{SkipTwilioSignature: true}, arch)

	postForm(srv, "/twilio/voice", url.Values{"CallSid": {"CA3"}, "From": {"+15145859691"}})
	for _, speech := range []string{"Hello I need an appointment", "2025-06-02 10:15", "Ada", "Lovelace", "yes", "cleaning"} {
		w := postForm(srv, "/twilio/gather", url.Values{"CallSid": {"CA3"}, "SpeechResult": {speech}})
		require.Equal(t, http.StatusOK, w.Code)
		require.NotContains(t, w.Body.String(), "<Hangup", speech)
	}

	replied := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		replied <- postForm(srv, "/twilio/gather", url.Values{"CallSid": {"CA3"}, "SpeechResult": {"yes"}})
	}()
	select {
	case w := <-replied:
		body := w.Body.String()
		assert.Contains(t, body, "<Hangup")
		assert.Contains(t, body, `language="en-US"`)
		assert.Contains(t, body, agent.DefaultPrompts(language.English).Closing)
	case <-time.After(2 * time.Second):
		t.Fatal("goodbye waited for the session archive")
	}
	close(arch.release)
	require.Eventually(t, func() bool { return mgr.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestTwilio_SignatureRequired(t *testing.T) {
	srv, mgr := newTestServer(t, Options{TwilioAuthToken: "secret"})
	w := postForm(srv, "/twilio/voice", url.Values{"CallSid": {"CA2"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, mgr.Len())
}

func TestWebSocket_Booking(t *testing.T) {
	srv, mgr := newTestServer(t, Options{})
	ts := httptest.NewServer(srv.Router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session=ws-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var m wsMessage
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, "response", m.Type)
	assert.Equal(t, "ws-1", m.SessionID)
	assert.Equal(t, agent.DefaultGreeting, m.Text)

	send := func(seq uint64, text string) wsMessage {
		t.Helper()
		require.NoError(t, conn.WriteJSON(wsMessage{Type: "utterance", Seq: seq, Text: text}))
		var reply wsMessage
		require.NoError(t, conn.ReadJSON(&reply))
		return reply
	}

	m = send(1, "Hello I need an appointment")
	assert.Equal(t, string(language.English), m.Language)
	require.NotNil(t, m.Transition)
	assert.Equal(t, agent.EnglishBookingID, m.Transition.To)

	send(2, "2025-06-02 10:15")
	send(3, "Ada")
	send(4, "Lovelace")
	send(5, "514 585 9691")
	m = send(6, "cleaning")
	assert.Contains(t, m.Text, "Let me confirm")

	m = send(7, "yes")
	assert.Equal(t, "end", m.Type)
	assert.Equal(t, agent.DefaultPrompts(language.English).Closing, m.Text)

	require.Eventually(t, func() bool { return mgr.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_OpenFailureHidesError(t *testing.T) {
	srv, mgr := newTestServer(t, Options{})
	_, _, err := mgr.Open(context.Background(), "taken", "")
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws?session=taken", nil)
	require.NoError(t, err)
	defer conn.Close()

	var m wsMessage
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, "error", m.Type)
	assert.Equal(t, wsOpenFailed, m.Error)
	assert.NotContains(t, m.Error, "agent:")
}

func TestWebSocket_Unauthorized(t *testing.T) {
	srv, _ := newTestServer(t, Options{AuthPassword: "secret"})
	ts := httptest.NewServer(srv.Router)
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
