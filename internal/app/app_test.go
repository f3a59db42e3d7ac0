package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/callsense/callsense/internal/config"
	"github.com/callsense/callsense/internal/core/domain"
	"github.com/callsense/callsense/internal/telephony/fake"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:     config.ServerConfig{RequestTimeout: 5 * time.Second},
		Classifier: config.ClassifierConfig{Type: config.ClassifierKeyword, Timeout: time.Second},
		Telephony:  config.TelephonyConfig{Type: config.TelephonyFake, Voice: "alice", Language: "en-US"},
		Conversation: config.ConversationConfig{
			TerminationPhrases: []string{"no", "goodbye", "bye"},
		},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	app        *App
	srv        *httptest.Server
	terminator *fake.Terminator
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	term := fake.NewTerminator(quietLogger())
	a, err := New(cfg, WithLogger(quietLogger()), WithTerminator(term))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return &harness{app: a, srv: srv, terminator: term}
}

func (h *harness) postForm(t *testing.T, path string, form url.Values) (int, string) {
	t.Helper()
	resp, err := http.PostForm(h.srv.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func (h *harness) sessions(t *testing.T) []domain.Session {
	t.Helper()
	resp, err := http.Get(h.srv.URL + "/api/conversations")
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}

	var out []domain.Session
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	return out
}

func wantTwiML(t *testing.T, status int, body string, fragments ...string) {
	t.Helper()
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	for _, f := range fragments {
		if !strings.Contains(body, f) {
			t.Errorf("TwiML missing %q:\n%s", f, body)
		}
	}
}

func TestApp_CallFlow(t *testing.T) {
	h := newHarness(t, testConfig())

	status, body := h.postForm(t, "/voice", url.Values{"CallSid": {"CA1"}})
	wantTwiML(t, status, body, "Welcome to Call Sense", "Gather")

	status, body = h.postForm(t, "/voice/respond", url.Values{
		"CallSid":      {"CA1"},
		"SpeechResult": {"I am so angry about this"},
		"Confidence":   {"0.92"},
	})
	wantTwiML(t, status, body, "I heard you")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.app.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	sessions := h.sessions(t)
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	s := sessions[0]
	if s.CallID != "CA1" || s.Status != domain.StatusInProgress {
		t.Errorf("session = %s/%s, want CA1/in-progress", s.CallID, s.Status)
	}
	if len(s.Turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(s.Turns))
	}
	if s.Turns[1].Role != domain.RoleUser || s.Turns[1].Sentiment != "angry" {
		t.Errorf("user turn = %+v, want angry user turn", s.Turns[1])
	}

	status, body = h.postForm(t, "/voice/respond", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"Goodbye."}})
	wantTwiML(t, status, body, "Thank you for your time", "Hangup")

	sessions = h.sessions(t)
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	if sessions[0].Status != domain.StatusCompleted || sessions[0].EndTime == nil {
		t.Errorf("session = %s end=%v, want completed with end time", sessions[0].Status, sessions[0].EndTime)
	}
	if len(sessions[0].Turns) != 5 {
		t.Errorf("turns = %d, want 5", len(sessions[0].Turns))
	}

	// Late redelivery after termination changes nothing.
	status, body = h.postForm(t, "/voice/respond", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"hello?"}})
	wantTwiML(t, status, body, "Hangup")
	if n := len(h.sessions(t)[0].Turns); n != 5 {
		t.Errorf("turns after redelivery = %d, want 5", n)
	}
}

func TestApp_StatusWebhookAndHangup(t *testing.T) {
	h := newHarness(t, testConfig())

	h.postForm(t, "/voice", url.Values{"CallSid": {"CA2"}})

	resp, err := http.Post(h.srv.URL+"/api/conversations/CA2/hangup", "application/json", nil)
	if err != nil {
		t.Fatalf("hangup: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("hangup status = %d, want 202", resp.StatusCode)
	}
	if n := h.terminator.Ended("CA2"); n != 1 {
		t.Errorf("Ended() = %d, want 1", n)
	}

	status, _ := h.postForm(t, "/voice/status", url.Values{"CallSid": {"CA2"}, "CallStatus": {"failed"}})
	if status != http.StatusNoContent {
		t.Errorf("status webhook = %d, want 204", status)
	}

	// Hangup already completed the session; the failed status is ignored.
	resp, err = http.Get(h.srv.URL + "/api/conversations/CA2")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	defer resp.Body.Close()
	var s domain.Session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Status != domain.StatusCompleted {
		t.Errorf("Status = %s, want completed", s.Status)
	}
}

func TestApp_Stream(t *testing.T) {
	h := newHarness(t, testConfig())
	h.postForm(t, "/voice", url.Values{"CallSid": {"CA3"}})

	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + StreamPath
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() domain.Event {
		t.Helper()
		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("SetReadDeadline: %v", err)
		}
		var ev domain.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		return ev
	}

	snap := read()
	if snap.Type != domain.EventSnapshot {
		t.Fatalf("first event = %s, want snapshot", snap.Type)
	}
	if len(snap.Sessions) != 1 || snap.Sessions[0].CallID != "CA3" {
		t.Fatalf("snapshot = %+v, want CA3 only", snap.Sessions)
	}

	req, err := http.NewRequest(http.MethodDelete, h.srv.URL+"/api/conversations/CA3", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}

	ended := read()
	if ended.Type != domain.EventSessionEnded {
		t.Fatalf("event = %s, want %s", ended.Type, domain.EventSessionEnded)
	}
	if ended.Session == nil || ended.Session.CallID != "CA3" {
		t.Errorf("ended session = %+v, want CA3", ended.Session)
	}
}

func TestApp_HealthReportsClassifier(t *testing.T) {
	h := newHarness(t, testConfig())

	resp, err := http.Get(h.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status          string `json:"status"`
		ClassifierReady bool   `json:"classifier_ready"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || !body.ClassifierReady {
		t.Errorf("health = %+v, want ok and ready", body)
	}
}

func TestApp_SignatureValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Telephony.Twilio = config.TwilioConfig{
		AuthToken:          "token",
		PublicURL:          "https://callsense.example.com",
		ValidateSignatures: true,
	}
	h := newHarness(t, cfg)

	status, _ := h.postForm(t, "/voice", url.Values{"CallSid": {"CA4"}})
	if status != http.StatusForbidden {
		t.Errorf("unsigned webhook status = %d, want 403", status)
	}
	if n := len(h.sessions(t)); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}

	// The REST surface is not signed.
	resp, err := http.Get(h.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestApp_ShutdownIsIdempotent(t *testing.T) {
	h := newHarness(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.app.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := h.app.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown() error = %v", err)
	}
}

func TestNew_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "cohere without credentials", mutate: func(c *config.Config) { c.Classifier.Type = config.ClassifierCohere }},
		{name: "twilio without credentials", mutate: func(c *config.Config) { c.Telephony.Type = config.TelephonyTwilio }},
		{name: "unknown classifier", mutate: func(c *config.Config) { c.Classifier.Type = "magic" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			if _, err := New(cfg, WithLogger(quietLogger())); err == nil {
				t.Error("expected configuration error")
			}
		})
	}

	if _, err := New(nil); err == nil {
		t.Error("expected error for nil config")
	}
}
