package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsClient reads study messages and keeps every pushed dashboard, since
// dashboards interleave freely with replies.
type wsClient struct {
	t          *testing.T
	conn       *websocket.Conn
	dashboards []map[string]any
}

func dialStudy(t *testing.T, server *httptest.Server, userID string) *wsClient {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func TestWebSocketStudyFlow(t *testing.T) {
	env := newTestEnv(t, Options{})
	id := env.login(t)

	server := httptest.NewServer(env.router)
	defer server.Close()
	c := dialStudy(t, server, id)

	// Expect the dashboard snapshot first.
	typ, payload := c.next()
	if typ != "dashboard" || payload["totalQuestions"] != float64(0) {
		t.Fatalf("expected initial dashboard, got %s %+v", typ, payload)
	}

	c.send("start", map[string]any{"specialty": "Cardiologia", "mode": "objective"})
	session := c.waitFor("session")
	if session["specialty"] != "Cardiologia" || session["questionsTotal"] != float64(2) {
		t.Fatalf("session %+v", session)
	}

	c.send("answer", objectiveAnswer(0))
	result := c.waitFor("answerResult")
	item, _ := result["item"].(map[string]any)
	if item["correct"] != true {
		t.Fatalf("expected correct answer, got %+v", result)
	}

	c.send("dance", nil)
	errPayload := c.waitFor("error")
	if errPayload["message"] != errUnsupported.Error() {
		t.Fatalf("unexpected error payload %+v", errPayload)
	}

	// The answer refreshes the pushed dashboard.
	for !c.sawTotal(1) {
		c.waitFor("dashboard")
	}
}

func TestWebSocketReportsServiceErrors(t *testing.T) {
	env := newTestEnv(t, Options{})
	id := env.login(t)

	server := httptest.NewServer(env.router)
	defer server.Close()
	c := dialStudy(t, server, id)

	c.send("answer", objectiveAnswer(0))
	if msg := c.waitFor("error"); msg["message"] == "" {
		t.Fatalf("expected error message, got %+v", msg)
	}

	c.send("start", map[string]any{"specialty": "", "mode": "objective"})
	if msg := c.waitFor("error"); msg["field"] != "specialty" {
		t.Fatalf("expected specialty validation error, got %+v", msg)
	}
}

func TestWebSocketResumesActiveSession(t *testing.T) {
	env := newTestEnv(t, Options{})
	id := env.login(t)
	if rec := env.do(t, http.MethodPost, "/api/sessions", id, map[string]any{"specialty": "Pediatria", "mode": "essay"}); rec.Code != http.StatusCreated {
		t.Fatalf("start status %d", rec.Code)
	}

	server := httptest.NewServer(env.router)
	defer server.Close()
	c := dialStudy(t, server, id)

	session := c.waitFor("session")
	if session["specialty"] != "Pediatria" || session["isActive"] != true {
		t.Fatalf("expected resumed session, got %+v", session)
	}
}

func TestWebSocketRequiresUser(t *testing.T) {
	env := newTestEnv(t, Options{})
	server := httptest.NewServer(env.router)
	defer server.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+server.URL[len("http"):]+"/ws", nil)
	if err == nil {
		t.Fatalf("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func (c *wsClient) send(typ string, payload any) {
	c.t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		msg["payload"] = json.RawMessage(raw)
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.t.Fatalf("write %s: %v", typ, err)
	}
}

// waitFor skips pushed dashboards until a message of type typ arrives.
func (c *wsClient) waitFor(typ string) map[string]any {
	c.t.Helper()
	for i := 0; i < 10; i++ {
		got, payload := c.next()
		if got == typ {
			return payload
		}
		if got != "dashboard" {
			c.t.Fatalf("expected %s, got %s: %+v", typ, got, payload)
		}
	}
	c.t.Fatalf("no %s message", typ)
	return nil
}

func (c *wsClient) next() (string, map[string]any) {
	c.t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.ReadJSON(&msg); err != nil {
		c.t.Fatalf("read json: %v", err)
	}
	if msg.Type == "dashboard" {
		c.dashboards = append(c.dashboards, msg.Payload)
	}
	return msg.Type, msg.Payload
}

func (c *wsClient) sawTotal(total int) bool {
	for _, d := range c.dashboards {
		if d["totalQuestions"] == float64(total) {
			return true
		}
	}
	return false
}

func TestWebSocketSharesRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{RateLimit: 0.001, RateBurst: 1})
	id := env.login(t)

	server := httptest.NewServer(env.router)
	defer server.Close()
	c := dialStudy(t, server, id)

	// The first question may fail in the provider but must not be throttled.
	c.send("question", map[string]any{"specialty": "Cardiologia", "mode": "objective"})
	if typ, payload := c.reply(); typ == "error" && payload["message"] == errRateLimited.Error() {
		t.Fatalf("first question throttled")
	}

	c.send("question", map[string]any{"specialty": "Cardiologia", "mode": "objective"})
	if msg := c.waitFor("error"); msg["message"] != errRateLimited.Error() {
		t.Fatalf("expected rate limit error, got %+v", msg)
	}
	c.send("essay", map[string]any{"question": "q", "answer": "a"})
	if msg := c.waitFor("error"); msg["message"] != errRateLimited.Error() {
		t.Fatalf("expected rate limit error for essay, got %+v", msg)
	}
	if calls := len(env.mock.Calls()); calls > 1 {
		t.Fatalf("throttled messages reached the provider: %d calls", calls)
	}

	// The websocket spent the user's budget, so HTTP is throttled too.
	body := map[string]any{"specialty": "Cardiologia", "mode": "objective"}
	if rec := env.do(t, http.MethodPost, "/api/questions", id, body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over http, got %d", rec.Code)
	}
}

func TestDeliverStopsAfterWriterExit(t *testing.T) {
	send := make(chan outboundMessage[any])
	writerDone := make(chan struct{})
	close(writerDone)

	if deliver(send, writerDone, outboundMessage[any]{Type: "error"}) {
		t.Fatalf("expected deliver to give up once the writer is gone")
	}

	buffered := make(chan outboundMessage[any], 1)
	if !deliver(buffered, make(chan struct{}), outboundMessage[any]{Type: "session"}) {
		t.Fatalf("expected deliver to queue while the writer runs")
	}
}

// reply skips pushed dashboards and returns the next message.
func (c *wsClient) reply() (string, map[string]any) {
	c.t.Helper()
	for i := 0; i < 10; i++ {
		typ, payload := c.next()
		if typ != "dashboard" {
			return typ, payload
		}
	}
	c.t.Fatalf("no reply")
	return "", nil
}
