package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hubenschmidt/xinqing-companion/internal/conversation"
	"github.com/hubenschmidt/xinqing-companion/internal/crisis"
	"github.com/hubenschmidt/xinqing-companion/internal/dispatch"
)

type echoDispatcher struct {
	mu    sync.Mutex
	turns []dispatch.Turn
}

func (d *echoDispatcher) Dispatch(_ context.Context, turn dispatch.Turn, deliver func(dispatch.Outcome)) {
	d.mu.Lock()
	d.turns = append(d.turns, turn)
	d.mu.Unlock()
	go deliver(dispatch.Outcome{Turn: turn, Kind: dispatch.Reply, Text: "收到：" + turn.Text})
}

func testConfig(d conversation.Dispatcher) HandlerConfig {
	return HandlerConfig{
		MaxConcurrent:  1,
		SampleInterval: 10 * time.Millisecond,
		FeedStaleAfter: time.Minute,
		Rules:          crisis.DefaultRules([]string{"唔想活", "想死"}),
		Cooldown:       time.Hour,
		Dispatcher:     d,
		Messages:       conversation.DefaultMessages(),
		Notes: Notes{
			Emotion:       "偵測到情緒：%s",
			VisualAlert:   "visual",
			TextualAlert:  "textual",
			AlertDuration: 10 * time.Second,
		},
	}
}

func dial(t *testing.T, srv *httptest.Server, hello string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err = conn.WriteMessage(websocket.TextMessage, []byte(hello)); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	if ev := next(t, conn, func(e Event) bool { return e.Type == "ready" }); ev.SessionID == "" {
		t.Fatal("ready event without session id")
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// next reads events until match returns true.
func next(t *testing.T, conn *websocket.Conn, match func(Event) bool) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(ev) {
			return ev
		}
	}
}

func ofType(typ string) func(Event) bool {
	return func(e Event) bool { return e.Type == typ }
}

func bubbleKind(kind conversation.BubbleKind) func(Event) bool {
	return func(e Event) bool { return e.Type == "bubble" && e.Kind == string(kind) }
}

func TestTextTurn(t *testing.T) {
	d := &echoDispatcher{}
	srv := httptest.NewServer(NewHandler(testConfig(d)))
	defer srv.Close()

	conn := dial(t, srv, `{"speech_supported":true}`)
	send(t, conn, `{"type":"text","text":"今日好開心"}`)

	user := next(t, conn, ofType("bubble"))
	if user.Role != "user" || user.Text != "今日好開心" {
		t.Errorf("user bubble = %+v", user)
	}
	reply := next(t, conn, bubbleKind(conversation.BubbleReply))
	if reply.Text != "收到：今日好開心" || reply.Role != "companion" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestSpokenCrisisTurn(t *testing.T) {
	d := &echoDispatcher{}
	srv := httptest.NewServer(NewHandler(testConfig(d)))
	defer srv.Close()

	conn := dial(t, srv, `{"speech_supported":true,"lang":"yue-Hant-HK"}`)
	send(t, conn, `{"type":"start"}`)
	if ev := next(t, conn, ofType("state")); ev.State != "listening" {
		t.Fatalf("state = %q, want listening", ev.State)
	}

	send(t, conn, `{"type":"speech_result","result_index":0,"results":[[{"transcript":"我唔想活落去","confidence":0.9}]]}`)
	if ev := next(t, conn, ofType("user_bubble")); ev.Text != "我唔想活落去" {
		t.Errorf("user_bubble = %+v", ev)
	}

	send(t, conn, `{"type":"stop"}`)
	final := next(t, conn, ofType("user_bubble_final"))
	if final.Emotion != "neutral" || final.Text != "偵測到情緒：neutral 0.00" {
		t.Errorf("final = %+v", final)
	}
	alert := next(t, conn, ofType("crisis_alert"))
	if alert.Kind != "textual_danger" || alert.Detail != "唔想活" || alert.DismissAfterMs != 10000 {
		t.Errorf("alert = %+v", alert)
	}
	next(t, conn, bubbleKind(conversation.BubbleReply))

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.turns) != 1 || d.turns[0].Text != "我唔想活落去" {
		t.Errorf("turns = %+v", d.turns)
	}
}

func TestStopRightAfterSpeechResult(t *testing.T) {
	d := &echoDispatcher{}
	srv := httptest.NewServer(NewHandler(testConfig(d)))
	defer srv.Close()

	conn := dial(t, srv, `{"speech_supported":true}`)
	send(t, conn, `{"type":"start"}`)
	send(t, conn, `{"type":"speech_result","result_index":0,"results":[[{"transcript":"我唔想活落去","confidence":0.9}]]}`)
	send(t, conn, `{"type":"stop"}`)

	if alert := next(t, conn, ofType("crisis_alert")); alert.Kind != "textual_danger" {
		t.Errorf("alert = %+v", alert)
	}
	if reply := next(t, conn, bubbleKind(conversation.BubbleReply)); reply.Text != "收到：我唔想活落去" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestVisualDistressFromExpressions(t *testing.T) {
	srv := httptest.NewServer(NewHandler(testConfig(&echoDispatcher{})))
	defer srv.Close()

	conn := dial(t, srv, `{"speech_supported":true}`)
	send(t, conn, `{"type":"video","state":"playing"}`)
	send(t, conn, `{"type":"start"}`)
	send(t, conn, `{"type":"expressions","scores":{"sad":0.9,"neutral":0.05,"happy":0.05}}`)

	alert := next(t, conn, ofType("crisis_alert"))
	if alert.Kind != "visual_distress" || alert.Text != "visual" || alert.Emotion != "sad" {
		t.Errorf("alert = %+v", alert)
	}
}

func TestSpeechUnsupported(t *testing.T) {
	srv := httptest.NewServer(NewHandler(testConfig(&echoDispatcher{})))
	defer srv.Close()

	conn := dial(t, srv, `{"speech_supported":false}`)
	send(t, conn, `{"type":"start"}`)

	next(t, conn, bubbleKind(conversation.BubbleUnsupported))
	if ev := next(t, conn, ofType("state")); ev.State != "idle" {
		t.Errorf("state = %q, want idle", ev.State)
	}
}

func TestUnknownMessage(t *testing.T) {
	srv := httptest.NewServer(NewHandler(testConfig(&echoDispatcher{})))
	defer srv.Close()

	conn := dial(t, srv, `{}`)
	send(t, conn, `{"type":"dance"}`)
	if ev := next(t, conn, ofType("error")); !strings.Contains(ev.Text, "dance") {
		t.Errorf("error = %+v", ev)
	}
}

func TestAdmissionControl(t *testing.T) {
	srv := httptest.NewServer(NewHandler(testConfig(&echoDispatcher{})))
	defer srv.Close()

	dial(t, srv, `{}`)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("second session admitted past the limit")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("response = %v, want 503", resp)
	}
}
