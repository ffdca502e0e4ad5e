package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hubenschmidt/xinqing-companion/internal/audio"
)

func TestWhisperClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if lang := r.FormValue("language"); lang != "yue" {
			t.Errorf("language = %q, want yue", lang)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": " 我好攰 \n"})
	}))
	defer srv.Close()

	c := NewWhisperClient(srv.URL+"/", 2)
	text, err := c.Transcribe(context.Background(), make([]float32, 160), "yue-Hant-HK")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "我好攰" {
		t.Errorf("text = %q", text)
	}
}

func TestWhisperClientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewWhisperClient(srv.URL, 1).Transcribe(context.Background(), nil, "en"); err == nil {
		t.Fatal("expected status error")
	}
}

func TestWhisperLang(t *testing.T) {
	for in, want := range map[string]string{
		"yue-Hant-HK": "yue",
		"zh-HK":       "yue",
		"en-US":       "en",
		"ja":          "ja",
	} {
		if got := whisperLang(in); got != want {
			t.Errorf("whisperLang(%q) = %q, want %q", in, got, want)
		}
	}
}

type scriptedTranscriber struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (s *scriptedTranscriber) Transcribe(context.Context, []float32, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if len(s.texts) == 0 {
		return "", nil
	}
	text := s.texts[0]
	s.texts = s.texts[1:]
	return text, nil
}

func testSegmenter() audio.SegmenterConfig {
	return audio.SegmenterConfig{
		ThresholdDB:    -30,
		SilenceTimeout: 20 * time.Millisecond,
		MinSpeech:      10 * time.Millisecond,
		SampleRate:     1000,
	}
}

func speak(w *WhisperRecognizer) {
	loud := make([]float32, 30)
	for i := range loud {
		loud[i] = 0.5
	}
	w.Feed(loud)
	w.Feed(make([]float32, 30))
}

func nextEvent(t *testing.T, s Stream) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for whisper event")
		return Event{}
	}
}

func TestWhisperRecognizerAccumulatesSegments(t *testing.T) {
	w := NewWhisperRecognizer(&scriptedTranscriber{texts: []string{"hello", "there"}}, testSegmenter())
	s, err := w.Open(context.Background(), "en")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	speak(w)
	if got := Reconstruct(nextEvent(t, s)); got != "hello" {
		t.Errorf("first = %q", got)
	}
	speak(w)
	if got := Reconstruct(nextEvent(t, s)); got != "hello there" {
		t.Errorf("second = %q, want the whole utterance", got)
	}
}

func TestWhisperRecognizerDrainFlushesTail(t *testing.T) {
	w := NewWhisperRecognizer(&scriptedTranscriber{texts: []string{"我唔想返工"}}, testSegmenter())
	s, err := w.Open(context.Background(), "yue-Hant-HK")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	loud := make([]float32, 30)
	for i := range loud {
		loud[i] = 0.5
	}
	w.Feed(loud)

	got := make(chan Event, 1)
	go func() { got <- <-s.Events() }()
	w.Drain(context.Background())

	select {
	case ev := <-got:
		if Reconstruct(ev) != "我唔想返工" {
			t.Errorf("tail = %q", Reconstruct(ev))
		}
	case <-time.After(time.Second):
		t.Fatal("tail never transcribed")
	}
}

func TestWhisperRecognizerErrors(t *testing.T) {
	if _, err := NewWhisperRecognizer(nil, testSegmenter()).Open(context.Background(), "en"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}

	w := NewWhisperRecognizer(&scriptedTranscriber{err: errors.New("timeout")}, testSegmenter())
	s, err := w.Open(context.Background(), "en")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	speak(w)
	if ev := nextEvent(t, s); ev.Type != EventError {
		t.Errorf("event type = %s, want error", ev.Type)
	}
	s.Close()
	if _, ok := <-s.Events(); ok {
		t.Error("events still open after Close")
	}
	w.Feed(make([]float32, 10))
}

func TestWhisperDrainThenStopKeepsTail(t *testing.T) {
	w := NewWhisperRecognizer(&scriptedTranscriber{texts: []string{"我唔想活落去"}}, testSegmenter())
	acc := NewAccumulator(w, "yue-Hant-HK")
	stalled := func(ctx context.Context, _ Update) { <-ctx.Done() }
	if err := acc.Start(context.Background(), 1, stalled); err != nil {
		t.Fatalf("Start: %v", err)
	}

	loud := make([]float32, 30)
	for i := range loud {
		loud[i] = 0.5
	}
	w.Feed(loud)
	w.Drain(context.Background())

	if last, seen := acc.Stop(); !seen || last != "我唔想活落去" {
		t.Errorf("Stop = %q, %v; want the drained tail", last, seen)
	}
}
