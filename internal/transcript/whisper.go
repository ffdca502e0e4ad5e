package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hubenschmidt/xinqing-companion/internal/audio"
	"github.com/hubenschmidt/xinqing-companion/internal/httpclient"
	"github.com/hubenschmidt/xinqing-companion/internal/metrics"
)

// Transcriber turns one speech segment (16kHz mono) into text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, lang string) (string, error)
}

// WhisperClient sends audio as multipart WAV to a whisper.cpp style
// /inference endpoint.
type WhisperClient struct {
	url    string
	client *http.Client
}

// NewWhisperClient creates a client for a whisper-compatible HTTP server.
func NewWhisperClient(url string, poolSize int) *WhisperClient {
	return &WhisperClient{
		url:    strings.TrimRight(url, "/"),
		client: httpclient.NewPooled(poolSize, 30*time.Second),
	}
}

type whisperResponse struct {
	Text string `json:"text"`
}

func (c *WhisperClient) Transcribe(ctx context.Context, samples []float32, lang string) (string, error) {
	start := time.Now()

	body, contentType, err := buildMultipartAudio(samples, whisperLang(lang))
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/inference", body)
	if err != nil {
		return "", fmt.Errorf("create whisper request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("asr", "http").Inc()
		return "", fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.Errors.WithLabelValues("asr", "status").Inc()
		return "", fmt.Errorf("whisper status %d: %s", resp.StatusCode, string(respBody))
	}

	var result whisperResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode whisper response: %w", err)
	}
	metrics.ASRDuration.Observe(time.Since(start).Seconds())
	return strings.TrimSpace(result.Text), nil
}

// whisperLang maps a BCP-47 tag onto whisper's language codes; Cantonese
// tags map to "yue".
func whisperLang(tag string) string {
	lower := strings.ToLower(tag)
	if strings.HasPrefix(lower, "yue") || strings.HasPrefix(lower, "zh-hk") {
		return "yue"
	}
	if i := strings.IndexAny(lower, "-_"); i > 0 {
		return lower[:i]
	}
	return lower
}

func buildMultipartAudio(samples []float32, lang string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err = part.Write(audio.EncodeWAV(samples, 16000)); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}
	if lang != "" {
		if err = writer.WriteField("language", lang); err != nil {
			return nil, "", fmt.Errorf("write language field: %w", err)
		}
	}
	_ = writer.WriteField("response_format", "json")
	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}

// WhisperRecognizer is the server-side fallback for clients without speech
// recognition. Audio pushed with Feed is segmented on silence; each segment
// is transcribed in order and appended to the session's result list.
type WhisperRecognizer struct {
	asr Transcriber
	seg audio.SegmenterConfig

	mu  sync.Mutex
	cur *whisperStream
}

// NewWhisperRecognizer creates a recognizer. A nil asr makes Open report
// ErrUnsupported.
func NewWhisperRecognizer(asr Transcriber, seg audio.SegmenterConfig) *WhisperRecognizer {
	return &WhisperRecognizer{asr: asr, seg: seg}
}

func (w *WhisperRecognizer) Open(ctx context.Context, lang string) (Stream, error) {
	if w.asr == nil {
		return nil, ErrUnsupported
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &whisperStream{
		owner:  w,
		asr:    w.asr,
		lang:   lang,
		seg:    audio.NewSegmenter(w.seg),
		events: make(chan Event),
		jobs:   make(chan segmentJob, 8),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	w.mu.Lock()
	prev := w.cur
	w.cur = s
	w.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	go s.run(ctx)
	return s, nil
}

// Feed pushes decoded 16kHz samples into the open stream, if any.
func (w *WhisperRecognizer) Feed(samples []float32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cur == nil {
		return
	}
	seg, ended := w.cur.seg.Process(samples)
	if !ended {
		return
	}
	metrics.SpeechSegments.Inc()
	w.cur.enqueue(segmentJob{samples: seg})
}

// Drain transcribes any speech in progress and waits until every queued
// segment has been handed to the stream reader, so a following stop sees the
// complete utterance.
func (w *WhisperRecognizer) Drain(ctx context.Context) {
	w.mu.Lock()
	s := w.cur
	var ack chan struct{}
	if s != nil {
		if tail := s.seg.Flush(); len(tail) > 0 {
			metrics.SpeechSegments.Inc()
			s.enqueue(segmentJob{samples: tail})
		}
		ack = make(chan struct{})
		s.enqueue(segmentJob{ack: ack})
	}
	w.mu.Unlock()

	if ack == nil {
		return
	}
	select {
	case <-ack:
	case <-s.done:
	case <-ctx.Done():
	}
}

type segmentJob struct {
	samples []float32
	ack     chan struct{}
}

type whisperStream struct {
	owner *WhisperRecognizer
	asr   Transcriber
	lang  string
	seg   *audio.Segmenter

	events chan Event
	jobs   chan segmentJob
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	results []Result
}

func (s *whisperStream) Events() <-chan Event { return s.events }

func (s *whisperStream) enqueue(job segmentJob) {
	select {
	case s.jobs <- job:
	case <-s.done:
	default:
		slog.Warn("whisper queue full, dropping segment", "samples", len(job.samples))
		if job.ack != nil {
			close(job.ack)
		}
	}
}

func (s *whisperStream) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.owner.mu.Lock()
		if s.owner.cur == s {
			s.owner.cur = nil
		}
		s.owner.mu.Unlock()
	})
	<-s.done
	return nil
}

func (s *whisperStream) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	for {
		var job segmentJob
		select {
		case <-ctx.Done():
			return
		case job = <-s.jobs:
		}

		if job.ack != nil {
			close(job.ack)
			continue
		}

		ev, ok := s.transcribe(ctx, job.samples)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (s *whisperStream) transcribe(ctx context.Context, samples []float32) (Event, bool) {
	text, err := s.asr.Transcribe(ctx, samples, s.lang)
	if err != nil {
		if ctx.Err() != nil {
			return Event{}, false
		}
		return Event{Type: EventError, Err: err}, true
	}
	if text == "" {
		return Event{}, false
	}
	if len(s.results) > 0 && needsSpace(s.results[len(s.results)-1][0].Transcript, text) {
		text = " " + text
	}
	s.results = append(s.results, Result{{Transcript: text, Confidence: 1}})
	results := make([]Result, len(s.results))
	copy(results, s.results)
	return Event{Type: EventResult, ResultIndex: 0, Results: results}, true
}

// needsSpace reports whether two segments of a space-delimited script meet
// without whitespace. CJK segments are joined as-is.
func needsSpace(prev, next string) bool {
	if prev == "" || next == "" {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(prev)
	first, _ := utf8.DecodeRuneInString(next)
	return last < utf8.RuneSelf && first < utf8.RuneSelf && !unicode.IsSpace(last) && !unicode.IsSpace(first)
}
