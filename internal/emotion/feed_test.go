package emotion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFeedAvailability(t *testing.T) {
	f := NewFeed(time.Second)
	if f.Available() {
		t.Fatal("new feed should be unavailable")
	}

	f.Push(Distribution{"happy": 0.7})
	if !f.Available() {
		t.Fatal("push should imply playback")
	}

	f.SetVideoState(VideoPaused)
	if f.Available() {
		t.Error("paused video should be unavailable")
	}
	f.SetVideoState(VideoEnded)
	if f.Available() {
		t.Error("ended video should be unavailable")
	}
	f.SetVideoState(VideoPlaying)
	if !f.Available() {
		t.Error("playing video should be available")
	}
}

func TestFeedDetect(t *testing.T) {
	now := time.Unix(1000, 0)
	f := NewFeed(2 * time.Second)
	f.now = func() time.Time { return now }

	if _, found, _ := f.Detect(context.Background()); found {
		t.Fatal("nothing pushed yet")
	}

	f.Push(Distribution{"sad": 0.9})
	dist, found, err := f.Detect(context.Background())
	if err != nil || !found || dist["sad"] != 0.9 {
		t.Fatalf("Detect = %v, %v, %v", dist, found, err)
	}

	now = now.Add(3 * time.Second)
	if _, found, _ = f.Detect(context.Background()); found {
		t.Error("stale push should read as no face")
	}

	f.Push(Distribution{})
	if _, found, _ = f.Detect(context.Background()); found {
		t.Error("empty push should read as no face")
	}
}

type fakeClassifier struct {
	dist Distribution
	err  error
}

func (c fakeClassifier) Classify(context.Context, []byte) (Distribution, bool, error) {
	return c.dist, c.dist != nil, c.err
}

func TestFrameFeed(t *testing.T) {
	f := NewFrameFeed(fakeClassifier{dist: Distribution{"angry": 0.8}}, time.Second)
	f.Push([]byte{0xff, 0xd8})

	dist, found, err := f.Detect(context.Background())
	if err != nil || !found || dist["angry"] != 0.8 {
		t.Fatalf("Detect = %v, %v, %v", dist, found, err)
	}

	bare := NewFrameFeed(nil, time.Second)
	bare.Push([]byte{0xff})
	if _, _, err = bare.Detect(context.Background()); !errors.Is(err, ErrNoClassifier) {
		t.Errorf("err = %v, want ErrNoClassifier", err)
	}
}

func TestFaceClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/expressions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("content-type = %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		face := len(body) > 1
		json.NewEncoder(w).Encode(ClassifyResult{
			Face:   face,
			Scores: map[string]float64{"fear": 0.85, "neutral": 0.1},
		})
	}))
	defer srv.Close()

	c := NewFaceClient(FaceClientConfig{URL: srv.URL})

	dist, found, err := c.Classify(context.Background(), []byte{0xff, 0xd8, 0x00})
	if err != nil || !found {
		t.Fatalf("Classify = %v, %v", found, err)
	}
	if label, _ := Dominant(dist); label.Category != Fearful {
		t.Errorf("dominant = %v, want fearful", label)
	}

	if _, found, err = c.Classify(context.Background(), []byte{0x00}); err != nil || found {
		t.Errorf("no-face frame: found=%v err=%v", found, err)
	}
}

func TestFaceClientBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewFaceClient(FaceClientConfig{URL: srv.URL, BreakerFailures: 2, BreakerOpenFor: time.Minute})
	for range 5 {
		if _, _, err := c.Classify(context.Background(), []byte{0xff}); err == nil {
			t.Fatal("expected error")
		}
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("sidecar hit %d times, want 2 before breaker opened", n)
	}
}

func TestFaceClientPoolsConnections(t *testing.T) {
	c := NewFaceClient(FaceClientConfig{URL: "http://face", PoolSize: 4, Timeout: time.Second})
	tr, ok := c.client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport = %T, want pooled *http.Transport", c.client.Transport)
	}
	if tr.MaxIdleConnsPerHost != 4 || c.client.Timeout != time.Second {
		t.Errorf("idle per host = %d, timeout = %s", tr.MaxIdleConnsPerHost, c.client.Timeout)
	}
}
