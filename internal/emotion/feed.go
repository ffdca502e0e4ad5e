package emotion

import (
	"context"
	"errors"
	"sync"
	"time"
)

// VideoState mirrors the browser's <video> element.
type VideoState string

const (
	VideoIdle    VideoState = ""
	VideoPlaying VideoState = "playing"
	VideoPaused  VideoState = "paused"
	VideoEnded   VideoState = "ended"
)

// ErrNoClassifier is returned by FrameFeed when no face classifier is wired.
var ErrNoClassifier = errors.New("no face classifier configured")

// pushed tracks video state and the age of the last pushed value.
type pushed struct {
	mu         sync.Mutex
	video      VideoState
	at         time.Time
	staleAfter time.Duration
	now        func() time.Time
}

func (p *pushed) setVideo(s VideoState) {
	p.mu.Lock()
	p.video = s
	p.mu.Unlock()
}

// touch records a push. A push before any video state implies playback.
func (p *pushed) touch() {
	if p.video == VideoIdle {
		p.video = VideoPlaying
	}
	p.at = p.now()
}

func (p *pushed) available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.video == VideoPlaying
}

func (p *pushed) fresh() bool {
	if p.at.IsZero() {
		return false
	}
	return p.staleAfter <= 0 || p.now().Sub(p.at) <= p.staleAfter
}

// Feed is a Source backed by expression scores the browser computes itself
// (face-api.js) and pushes over the session socket.
type Feed struct {
	pushed
	latest Distribution
}

// NewFeed creates a feed whose pushes expire after staleAfter.
func NewFeed(staleAfter time.Duration) *Feed {
	return &Feed{pushed: pushed{staleAfter: staleAfter, now: time.Now}}
}

// SetVideoState records the browser's video playback state.
func (f *Feed) SetVideoState(s VideoState) { f.setVideo(s) }

// Push stores the latest distribution. An empty distribution means no face.
func (f *Feed) Push(d Distribution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = d
	f.touch()
}

func (f *Feed) Available() bool { return f.available() }

func (f *Feed) Detect(context.Context) (Distribution, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.fresh() || len(f.latest) == 0 {
		return nil, false, nil
	}
	out := make(Distribution, len(f.latest))
	for k, v := range f.latest {
		out[k] = v
	}
	return out, true, nil
}

// Classifier turns one JPEG frame into an expression distribution.
type Classifier interface {
	Classify(ctx context.Context, jpeg []byte) (Distribution, bool, error)
}

// FrameFeed is a Source backed by raw frames the browser pushes; each tick
// classifies the most recent frame.
type FrameFeed struct {
	pushed
	frame      []byte
	classifier Classifier
}

// NewFrameFeed creates a frame feed. classifier may be nil, in which case
// every detection fails with ErrNoClassifier.
func NewFrameFeed(classifier Classifier, staleAfter time.Duration) *FrameFeed {
	return &FrameFeed{
		pushed:     pushed{staleAfter: staleAfter, now: time.Now},
		classifier: classifier,
	}
}

func (f *FrameFeed) SetVideoState(s VideoState) { f.setVideo(s) }

// Push stores the latest frame.
func (f *FrameFeed) Push(jpeg []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = jpeg
	f.touch()
}

func (f *FrameFeed) Available() bool { return f.available() }

func (f *FrameFeed) Detect(ctx context.Context) (Distribution, bool, error) {
	f.mu.Lock()
	frame := f.frame
	fresh := f.fresh()
	f.mu.Unlock()

	if !fresh || len(frame) == 0 {
		return nil, false, nil
	}
	if f.classifier == nil {
		return nil, false, ErrNoClassifier
	}
	return f.classifier.Classify(ctx, frame)
}
