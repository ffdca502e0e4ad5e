package audio

import (
	"math"
	"time"
)

// SegmenterConfig controls energy-based speech segmentation.
type SegmenterConfig struct {
	ThresholdDB    float64
	SilenceTimeout time.Duration
	MinSpeech      time.Duration
	PreRoll        time.Duration
	SampleRate     int
}

// DefaultSegmenterConfig returns defaults tuned for a laptop microphone.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		ThresholdDB:    -30,
		SilenceTimeout: 800 * time.Millisecond,
		MinSpeech:      300 * time.Millisecond,
		PreRoll:        300 * time.Millisecond,
		SampleRate:     16000,
	}
}

// Segmenter splits a PCM stream into speech segments. Time is measured in
// samples, so results do not depend on how fast chunks arrive.
type Segmenter struct {
	cfg SegmenterConfig

	inSpeech       bool
	speechSamples  int
	silenceSamples int
	buf            []float32
	pre            []float32

	preLen     int
	silenceLen int
	minLen     int
}

// NewSegmenter creates a segmenter with the given config.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Segmenter{
		cfg:        cfg,
		preLen:     samplesFor(cfg.PreRoll, cfg.SampleRate),
		silenceLen: samplesFor(cfg.SilenceTimeout, cfg.SampleRate),
		minLen:     samplesFor(cfg.MinSpeech, cfg.SampleRate),
	}
}

// Process feeds one chunk. It returns a completed segment once speech has
// been followed by SilenceTimeout of silence.
func (s *Segmenter) Process(samples []float32) ([]float32, bool) {
	if EnergyDB(samples) >= s.cfg.ThresholdDB {
		s.speech(samples)
		return nil, false
	}
	return s.silence(samples)
}

func (s *Segmenter) speech(samples []float32) {
	if !s.inSpeech {
		s.inSpeech = true
		s.speechSamples = 0
		s.buf = append(s.buf[:0], s.pre...)
	}
	s.silenceSamples = 0
	s.speechSamples += len(samples)
	s.buf = append(s.buf, samples...)
	s.pre = s.pre[:0]
}

func (s *Segmenter) silence(samples []float32) ([]float32, bool) {
	s.keepPreRoll(samples)
	if !s.inSpeech {
		return nil, false
	}

	s.buf = append(s.buf, samples...)
	s.silenceSamples += len(samples)
	if s.silenceSamples < s.silenceLen {
		return nil, false
	}

	s.inSpeech = false
	if s.speechSamples < s.minLen {
		s.buf = s.buf[:0]
		return nil, false
	}
	seg := s.buf
	s.buf = nil
	return seg, true
}

func (s *Segmenter) keepPreRoll(samples []float32) {
	s.pre = append(s.pre, samples...)
	if excess := len(s.pre) - s.preLen; excess > 0 {
		s.pre = s.pre[excess:]
	}
}

// Flush returns the speech in progress, if long enough, and resets.
func (s *Segmenter) Flush() []float32 {
	defer func() {
		s.inSpeech = false
		s.buf = nil
		s.pre = s.pre[:0]
	}()
	if !s.inSpeech || s.speechSamples < s.minLen {
		return nil
	}
	return s.buf
}

// EnergyDB returns the RMS level of samples in dBFS.
func EnergyDB(samples []float32) float64 {
	if len(samples) == 0 {
		return -100
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < 1e-10 {
		return -100
	}
	return 20 * math.Log10(rms)
}

func samplesFor(d time.Duration, rate int) int {
	return int(d.Seconds() * float64(rate))
}
