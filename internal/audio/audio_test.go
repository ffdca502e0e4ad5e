package audio

import (
	"encoding/binary"
	"testing"
	"time"
)

func tone(n int, amp float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = amp
		} else {
			out[i] = -amp
		}
	}
	return out
}

func TestDecodePCM16(t *testing.T) {
	data := []byte{0xff, 0x7f, 0x00, 0x80, 0x00, 0x00, 0x01}
	got := DecodePCM16(data)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0] != 1 {
		t.Errorf("max sample = %v, want 1", got[0])
	}
	if got[1] >= -1 {
		t.Errorf("min sample = %v, want below -1", got[1])
	}
	if got[2] != 0 {
		t.Errorf("zero sample = %v", got[2])
	}
}

func TestEncodeWAV(t *testing.T) {
	wav := EncodeWAV([]float32{0, 1, -1, 2}, 16000)
	if len(wav) != 44+8 {
		t.Fatalf("len = %d, want 52", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("bad header %q", wav[:44])
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d", rate)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != 8 {
		t.Errorf("data size = %d", size)
	}
	if v := int16(binary.LittleEndian.Uint16(wav[50:52])); v != 32767 {
		t.Errorf("clamped sample = %d, want 32767", v)
	}
}

func TestSegmenter(t *testing.T) {
	cfg := SegmenterConfig{
		ThresholdDB:    -30,
		SilenceTimeout: 100 * time.Millisecond,
		MinSpeech:      50 * time.Millisecond,
		PreRoll:        10 * time.Millisecond,
		SampleRate:     1000,
	}
	s := NewSegmenter(cfg)
	loud := tone(20, 0.5)
	quiet := make([]float32, 20)

	if _, ended := s.Process(quiet); ended {
		t.Fatal("silence alone ended a segment")
	}
	for range 5 {
		if _, ended := s.Process(loud); ended {
			t.Fatal("segment ended during speech")
		}
	}
	var seg []float32
	var ended bool
	for i := 0; i < 5 && !ended; i++ {
		seg, ended = s.Process(quiet)
	}
	if !ended {
		t.Fatal("segment did not end after silence timeout")
	}
	// pre-roll (10) + speech (100) + trailing silence (100)
	if len(seg) != 210 {
		t.Errorf("segment length = %d, want 210", len(seg))
	}
}

func TestSegmenterDropsShortBursts(t *testing.T) {
	s := NewSegmenter(SegmenterConfig{
		ThresholdDB:    -30,
		SilenceTimeout: 20 * time.Millisecond,
		MinSpeech:      100 * time.Millisecond,
		SampleRate:     1000,
	})
	s.Process(tone(10, 0.5))
	if seg, ended := s.Process(make([]float32, 30)); ended || seg != nil {
		t.Errorf("short burst produced a segment of %d samples", len(seg))
	}
}

func TestSegmenterFlush(t *testing.T) {
	s := NewSegmenter(SegmenterConfig{ThresholdDB: -30, SilenceTimeout: time.Second, MinSpeech: 10 * time.Millisecond, SampleRate: 1000})
	s.Process(tone(50, 0.5))
	if got := s.Flush(); len(got) != 50 {
		t.Errorf("Flush len = %d, want 50", len(got))
	}
	if got := s.Flush(); got != nil {
		t.Errorf("second Flush = %d samples, want nil", len(got))
	}
}

func TestResample(t *testing.T) {
	tests := []struct {
		name     string
		src, dst int
		in       int
		want     int
	}{
		{"same rate", 16000, 16000, 1600, 1600},
		{"48k down", 48000, 16000, 4800, 1600},
		{"8k up", 8000, 16000, 800, 1600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]float32, tt.in)
			for i := range in {
				in[i] = 0.5
			}
			out := Resample(in, tt.src, tt.dst)
			if len(out) != tt.want {
				t.Fatalf("len = %d, want %d", len(out), tt.want)
			}
			// DC passes through the filter at unity gain away from the edges.
			if mid := out[len(out)/2]; mid < 0.49 || mid > 0.51 {
				t.Errorf("mid sample = %v, want 0.5", mid)
			}
		})
	}
}

func TestResampleAttenuatesAboveNyquist(t *testing.T) {
	// Alternating samples at 48kHz sit at 24kHz, far above the 8kHz cutoff.
	out := To16k(tone(4800, 0.5), 48000)
	if db := EnergyDB(out[100 : len(out)-100]); db > -20 {
		t.Errorf("aliased energy = %.1f dB, want strongly attenuated", db)
	}
}
