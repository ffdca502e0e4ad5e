package crisis

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/hubenschmidt/xinqing-companion/internal/config"
	"github.com/hubenschmidt/xinqing-companion/internal/emotion"
)

func TestVisualRule(t *testing.T) {
	d := NewDetector(DefaultRules(nil))

	tests := []struct {
		label emotion.Label
		want  bool
	}{
		{emotion.Label{Category: emotion.Sad, Score: 0.9}, true},
		{emotion.Label{Category: emotion.Fearful, Score: 0.76}, true},
		{emotion.Label{Category: emotion.Angry, Score: 0.7501}, true},
		{emotion.Label{Category: emotion.Sad, Score: 0.75}, false},
		{emotion.Label{Category: emotion.Angry, Score: 0.5}, false},
		{emotion.Label{Category: emotion.Happy, Score: 0.99}, false},
		{emotion.Label{Category: emotion.Surprised, Score: 1}, false},
		{emotion.Initial(), false},
	}
	for _, tt := range tests {
		sig, ok := d.Visual(tt.label)
		if ok != tt.want {
			t.Errorf("Visual(%v) = %v, want %v", tt.label, ok, tt.want)
			continue
		}
		if ok && (sig.Kind != VisualDistress || sig.Label != tt.label) {
			t.Errorf("Visual(%v) signal = %+v", tt.label, sig)
		}
	}
}

func TestTextualRule(t *testing.T) {
	d := NewDetector(DefaultRules(config.DefaultKeywords))

	tests := []struct {
		text   string
		want   bool
		detail string
	}{
		{"我唔想活落去", true, "唔想活"},
		{"佢攞住把刀", true, "刀"},
		{"我真係不想活", true, "不想活"},
		{"今日好開心", false, ""},
		{"", false, ""},
	}
	for _, tt := range tests {
		sig, ok := d.Textual(tt.text)
		if ok != tt.want {
			t.Errorf("Textual(%q) = %v, want %v", tt.text, ok, tt.want)
			continue
		}
		if ok && (sig.Kind != TextualDanger || sig.Detail != tt.detail) {
			t.Errorf("Textual(%q) = %+v, want detail %q", tt.text, sig, tt.detail)
		}
	}
}

func TestEmptyKeywordsNeverMatchEverything(t *testing.T) {
	d := NewDetector(DefaultRules([]string{"", "  "}))
	if _, ok := d.Textual("anything"); ok {
		t.Error("blank keyword matched")
	}
	if len(d.Keywords()) != 0 {
		t.Errorf("Keywords = %v", d.Keywords())
	}
}

func TestEvaluate(t *testing.T) {
	d := NewDetector(DefaultRules([]string{"knife"}))

	got := d.Evaluate(Perception{Label: emotion.Label{Category: emotion.Sad, Score: 0.8}, Text: "a knife"})
	if len(got) != 2 || got[0].Kind != VisualDistress || got[1].Kind != TextualDanger {
		t.Fatalf("Evaluate = %+v, want visual then textual", got)
	}
	if got[1].Label.Category != emotion.Sad {
		t.Errorf("textual signal should carry the current label, got %v", got[1].Label)
	}

	if got = d.Evaluate(Perception{Label: emotion.Initial(), Text: "fine"}); len(got) != 0 {
		t.Errorf("Evaluate = %+v, want none", got)
	}
}

func TestKindJSON(t *testing.T) {
	data, err := json.Marshal(NewAlert("s1", Signal{Kind: TextualDanger, Detail: "刀"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	json.Unmarshal(data, &out)
	if out["kind"] != "textual_danger" {
		t.Errorf("kind = %v", out["kind"])
	}
}

func TestMemoryGate(t *testing.T) {
	now := time.Unix(0, 0)
	g := NewMemoryGate(10 * time.Second)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	if !g.Allow(ctx, VisualDistress) {
		t.Fatal("first signal suppressed")
	}
	now = now.Add(500 * time.Millisecond)
	if g.Allow(ctx, VisualDistress) {
		t.Error("repeat inside the window allowed")
	}
	if !g.Allow(ctx, TextualDanger) {
		t.Error("other kind suppressed")
	}
	now = now.Add(10 * time.Second)
	if !g.Allow(ctx, VisualDistress) {
		t.Error("signal after the window suppressed")
	}
}

func TestMemoryGateDisabled(t *testing.T) {
	g := NewMemoryGate(0)
	for range 3 {
		if !g.Allow(context.Background(), VisualDistress) {
			t.Fatal("zero window should allow every signal")
		}
	}
}

func TestLexicon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	doc := "locales:\n  yue-Hant-HK: [唔想活, 想死]\n  en: [kill myself, \"\"]\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	lex, err := LoadLexicon(path)
	if err != nil {
		t.Fatalf("LoadLexicon: %v", err)
	}
	got := MergeKeywords([]string{"刀", "想死"}, lex.Keywords())
	want := []string{"刀", "想死", "kill myself", "唔想活"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("merged = %v, want %v", got, want)
	}

	if _, err = LoadLexicon(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNATSSubject(t *testing.T) {
	p := &NATSPublisher{prefix: "companion.crisis"}
	if got := p.Subject(VisualDistress); got != "companion.crisis.visual_distress" {
		t.Errorf("Subject = %q", got)
	}
}
