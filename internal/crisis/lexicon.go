package crisis

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon is a keyword file with one list per locale:
//
//	locales:
//	  yue-Hant-HK: [唔想活, 想死]
//	  en: [kill myself]
type Lexicon struct {
	Locales map[string][]string `yaml:"locales"`
}

// LoadLexicon reads a YAML lexicon file.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	var lex Lexicon
	if err = yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	return &lex, nil
}

// Keywords flattens every locale, sorted by locale name for a stable order.
func (l *Lexicon) Keywords() []string {
	locales := make([]string, 0, len(l.Locales))
	for loc := range l.Locales {
		locales = append(locales, loc)
	}
	sort.Strings(locales)

	var out []string
	for _, loc := range locales {
		out = append(out, l.Locales[loc]...)
	}
	return out
}

// MergeKeywords concatenates lists, dropping blanks and duplicates while
// keeping first-seen order.
func MergeKeywords(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, k := range list {
			k = strings.TrimSpace(k)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
