// Package language detects whether a caller opened the conversation in French or English.
package language

import (
	"strings"
	"unicode"
)

// Language is the conversation language chosen for a session.
type Language string

const (
	Unknown Language = ""
	English Language = "english"
	French  Language = "french"
)

// Parse maps configuration names ("en", "english", "fr", "french") to a Language.
func Parse(s string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "en", "english":
		return English, true
	case "fr", "french", "français", "francais":
		return French, true
	}
	return Unknown, false
}

// Keywords holds the indicator words per language. Matching is case-insensitive.
type Keywords struct {
	French  []string `yaml:"french" json:"french"`
	English []string `yaml:"english" json:"english"`
}

// DefaultKeywords returns the clinic's 25 French and 25 English indicators.
func DefaultKeywords() Keywords {
	return Keywords{
		French: []string{
			"bonjour", "salut", "bonsoir", "oui", "non", "merci", "je", "suis", "voudrais",
			"rendez-vous", "français", "parle", "comprends", "dentiste", "clinique", "allo",
			"comment", "allez", "vous", "bien", "très", "avoir", "prendre", "besoin", "aide",
		},
		English: []string{
			"hello", "hi", "good", "yes", "no", "thank", "i", "am", "would", "like",
			"appointment", "english", "speak", "understand", "dentist", "clinic", "need",
			"want", "book", "schedule", "help", "can", "you", "please", "thanks",
		},
	}
}

// Result carries the decision together with both scores.
type Result struct {
	Language     Language
	FrenchScore  int
	EnglishScore int
}

// Tie reports whether the scores were equal and English was chosen by default.
func (r Result) Tie() bool { return r.FrenchScore == r.EnglishScore }

// Classifier scores utterances against fixed keyword sets. It holds no mutable state and
// is safe for concurrent use.
type Classifier struct {
	french  map[string]struct{}
	english map[string]struct{}
}

// NewClassifier builds a classifier from the keyword configuration.
func NewClassifier(k Keywords) *Classifier {
	return &Classifier{french: toSet(k.French), english: toSet(k.English)}
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// Classify counts distinct keyword hits per language. French wins only on a strictly
// higher score; ties, including 0-0, resolve to English.
func (c *Classifier) Classify(utterance string) Result {
	seen := make(map[string]struct{})
	var res Result
	for _, tok := range Tokenize(utterance) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := c.french[tok]; ok {
			res.FrenchScore++
		}
		if _, ok := c.english[tok]; ok {
			res.EnglishScore++
		}
	}
	if res.FrenchScore > res.EnglishScore {
		res.Language = French
	} else {
		res.Language = English
	}
	return res
}

// Tokenize lower-cases text and splits on whitespace and punctuation. Inner hyphens and
// apostrophes are kept so "rendez-vous" stays one token.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '\'' || r == '’')
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "-'’")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
