// Package extract turns caller utterances into slot values for the booking handlers.
package extract

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/chadiek/smileright-voice/internal/agent"
	"github.com/chadiek/smileright-voice/internal/language"
)

// DateTimeLayout is the form Literal returns for the date_time slot.
const DateTimeLayout = "2006-01-02 15:04"

var (
	affirmatives = map[string]bool{
		"yes": true, "yeah": true, "yep": true, "correct": true, "right": true, "sure": true,
		"oui": true, "ouais": true, "exact": true, "exactement": true,
		"d'accord": true, "parfait": true,
	}
	infoWords = map[string]bool{
		"where": true, "address": true, "located": true, "open": true, "hours": true,
		"où": true, "adresse": true, "situé": true, "située": true, "ouvert": true, "heures": true, "horaire": true,
	}
	changeVerbs = map[string]bool{"change": true, "changer": true, "modifier": true, "corriger": true}

	isoDateTime = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})[ T](\d{1,2})[:h](\d{2})\b`)
	phoneRun    = regexp.MustCompile(`[+(]?\d[\d\s().-]{5,}\d`)

	// Keys are space-joined tokens as produced by language.Tokenize.
	slotAliases = map[string]agent.Slot{
		"date": agent.SlotDateTime, "time": agent.SlotDateTime, "date and time": agent.SlotDateTime,
		"appointment time": agent.SlotDateTime, "heure": agent.SlotDateTime, "date et heure": agent.SlotDateTime,
		"first name": agent.SlotFirstName, "prénom": agent.SlotFirstName,
		"last name": agent.SlotLastName, "family name": agent.SlotLastName, "surname": agent.SlotLastName,
		"nom": agent.SlotLastName, "nom de famille": agent.SlotLastName,
		"phone": agent.SlotPhone, "number": agent.SlotPhone, "phone number": agent.SlotPhone,
		"téléphone": agent.SlotPhone, "numéro": agent.SlotPhone, "numéro de téléphone": agent.SlotPhone,
		"reason": agent.SlotReason, "raison": agent.SlotReason, "motif": agent.SlotReason,
	}
	aliasesLongestFirst = sortedAliases()
)

func sortedAliases() []string {
	out := make([]string, 0, len(slotAliases))
	for a := range slotAliases {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// Literal is a rule-based extractor for typed input (the chat CLI, the WebSocket transport and
// tests). Values are taken verbatim; dates must be written as 2006-01-02 15:04.
type Literal struct{}

var _ agent.Extractor = Literal{}

func (Literal) Extract(_ context.Context, req agent.ExtractRequest) (agent.Extraction, error) {
	text := strings.TrimSpace(req.Utterance)
	if text == "" {
		return agent.Extraction{}, nil
	}
	lower := strings.ToLower(text)

	if slot, ok := changeRequest(lower); ok {
		return agent.Extraction{Change: slot}, nil
	}
	if isInfoQuestion(lower) {
		return agent.Extraction{Info: true}, nil
	}

	switch req.Slot {
	case agent.SlotConfirmation:
		if affirmative(lower) {
			return agent.Extraction{Value: agent.ConfirmYes, Found: true}, nil
		}
		return agent.Extraction{Value: lower, Found: true}, nil
	case agent.SlotPhone:
		if digits := phoneRun.FindString(text); digits != "" {
			return agent.Extraction{Value: strings.TrimSpace(digits), Found: true}, nil
		}
		if req.Known != "" && affirmative(lower) {
			return agent.Extraction{Value: req.Known, Found: true}, nil
		}
		return agent.Extraction{Value: text, Found: true}, nil
	case agent.SlotDateTime:
		m := isoDateTime.FindStringSubmatch(text)
		if m == nil {
			return agent.Extraction{}, nil
		}
		t, err := time.Parse("2006-01-02 15:04", m[1]+" "+pad2(m[2])+":"+m[3])
		if err != nil {
			return agent.Extraction{}, nil
		}
		return agent.Extraction{Value: t.Format(DateTimeLayout), Found: true}, nil
	}
	return agent.Extraction{Value: text, Found: true}, nil
}

// changeRequest looks for a change verb followed by a slot name anywhere after it. The longest
// alias wins, so "phone number" beats "number" and "date and time" beats "date".
func changeRequest(lower string) (agent.Slot, bool) {
	toks := language.Tokenize(lower)
	for i, tok := range toks {
		if !changeVerbs[tok] {
			continue
		}
		rest := " " + strings.Join(toks[i+1:], " ") + " "
		for _, alias := range aliasesLongestFirst {
			if strings.Contains(rest, " "+alias+" ") {
				return slotAliases[alias], true
			}
		}
		return "", false
	}
	return "", false
}

func affirmative(lower string) bool {
	toks := language.Tokenize(lower)
	return len(toks) > 0 && affirmatives[toks[0]]
}

func isInfoQuestion(lower string) bool {
	if !strings.HasSuffix(lower, "?") {
		return false
	}
	for _, tok := range language.Tokenize(lower) {
		if infoWords[tok] {
			return true
		}
	}
	return false
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
