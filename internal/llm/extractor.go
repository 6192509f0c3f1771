package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chadiek/smileright-voice/internal/agent"
	"github.com/chadiek/smileright-voice/internal/language"
)

const extractDateLayout = "2006-01-02 15:04"

// Generator is the completion call the extractor needs. CerebrasClient implements it.
type Generator interface {
	GenerateJSON(ctx context.Context, system, prompt string) (string, error)
}

// SlotExtractor asks a model to pull one slot value out of a transcribed utterance.
// Spoken input ("next Tuesday at ten", "five one four ...") is what it is for.
type SlotExtractor struct {
	gen      Generator
	fallback agent.Extractor
	loc      *time.Location
	now      func() time.Time
	log      *zap.Logger
}

// ExtractorOption customizes a SlotExtractor.
type ExtractorOption func(*SlotExtractor)

// WithFallback is consulted when the model call fails.
func WithFallback(e agent.Extractor) ExtractorOption {
	return func(s *SlotExtractor) { s.fallback = e }
}

// WithClock fixes "today" for resolving relative dates.
func WithClock(now func() time.Time) ExtractorOption {
	return func(s *SlotExtractor) { s.now = now }
}

func WithLogger(l *zap.Logger) ExtractorOption {
	return func(s *SlotExtractor) { s.log = l }
}

func NewSlotExtractor(gen Generator, loc *time.Location, opts ...ExtractorOption) *SlotExtractor {
	if loc == nil {
		loc = time.Local
	}
	s := &SlotExtractor{gen: gen, loc: loc, now: time.Now, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ agent.Extractor = (*SlotExtractor)(nil)

type extractReply struct {
	Value  string `json:"value"`
	Found  bool   `json:"found"`
	Change string `json:"change"`
	Info   bool   `json:"info"`
}

const systemPrompt = `You extract booking data for a dental clinic phone agent.
Reply with a single JSON object: {"value": string, "found": bool, "change": string, "info": bool}.
Set "change" to one of date_time, first_name, last_name, phone, reason when the caller asks to correct that field, otherwise "".
Set "info" to true when the caller asks where the clinic is or when it is open.
Set "found" to false when the utterance does not contain the requested field.`

var slotGuidance = map[agent.Slot]string{
	agent.SlotDateTime:     `The requested field is the appointment date and time. Return it as "YYYY-MM-DD HH:MM" in 24h local time.`,
	agent.SlotFirstName:    `The requested field is the caller's first name. Return only the name, capitalized.`,
	agent.SlotLastName:     `The requested field is the caller's last name. It may be spelled letter by letter; join the letters and capitalize.`,
	agent.SlotPhone:        `The requested field is the caller's phone number. Return digits only.`,
	agent.SlotReason:       `The requested field is the reason for the visit. Return a short phrase.`,
	agent.SlotConfirmation: `The caller was read a booking summary. Return "yes" when they accept it and "no" otherwise.`,
}

func (s *SlotExtractor) prompt(req agent.ExtractRequest) string {
	var b strings.Builder
	now := s.now().In(s.loc)
	fmt.Fprintf(&b, "Today is %s.\n", now.Format("Monday 2006-01-02 15:04"))
	fmt.Fprintf(&b, "Caller language: %s.\n", orDefault(string(req.Language), string(language.English)))
	b.WriteString(slotGuidance[req.Slot])
	b.WriteString("\n")
	if req.Known != "" {
		fmt.Fprintf(&b, "The number on file is %s. If the caller confirms it, return it as the value.\n", req.Known)
	}
	fmt.Fprintf(&b, "Utterance: %q", req.Utterance)
	return b.String()
}

func (s *SlotExtractor) Extract(ctx context.Context, req agent.ExtractRequest) (agent.Extraction, error) {
	if strings.TrimSpace(req.Utterance) == "" {
		return agent.Extraction{}, nil
	}
	raw, err := s.gen.GenerateJSON(ctx, systemPrompt, s.prompt(req))
	if err != nil {
		if s.fallback != nil && ctx.Err() == nil {
			s.log.Warn("model extraction failed, using fallback", zap.String("slot", string(req.Slot)), zap.Error(err))
			return s.fallback.Extract(ctx, req)
		}
		return agent.Extraction{}, err
	}
	s.log.Debug("model extraction", zap.String("slot", string(req.Slot)), zap.String("reply", raw))
	return s.parse(req, raw)
}

// parse checks the model reply against what the slot accepts. Malformed values come back
// as not found so the handler re-asks.
func (s *SlotExtractor) parse(req agent.ExtractRequest, raw string) (agent.Extraction, error) {
	var r extractReply
	if err := json.Unmarshal([]byte(stripFences(raw)), &r); err != nil {
		return agent.Extraction{}, fmt.Errorf("llm: decode extraction: %w", err)
	}
	if slot, ok := agent.ParseSlot(strings.TrimSpace(r.Change)); ok {
		return agent.Extraction{Change: slot}, nil
	}
	if r.Info {
		return agent.Extraction{Info: true}, nil
	}
	value := strings.TrimSpace(r.Value)
	if !r.Found || value == "" {
		return agent.Extraction{}, nil
	}
	switch req.Slot {
	case agent.SlotDateTime:
		if _, err := time.ParseInLocation(extractDateLayout, value, s.loc); err != nil {
			return agent.Extraction{}, nil
		}
	case agent.SlotConfirmation:
		if strings.EqualFold(value, agent.ConfirmYes) {
			value = agent.ConfirmYes
		}
	}
	return agent.Extraction{Value: value, Found: true}, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
