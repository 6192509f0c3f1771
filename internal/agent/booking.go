package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chadiek/smileright-voice/internal/language"
	"github.com/chadiek/smileright-voice/internal/validate"
)

// ValidationError reports a candidate value rejected by a domain rule. Err is
// validate.ErrOutsideBusinessHours or validate.ErrInvalidFormat.
type ValidationError struct {
	Slot Slot
	Err  error
}

func (e *ValidationError) Error() string { return fmt.Sprintf("slot %s: %v", e.Slot, e.Err) }

func (e *ValidationError) Unwrap() error { return e.Err }

// dateTimeLayouts are the forms an extractor may return for the date-time slot.
var dateTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04"}

// BookingConfig parameterizes one booking role. Roles share all control logic and differ
// only in id, language and prompt text.
type BookingConfig struct {
	ID        HandlerID
	Language  language.Language
	Prompts   PromptSet
	Hours     validate.Hours
	Location  *time.Location
	Extractor Extractor
	Logger    *zap.Logger
}

// BookingHandler collects the required slots in order, then reads back a summary.
// The current slot is derived from the SessionContext on every turn.
type BookingHandler struct {
	cfg BookingConfig
	log *zap.Logger
}

// NewBookingHandler validates the configuration and builds the handler.
func NewBookingHandler(cfg BookingConfig) (*BookingHandler, error) {
	if cfg.ID == "" {
		return nil, errors.New("agent: booking handler id is required")
	}
	if cfg.Extractor == nil {
		return nil, errors.New("agent: booking handler needs an extractor")
	}
	if err := cfg.Prompts.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Hours.Validate(); err != nil {
		return nil, err
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingHandler{cfg: cfg, log: log.With(zap.String("handler", string(cfg.ID)))}, nil
}

func (h *BookingHandler) ID() HandlerID { return h.cfg.ID }

func (h *BookingHandler) EntryAction(*SessionContext) string { return h.cfg.Prompts.Entry }

// IsComplete is true when every slot is set and the caller accepted the summary.
func (h *BookingHandler) IsComplete(sc *SessionContext) bool {
	return len(sc.Missing()) == 0 && sc.Booking().Confirmed
}

func (h *BookingHandler) HandleUtterance(ctx context.Context, sc *SessionContext, u Utterance) (TurnResult, error) {
	p := h.cfg.Prompts
	slot := sc.NextSlot()

	req := ExtractRequest{Utterance: u.Text, Slot: slot, Language: h.cfg.Language}
	if slot == SlotPhone {
		req.Known = h.phoneOnFile(sc)
	}
	ex, err := h.cfg.Extractor.Extract(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return TurnResult{}, ctx.Err()
		}
		h.log.Warn("extraction failed",
			zap.String("session_id", sc.SessionID()),
			zap.String("slot", string(slot)),
			zap.Error(err))
		return TurnResult{Response: joinLines(p.Unclear, h.ask(sc, slot))}, nil
	}

	if ex.Change != "" {
		if _, ok := ParseSlot(string(ex.Change)); ok {
			sc.clearSlot(ex.Change)
			h.log.Info("slot cleared for correction",
				zap.String("session_id", sc.SessionID()),
				zap.String("slot", string(ex.Change)))
			return TurnResult{Response: joinLines(p.Corrected, h.ask(sc, sc.NextSlot()))}, nil
		}
	}
	if ex.Info {
		return TurnResult{Response: joinLines(p.ClinicInfo, h.ask(sc, slot))}, nil
	}

	if slot == SlotConfirmation {
		if ex.Found && strings.EqualFold(strings.TrimSpace(ex.Value), ConfirmYes) {
			sc.confirm()
			h.log.Info("booking confirmed", zap.String("session_id", sc.SessionID()))
			return TurnResult{Response: p.Closing}, nil
		}
		return TurnResult{Response: h.ask(sc, slot)}, nil
	}

	value := strings.TrimSpace(ex.Value)
	if !ex.Found || value == "" {
		return TurnResult{Response: joinLines(p.Unclear, h.ask(sc, slot))}, nil
	}

	if err := h.apply(sc, slot, value); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return TurnResult{}, err
		}
		h.log.Info("slot value rejected",
			zap.String("session_id", sc.SessionID()),
			zap.String("slot", string(slot)),
			zap.Error(err))
		return TurnResult{Response: h.reprompt(sc, verr)}, nil
	}

	h.log.Info("slot filled",
		zap.String("session_id", sc.SessionID()),
		zap.String("slot", string(slot)))
	h.log.Debug("session summary", zap.String("summary", sc.Summarize()))

	next := sc.NextSlot()
	if next == SlotConfirmation {
		return TurnResult{Response: h.ask(sc, next)}, nil
	}
	return TurnResult{Response: joinLines(p.Accepted, h.ask(sc, next))}, nil
}

// apply validates a candidate and writes it to the context. A rejected value leaves the
// slot unset.
func (h *BookingHandler) apply(sc *SessionContext, slot Slot, value string) error {
	switch slot {
	case SlotDateTime:
		t, ok := h.parseDateTime(value)
		if !ok {
			return &ValidationError{Slot: slot, Err: validate.ErrInvalidFormat}
		}
		if !h.cfg.Hours.Contains(t) {
			return &ValidationError{Slot: slot, Err: validate.ErrOutsideBusinessHours}
		}
		sc.setDateTime(t)
	case SlotPhone:
		phone, err := validate.NormalizePhone(value)
		if err != nil {
			return &ValidationError{Slot: slot, Err: err}
		}
		sc.setPhone(phone)
	case SlotFirstName, SlotLastName, SlotReason:
		sc.setText(slot, value)
	default:
		return fmt.Errorf("agent: slot %q is not writable", slot)
	}
	return nil
}

// parseDateTime reads the extractor's value and localizes it to the clinic's zone.
func (h *BookingHandler) parseDateTime(v string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, v, h.cfg.Location); err == nil {
			return t.In(h.cfg.Location), true
		}
	}
	return time.Time{}, false
}

func (h *BookingHandler) reprompt(sc *SessionContext, verr *ValidationError) string {
	p := h.cfg.Prompts
	switch {
	case errors.Is(verr, validate.ErrOutsideBusinessHours):
		return render(p.OutsideHours, map[string]string{"hours": h.cfg.Hours.Describe()})
	case verr.Slot == SlotPhone:
		return p.InvalidPhone
	default:
		return joinLines(p.Unclear, h.ask(sc, verr.Slot))
	}
}

// ask renders the question for a slot; the confirmation pseudo-slot reads back the summary.
func (h *BookingHandler) ask(sc *SessionContext, slot Slot) string {
	p := h.cfg.Prompts
	if slot == SlotConfirmation {
		b := sc.Booking()
		vars := make(map[string]string, len(RequiredSlots))
		for _, s := range RequiredSlots {
			vars[string(s)] = b.Value(s)
		}
		return render(p.Summary, vars)
	}
	if slot == SlotPhone {
		if known := h.phoneOnFile(sc); known != "" && p.AskPhoneOnFile != "" {
			return render(p.AskPhoneOnFile, map[string]string{"last_four": validate.Phone(known).LastFour()})
		}
	}
	return p.Ask[slot]
}

func (h *BookingHandler) phoneOnFile(sc *SessionContext) string {
	if sc.CallerID == "" {
		return ""
	}
	p, err := validate.NormalizePhone(sc.CallerID)
	if err != nil {
		return ""
	}
	return string(p)
}
