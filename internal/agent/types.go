package agent

import (
	"context"

	"github.com/chadiek/smileright-voice/internal/language"
)

// HandlerID names a conversational role registered in a session.
type HandlerID string

const (
	RouterID         HandlerID = "router"
	EnglishBookingID HandlerID = "english_booking"
	FrenchBookingID  HandlerID = "french_booking"
)

// BookingHandlerFor returns the booking role id serving the given language.
func BookingHandlerFor(lang language.Language) HandlerID {
	if lang == language.French {
		return FrenchBookingID
	}
	return EnglishBookingID
}

// Utterance is one finalized unit of caller speech.
// Seq must increase across a session; transports that have no numbering leave it zero.
type Utterance struct {
	Seq  uint64
	Text string
}

// HandoffRequest asks the scheduler to transfer control after the current turn.
type HandoffRequest struct {
	From   HandlerID
	To     HandlerID
	Reason string
}

// TurnResult is what a handler produced for one utterance.
type TurnResult struct {
	Response string
	Handoff  *HandoffRequest
}

// Handler is the capability set every conversational role implements.
// Handlers keep no state of their own; everything lives in the SessionContext.
type Handler interface {
	ID() HandlerID
	// EntryAction returns the fixed text spoken when the handler becomes active.
	EntryAction(sc *SessionContext) string
	HandleUtterance(ctx context.Context, sc *SessionContext, u Utterance) (TurnResult, error)
	IsComplete(sc *SessionContext) bool
}

// ExtractRequest is handed to the value-extraction collaborator on every booking turn.
type ExtractRequest struct {
	Utterance string
	Slot      Slot
	Language  language.Language
	// Known is a value already on file for the slot (the caller ID for the phone slot).
	Known string
}

// Extraction is the collaborator's answer. Found is false when the utterance carried no
// value for the requested slot.
type Extraction struct {
	Value string
	Found bool
	// Change names a previously collected slot the caller asked to correct.
	Change Slot
	// Info is set when the caller asked for clinic information instead of answering.
	Info bool
}

// Extractor pulls a candidate slot value out of free text (an NLU or LLM service).
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (Extraction, error)
}

// Notifier is told about a confirmed booking (e.g. a confirmation SMS).
type Notifier interface {
	BookingConfirmed(ctx context.Context, sessionID string, b Booking) error
}

// Archiver receives the final state of a session when it ends.
type Archiver interface {
	Archive(ctx context.Context, rec SessionRecord) error
}
