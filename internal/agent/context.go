package agent

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chadiek/smileright-voice/internal/language"
	"github.com/chadiek/smileright-voice/internal/validate"
)

// Slot is one required piece of booking data.
type Slot string

const (
	SlotDateTime  Slot = "date_time"
	SlotFirstName Slot = "first_name"
	SlotLastName  Slot = "last_name"
	SlotPhone     Slot = "phone"
	SlotReason    Slot = "reason"
	// SlotConfirmation is the pseudo-slot requested once every required slot is filled.
	SlotConfirmation Slot = "confirmation"
)

// RequiredSlots is the fixed order in which a booking is collected.
var RequiredSlots = []Slot{SlotDateTime, SlotFirstName, SlotLastName, SlotPhone, SlotReason}

// ParseSlot maps a slot name to a required Slot.
func ParseSlot(s string) (Slot, bool) {
	for _, slot := range RequiredSlots {
		if string(slot) == s {
			return slot, true
		}
	}
	return "", false
}

// Booking holds the collected slot values. Zero values mean unset.
type Booking struct {
	DateTime  time.Time
	FirstName string
	LastName  string
	Phone     validate.Phone
	Reason    string
	Confirmed bool
}

// Has reports whether the slot has a value.
func (b Booking) Has(s Slot) bool {
	switch s {
	case SlotDateTime:
		return !b.DateTime.IsZero()
	case SlotFirstName:
		return b.FirstName != ""
	case SlotLastName:
		return b.LastName != ""
	case SlotPhone:
		return b.Phone != ""
	case SlotReason:
		return b.Reason != ""
	case SlotConfirmation:
		return b.Confirmed
	}
	return false
}

// Value renders the slot for prompts and summaries; unset slots render empty.
func (b Booking) Value(s Slot) string {
	switch s {
	case SlotDateTime:
		if b.DateTime.IsZero() {
			return ""
		}
		return b.DateTime.Format("Monday, January 2, 2006 at 15:04")
	case SlotFirstName:
		return b.FirstName
	case SlotLastName:
		return b.LastName
	case SlotPhone:
		return string(b.Phone)
	case SlotReason:
		return b.Reason
	}
	return ""
}

func (b *Booking) clear(s Slot) {
	switch s {
	case SlotDateTime:
		b.DateTime = time.Time{}
	case SlotFirstName:
		b.FirstName = ""
	case SlotLastName:
		b.LastName = ""
	case SlotPhone:
		b.Phone = ""
	case SlotReason:
		b.Reason = ""
	}
	b.Confirmed = false
}

// TransitionRecord is one entry of the append-only handoff log.
type TransitionRecord struct {
	From   HandlerID `yaml:"from" json:"from"`
	To     HandlerID `yaml:"to" json:"to"`
	Reason string    `yaml:"reason" json:"reason"`
	Seq    uint64    `yaml:"seq" json:"seq"`
}

// SessionContext is the single mutable record shared by every handler of one conversation.
// It is owned by exactly one goroutine (the session's scheduler) and is not locked.
type SessionContext struct {
	sessionID string
	// CallerID is the number the transport saw the call come from, if any.
	CallerID string

	booking  Booking
	detected language.Language

	active   HandlerID
	previous HandlerID
	handlers map[HandlerID]Handler

	transitions []TransitionRecord
	lastSeq     uint64
}

// NewSessionContext registers the handlers and makes initial the active one.
func NewSessionContext(sessionID string, initial HandlerID, handlers ...Handler) (*SessionContext, error) {
	sc := &SessionContext{sessionID: sessionID, handlers: make(map[HandlerID]Handler, len(handlers))}
	for _, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("agent: nil handler")
		}
		if _, dup := sc.handlers[h.ID()]; dup {
			return nil, fmt.Errorf("agent: duplicate handler id %q", h.ID())
		}
		sc.handlers[h.ID()] = h
	}
	if _, ok := sc.handlers[initial]; !ok {
		return nil, fmt.Errorf("agent: initial handler %q not registered", initial)
	}
	sc.active = initial
	return sc, nil
}

func (sc *SessionContext) SessionID() string                   { return sc.sessionID }
func (sc *SessionContext) ActiveHandlerID() HandlerID          { return sc.active }
func (sc *SessionContext) PreviousHandlerID() HandlerID        { return sc.previous }
func (sc *SessionContext) DetectedLanguage() language.Language { return sc.detected }

// Booking returns a copy of the collected values.
func (sc *SessionContext) Booking() Booking { return sc.booking }

// Handler looks up a registered handler.
func (sc *SessionContext) Handler(id HandlerID) (Handler, bool) {
	h, ok := sc.handlers[id]
	return h, ok
}

// Transitions returns a copy of the handoff log in order.
func (sc *SessionContext) Transitions() []TransitionRecord {
	out := make([]TransitionRecord, len(sc.transitions))
	copy(out, sc.transitions)
	return out
}

// Missing lists the required slots still unset, in collection order.
func (sc *SessionContext) Missing() []Slot {
	var out []Slot
	for _, s := range RequiredSlots {
		if !sc.booking.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

// NextSlot is the first unset required slot, or SlotConfirmation when all are set.
func (sc *SessionContext) NextSlot() Slot {
	for _, s := range RequiredSlots {
		if !sc.booking.Has(s) {
			return s
		}
	}
	return SlotConfirmation
}

func (sc *SessionContext) setDetectedLanguage(l language.Language) { sc.detected = l }

func (sc *SessionContext) clearSlot(s Slot) { sc.booking.clear(s) }

func (sc *SessionContext) setDateTime(t time.Time) { sc.booking.DateTime = t }

func (sc *SessionContext) setPhone(p validate.Phone) { sc.booking.Phone = p }

// setText writes one of the free-text slots.
func (sc *SessionContext) setText(s Slot, v string) {
	switch s {
	case SlotFirstName:
		sc.booking.FirstName = v
	case SlotLastName:
		sc.booking.LastName = v
	case SlotReason:
		sc.booking.Reason = v
	}
}

func (sc *SessionContext) confirm() { sc.booking.Confirmed = true }

type summaryDoc struct {
	FirstName        string `yaml:"customer_first_name"`
	LastName         string `yaml:"customer_last_name"`
	Phone            string `yaml:"customer_phone"`
	DateTime         string `yaml:"booking_date_time"`
	Reason           string `yaml:"booking_reason"`
	DetectedLanguage string `yaml:"detected_language"`
	CurrentAgent     string `yaml:"current_agent"`
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// Summarize dumps the collected values as YAML for logs.
func (sc *SessionContext) Summarize() string {
	doc := summaryDoc{
		FirstName:        orUnknown(sc.booking.FirstName),
		LastName:         orUnknown(sc.booking.LastName),
		Phone:            orUnknown(string(sc.booking.Phone)),
		DateTime:         orUnknown(sc.booking.Value(SlotDateTime)),
		Reason:           orUnknown(sc.booking.Reason),
		DetectedLanguage: orUnknown(string(sc.detected)),
		CurrentAgent:     orUnknown(string(sc.active)),
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Sprintf("summary unavailable: %v", err)
	}
	return string(b)
}

// SessionRecord is the archived form of an ended session.
type SessionRecord struct {
	SessionID     string             `yaml:"session_id" json:"session_id"`
	EndedAt       time.Time          `yaml:"ended_at" json:"ended_at"`
	EndReason     string             `yaml:"end_reason" json:"end_reason"`
	Language      language.Language  `yaml:"language" json:"language"`
	ActiveHandler HandlerID          `yaml:"active_handler" json:"active_handler"`
	Booking       map[Slot]string    `yaml:"booking" json:"booking"`
	Confirmed     bool               `yaml:"confirmed" json:"confirmed"`
	Missing       []Slot             `yaml:"missing,omitempty" json:"missing,omitempty"`
	Transitions   []TransitionRecord `yaml:"transitions" json:"transitions"`
}

// Record captures the current state for archiving.
func (sc *SessionContext) Record(reason string, at time.Time) SessionRecord {
	values := make(map[Slot]string, len(RequiredSlots))
	for _, s := range RequiredSlots {
		if sc.booking.Has(s) {
			values[s] = sc.booking.Value(s)
		}
	}
	if sc.booking.Has(SlotDateTime) {
		values[SlotDateTime] = sc.booking.DateTime.Format(time.RFC3339)
	}
	return SessionRecord{
		SessionID:     sc.sessionID,
		EndedAt:       at,
		EndReason:     reason,
		Language:      sc.detected,
		ActiveHandler: sc.active,
		Booking:       values,
		Confirmed:     sc.booking.Confirmed,
		Missing:       sc.Missing(),
		Transitions:   sc.Transitions(),
	}
}
