package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chadiek/smileright-voice/internal/language"
	"github.com/chadiek/smileright-voice/internal/validate"
)

// fakeExtractor treats the whole utterance as the candidate value, with a few verbs:
// "change <slot>", "info", "fail" and "nothing".
type fakeExtractor struct {
	mu   sync.Mutex
	reqs []ExtractRequest
}

func (f *fakeExtractor) Extract(ctx context.Context, req ExtractRequest) (Extraction, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	text := strings.TrimSpace(req.Utterance)
	switch {
	case strings.HasPrefix(text, "change "):
		return Extraction{Change: Slot(strings.TrimPrefix(text, "change "))}, nil
	case text == "info":
		return Extraction{Info: true}, nil
	case text == "fail":
		return Extraction{}, errors.New("nlu unavailable")
	case text == "nothing", text == "":
		return Extraction{}, nil
	case text == "same" && req.Known != "":
		return Extraction{Value: req.Known, Found: true}, nil
	}
	return Extraction{Value: text, Found: true}, nil
}

func (f *fakeExtractor) requests() []ExtractRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ExtractRequest(nil), f.reqs...)
}

func testBooking(t *testing.T, lang language.Language, ex Extractor) *BookingHandler {
	t.Helper()
	h, err := NewBookingHandler(BookingConfig{
		ID:        BookingHandlerFor(lang),
		Language:  lang,
		Prompts:   DefaultPrompts(lang),
		Hours:     validate.DefaultHours(),
		Location:  time.UTC,
		Extractor: ex,
	})
	require.NoError(t, err)
	return h
}

// testContext registers the router and both booking handlers with the router active.
func testContext(t *testing.T, ex Extractor) *SessionContext {
	t.Helper()
	router := NewRouter(language.NewClassifier(language.DefaultKeywords()), DefaultGreeting, nil)
	sc, err := NewSessionContext("sess-1", RouterID, router,
		testBooking(t, language.English, ex), testBooking(t, language.French, ex))
	require.NoError(t, err)
	return sc
}

// spyHandler records what the active handler was when its entry action ran.
type spyHandler struct {
	id            HandlerID
	activeAtEntry []HandlerID
	next          *HandoffRequest
}

func (s *spyHandler) ID() HandlerID { return s.id }

func (s *spyHandler) EntryAction(sc *SessionContext) string {
	s.activeAtEntry = append(s.activeAtEntry, sc.ActiveHandlerID())
	return "entry:" + string(s.id)
}

func (s *spyHandler) HandleUtterance(_ context.Context, _ *SessionContext, u Utterance) (TurnResult, error) {
	return TurnResult{Response: "echo:" + u.Text, Handoff: s.next}, nil
}

func (s *spyHandler) IsComplete(*SessionContext) bool { return false }

type recordingNotifier struct {
	mu    sync.Mutex
	calls []Booking
	err   error
}

func (n *recordingNotifier) BookingConfirmed(_ context.Context, _ string, b Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, b)
	return n.err
}

type recordingArchiver struct {
	mu   sync.Mutex
	recs []SessionRecord
}

func (a *recordingArchiver) Archive(_ context.Context, rec SessionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, rec)
	return nil
}

func (a *recordingArchiver) records() []SessionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]SessionRecord(nil), a.recs...)
}

// gate blocks each call until release is closed.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gate) wait(ctx context.Context) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type gatedArchiver struct{ *gate }

func (a gatedArchiver) Archive(ctx context.Context, _ SessionRecord) error { return a.wait(ctx) }

type gatedNotifier struct{ *gate }

func (n gatedNotifier) BookingConfirmed(ctx context.Context, _ string, _ Booking) error {
	return n.wait(ctx)
}

// monday9 is an in-hours slot on Monday 2025-06-02.
const monday9 = "2025-06-02 09:00"
