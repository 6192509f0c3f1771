package agent

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/chadiek/smileright-voice/internal/language"
)

// ErrSessionClosed is returned for turns delivered after the session ended.
var ErrSessionClosed = errors.New("agent: session closed")

// TurnOutput is everything one turn produced, in speaking order.
type TurnOutput struct {
	Responses  []string
	Transition *TransitionRecord
	// Dropped is set when the utterance was a duplicate or arrived out of order.
	Dropped bool
	// Ended is set when the active handler completed and the session is over.
	Ended bool
	// Language is the detected language as of the end of the turn.
	Language language.Language
}

// Text joins the responses for transports that speak one block per turn.
func (o TurnOutput) Text() string { return joinLines(o.Responses...) }

// Scheduler drives turns for one session. It is the only writer of the active handler and
// only changes it between turns. Not safe for concurrent use; Session gives it one owner.
type Scheduler struct {
	sc   *SessionContext
	ctrl *Controller
	log  *zap.Logger

	started bool
	ended   bool
}

// NewScheduler binds a scheduler to a session context.
func NewScheduler(sc *SessionContext, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{sc: sc, ctrl: NewController(sc, log), log: log}
}

// Context exposes the session context to the owning goroutine.
func (s *Scheduler) Context() *SessionContext { return s.sc }

// Ended reports whether the session has completed.
func (s *Scheduler) Ended() bool { return s.ended }

// Start runs the initial handler's entry action. Calling it again is a no-op.
func (s *Scheduler) Start() TurnOutput {
	if s.started {
		return TurnOutput{}
	}
	s.started = true
	h := s.sc.handlers[s.sc.active]
	return TurnOutput{Responses: nonEmpty(h.EntryAction(s.sc)), Language: s.sc.detected}
}

// Turn delivers one utterance to the active handler, applies a requested handoff, runs the
// new handler's entry action and reports completion.
func (s *Scheduler) Turn(ctx context.Context, u Utterance) (TurnOutput, error) {
	if s.ended {
		return TurnOutput{}, ErrSessionClosed
	}
	out := s.Start()

	if u.Seq == 0 {
		u.Seq = s.sc.lastSeq + 1
	}
	if u.Seq <= s.sc.lastSeq {
		s.log.Info("dropping stale utterance",
			zap.String("session_id", s.sc.sessionID),
			zap.Uint64("seq", u.Seq),
			zap.Uint64("last_seq", s.sc.lastSeq))
		out.Dropped = true
		out.Language = s.sc.detected
		return out, nil
	}
	s.sc.lastSeq = u.Seq

	active := s.sc.active
	h := s.sc.handlers[active]
	res, err := h.HandleUtterance(ctx, s.sc, u)
	out.Language = s.sc.detected
	if err != nil {
		return out, err
	}
	out.Responses = append(out.Responses, nonEmpty(res.Response)...)

	if req := res.Handoff; req != nil {
		rec, err := s.ctrl.RequestHandoff(req.From, req.To, req.Reason)
		if err == nil {
			out.Transition = &rec
			// The pointer swap is done; only now may the new handler speak.
			next := s.sc.handlers[s.sc.active]
			out.Responses = append(out.Responses, nonEmpty(next.EntryAction(s.sc))...)
		}
	}

	if current := s.sc.handlers[s.sc.active]; current.IsComplete(s.sc) {
		s.ended = true
		out.Ended = true
		s.log.Info("session complete",
			zap.String("session_id", s.sc.sessionID),
			zap.String("handler", string(s.sc.active)))
	}
	return out, nil
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
