package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chadiek/smileright-voice/internal/language"
)

const (
	EndCompleted    = "completed"
	EndDisconnected = "disconnected"

	// Bounds each of the notification and the archive upload after a session ends.
	finishTimeout = 10 * time.Second
)

// Session is the single owner of one conversation. All access to its SessionContext runs on
// the session goroutine, so the context needs no locks. Different sessions run in parallel.
type Session struct {
	id       string
	sched    *Scheduler
	notifier Notifier
	archiver Archiver
	log      *zap.Logger
	onEnd    func(*Session)

	ops      chan func(context.Context)
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	// final is written by the session goroutine before done is closed.
	final SessionRecord
	// lang mirrors the detected language so readers never queue behind a turn.
	lang atomic.Value
}

// SessionOptions are the per-session collaborators.
type SessionOptions struct {
	// Notifier is told about a completed booking after the closing turn has been returned.
	Notifier Notifier
	Archiver Archiver
	Logger   *zap.Logger
	// OnEnd runs on the session goroutine after the session has been archived.
	OnEnd func(*Session)
}

// NewSession wraps a session context in its own goroutine. The goroutine stops when the
// session completes, when Close is called, or when ctx is cancelled.
func NewSession(ctx context.Context, sc *SessionContext, opts SessionOptions) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:       sc.SessionID(),
		sched:    NewScheduler(sc, log),
		notifier: opts.Notifier,
		archiver: opts.Archiver,
		log:      log,
		onEnd:    opts.OnEnd,
		ops:      make(chan func(context.Context)),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.lang.Store(sc.DetectedLanguage())
	go s.run(runCtx)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Done is closed once the session has ended and been archived.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()
	for {
		select {
		case <-ctx.Done():
			s.finish(EndDisconnected)
			return
		case op := <-s.ops:
			op(ctx)
			if s.sched.Ended() {
				s.finish(EndCompleted)
				return
			}
		}
	}
}

func (s *Session) finish(reason string) {
	sc := s.sched.Context()
	s.final = sc.Record(reason, time.Now())
	s.log.Info("session ended",
		zap.String("session_id", s.id),
		zap.String("reason", reason),
		zap.Int("missing", len(s.final.Missing)),
		zap.Int("transitions", len(s.final.Transitions)))
	if reason == EndCompleted && s.notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
		if err := s.notifier.BookingConfirmed(ctx, s.id, sc.Booking()); err != nil {
			s.log.Warn("booking notification failed", zap.String("session_id", s.id), zap.Error(err))
		}
		cancel()
	}
	if s.archiver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
		if err := s.archiver.Archive(ctx, s.final); err != nil {
			s.log.Warn("session archive failed", zap.String("session_id", s.id), zap.Error(err))
		}
		cancel()
	}
	if s.onEnd != nil {
		s.onEnd(s)
	}
}

// do runs fn on the session goroutine and waits for it.
func (s *Session) do(ctx context.Context, fn func(runCtx context.Context)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	finished := make(chan struct{})
	op := func(runCtx context.Context) {
		defer close(finished)
		fn(runCtx)
		s.lang.Store(s.sched.Context().DetectedLanguage())
	}
	select {
	case s.ops <- op:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// Open runs the initial handler's entry action (the session start signal).
func (s *Session) Open(ctx context.Context) (TurnOutput, error) {
	var out TurnOutput
	err := s.do(ctx, func(context.Context) { out = s.sched.Start() })
	return out, err
}

// Say delivers one utterance and returns what the session answered.
func (s *Session) Say(ctx context.Context, u Utterance) (TurnOutput, error) {
	var (
		out     TurnOutput
		turnErr error
	)
	if err := s.do(ctx, func(context.Context) { out, turnErr = s.sched.Turn(ctx, u) }); err != nil {
		return TurnOutput{}, err
	}
	return out, turnErr
}

// Language returns the language detected as of the last completed turn. It does not wait for
// a turn in flight or for the end-of-session archive.
func (s *Session) Language() language.Language {
	return s.lang.Load().(language.Language)
}

// Transitions returns the ordered handoff log.
func (s *Session) Transitions() []TransitionRecord {
	var recs []TransitionRecord
	if err := s.do(context.Background(), func(context.Context) { recs = s.sched.Context().Transitions() }); err != nil {
		return append([]TransitionRecord(nil), s.final.Transitions...)
	}
	return recs
}

// Record returns the final record once the session has ended.
func (s *Session) Record() (SessionRecord, bool) {
	select {
	case <-s.done:
		return s.final, true
	default:
		return SessionRecord{}, false
	}
}

// Close tears the session down as a disconnect and waits for the goroutine to exit.
// Slots already written are kept in the archived record.
func (s *Session) Close() {
	s.stopOnce.Do(s.cancel)
	<-s.done
}
