package agent

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrStaleRequest means the requester was not the active handler when the handoff was applied.
	ErrStaleRequest = errors.New("agent: stale handoff request")
	// ErrUnknownHandler means the target id is not registered in the session.
	ErrUnknownHandler = errors.New("agent: unknown handler")
)

// HandoffError describes a rejected transfer. It matches ErrStaleRequest or ErrUnknownHandler
// with errors.Is.
type HandoffError struct {
	Kind error
	From HandlerID
	To   HandlerID
}

func (e *HandoffError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", e.Kind, e.From, e.To)
}

func (e *HandoffError) Unwrap() error { return e.Kind }

// Controller performs handoffs on one SessionContext. A handoff is a pointer swap plus a log
// append; the controller never calls into any handler. Entry actions are run afterwards by
// the scheduler, at the turn boundary.
type Controller struct {
	sc  *SessionContext
	log *zap.Logger
}

// NewController binds a controller to a session context.
func NewController(sc *SessionContext, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{sc: sc, log: log}
}

// RequestHandoff transfers control from `from` to `to`. On error the active handler is
// left unchanged and the request is discarded.
func (c *Controller) RequestHandoff(from, to HandlerID, reason string) (TransitionRecord, error) {
	if from != c.sc.active {
		err := &HandoffError{Kind: ErrStaleRequest, From: from, To: to}
		c.log.Warn("handoff rejected",
			zap.String("session_id", c.sc.sessionID),
			zap.String("active", string(c.sc.active)),
			zap.Error(err))
		return TransitionRecord{}, err
	}
	if _, ok := c.sc.handlers[to]; !ok {
		err := &HandoffError{Kind: ErrUnknownHandler, From: from, To: to}
		c.log.Warn("handoff rejected",
			zap.String("session_id", c.sc.sessionID),
			zap.Error(err))
		return TransitionRecord{}, err
	}

	rec := TransitionRecord{From: from, To: to, Reason: reason, Seq: uint64(len(c.sc.transitions)) + 1}
	c.sc.previous = from
	c.sc.active = to
	c.sc.transitions = append(c.sc.transitions, rec)

	c.log.Info("handoff",
		zap.String("session_id", c.sc.sessionID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
		zap.Uint64("seq", rec.Seq))
	return rec, nil
}
