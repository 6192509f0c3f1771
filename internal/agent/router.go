package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/chadiek/smileright-voice/internal/language"
)

// Router is the first active handler. It greets bilingually, classifies the caller's first
// utterance and asks for a single handoff to the matching booking handler. Nothing ever
// hands control back to it.
type Router struct {
	classifier *language.Classifier
	greeting   string
	log        *zap.Logger
}

// NewRouter builds the router with its bilingual greeting.
func NewRouter(c *language.Classifier, greeting string, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{classifier: c, greeting: greeting, log: log}
}

func (r *Router) ID() HandlerID { return RouterID }

func (r *Router) EntryAction(*SessionContext) string { return r.greeting }

// HandleUtterance never speaks; the transfer is silent. If a previous handoff was rejected
// the language is already fixed and the same request is issued again.
func (r *Router) HandleUtterance(_ context.Context, sc *SessionContext, u Utterance) (TurnResult, error) {
	lang := sc.DetectedLanguage()
	if lang == language.Unknown {
		if strings.TrimSpace(u.Text) == "" {
			return TurnResult{}, nil
		}
		res := r.classifier.Classify(u.Text)
		if res.Tie() {
			r.log.Debug("classification tie, defaulting to english",
				zap.String("session_id", sc.SessionID()),
				zap.Int("score", res.EnglishScore))
		}
		lang = res.Language
		sc.setDetectedLanguage(lang)
		r.log.Info("language detected",
			zap.String("session_id", sc.SessionID()),
			zap.String("language", string(lang)),
			zap.Int("french", res.FrenchScore),
			zap.Int("english", res.EnglishScore))
	}
	return TurnResult{Handoff: &HandoffRequest{
		From:   RouterID,
		To:     BookingHandlerFor(lang),
		Reason: "language=" + string(lang),
	}}, nil
}

// IsComplete is true once a language is fixed and control has moved away.
func (r *Router) IsComplete(sc *SessionContext) bool {
	return sc.DetectedLanguage() != language.Unknown && sc.ActiveHandlerID() != RouterID
}
