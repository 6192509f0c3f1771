package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"
	"go.uber.org/zap"

	"github.com/chadiek/smileright-voice/internal/agent"
	"github.com/chadiek/smileright-voice/internal/language"
	"github.com/chadiek/smileright-voice/internal/middleware"
)

const (
	goodbyeFallback = "Sorry, we could not continue this call. Please call again. Désolé, veuillez rappeler."
	gatherPath      = "/twilio/gather"
)

// speechLocale maps the session language to a Twilio speech/voice locale. Until a language is
// detected the router listens in English.
func speechLocale(l language.Language) string {
	if l == language.French {
		return "fr-CA"
	}
	return "en-US"
}

func (s *Server) twilioVoice(c echo.Context) error {
	params, err := middleware.TwilioParams(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "Failed to parse form data")
	}
	callSID := params["CallSid"]
	from := params["From"]
	if callSID == "" {
		return c.String(http.StatusBadRequest, "CallSid missing")
	}
	s.log.Info("incoming call", zap.String("session_id", callSID))

	_, out, err := s.mgr.Open(c.Request().Context(), callSID, from)
	if errors.Is(err, agent.ErrSessionExists) {
		// Twilio retried the webhook; keep listening on the live session.
		existing, _ := s.mgr.Get(callSID)
		if existing != nil {
			return s.gatherTwiML(c, existing.Language(), "")
		}
	}
	if err != nil {
		s.log.Error("open session failed", zap.String("session_id", callSID), zap.Error(err))
		return s.hangupTwiML(c, language.Unknown, goodbyeFallback)
	}
	return s.gatherTwiML(c, out.Language, out.Text())
}

func (s *Server) twilioGather(c echo.Context) error {
	params, err := middleware.TwilioParams(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "Failed to parse form data")
	}
	callSID := params["CallSid"]
	sess, ok := s.mgr.Get(callSID)
	if !ok {
		s.log.Warn("speech for unknown session", zap.String("session_id", callSID))
		return s.hangupTwiML(c, language.Unknown, goodbyeFallback)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), turnTimeout)
	defer cancel()
	out, err := sess.Say(ctx, agent.Utterance{Text: params["SpeechResult"]})
	if err != nil {
		s.log.Error("turn failed", zap.String("session_id", callSID), zap.Error(err))
		if errors.Is(err, agent.ErrSessionClosed) {
			return s.hangupTwiML(c, sess.Language(), goodbyeFallback)
		}
		// Keep the caller on the line; the next gather retries the same slot.
		return s.gatherTwiML(c, sess.Language(), "")
	}
	if out.Ended {
		return s.hangupTwiML(c, out.Language, out.Text())
	}
	return s.gatherTwiML(c, out.Language, out.Text())
}

func (s *Server) twilioStatus(c echo.Context) error {
	params, err := middleware.TwilioParams(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "Failed to parse form data")
	}
	callSID := params["CallSid"]
	status := params["CallStatus"]
	s.log.Info("call status", zap.String("session_id", callSID), zap.String("status", status))
	switch status {
	case "completed", "busy", "failed", "no-answer", "canceled":
		s.mgr.End(callSID)
	}
	return c.NoContent(http.StatusNoContent)
}

// gatherTwiML speaks text (if any) inside a speech Gather that posts back to /twilio/gather.
func (s *Server) gatherTwiML(c echo.Context, lang language.Language, text string) error {
	locale := speechLocale(lang)
	gather := &twiml.VoiceGather{
		Input:               "speech",
		Action:              middleware.BuildURL(c.Request(), s.opts.PublicBaseURL, gatherPath),
		Method:              "POST",
		Language:            locale,
		SpeechTimeout:       "auto",
		ActionOnEmptyResult: "true",
	}
	if text != "" {
		gather.InnerElements = []twiml.Element{&twiml.VoiceSay{Message: text, Language: locale}}
	}
	return s.writeTwiML(c, []twiml.Element{gather})
}

func (s *Server) hangupTwiML(c echo.Context, lang language.Language, text string) error {
	say := &twiml.VoiceSay{Message: text, Language: speechLocale(lang)}
	return s.writeTwiML(c, []twiml.Element{say, &twiml.VoiceHangup{}})
}

func (s *Server) writeTwiML(c echo.Context, verbs []twiml.Element) error {
	response, err := twiml.Voice(verbs)
	if err != nil {
		s.log.Error("twiml render failed", zap.Error(err))
		return c.String(http.StatusInternalServerError, "twiml error")
	}
	return c.Blob(http.StatusOK, "application/xml", []byte(response))
}
