// Package notify tells the caller about a confirmed booking after the call.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"github.com/chadiek/smileright-voice/internal/agent"
)

// DefaultTemplate is the confirmation text; {first_name} and {date_time} are filled in.
const DefaultTemplate = "SmileRight Dental: {first_name}, your appointment on {date_time} is confirmed. / Votre rendez-vous est confirmé."

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type Config struct {
	AccountSID string
	AuthToken  string
	From       string
	Template   string
}

// SMS sends the booking confirmation through the Twilio Messages API.
type SMS struct {
	api      messageCreator
	from     string
	template string
	log      *zap.Logger
}

func NewSMS(cfg Config, log *zap.Logger) (*SMS, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil, fmt.Errorf("notify: TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE_NUMBER are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newSMS(client.Api, cfg, log), nil
}

func newSMS(api messageCreator, cfg Config, log *zap.Logger) *SMS {
	if log == nil {
		log = zap.NewNop()
	}
	tmpl := cfg.Template
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	return &SMS{api: api, from: cfg.From, template: tmpl, log: log}
}

var _ agent.Notifier = (*SMS)(nil)

func (s *SMS) BookingConfirmed(ctx context.Context, sessionID string, b agent.Booking) error {
	if b.Phone == "" {
		return fmt.Errorf("notify: session %s has no phone number", sessionID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	body := strings.NewReplacer(
		"{first_name}", b.FirstName,
		"{date_time}", b.Value(agent.SlotDateTime),
	).Replace(s.template)

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(b.Phone.E164())
	params.SetFrom(s.from)
	params.SetBody(body)

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("notify: send confirmation: %w", err)
	}
	sid := ""
	if msg != nil && msg.Sid != nil {
		sid = *msg.Sid
	}
	s.log.Info("booking confirmation sent",
		zap.String("session_id", sessionID),
		zap.String("message_sid", sid),
		zap.String("to_last_four", b.Phone.LastFour()))
	return nil
}
