package agent

import (
	"fmt"
	"strings"

	"github.com/chadiek/smileright-voice/internal/language"
)

// ConfirmYes is the normalized value an extractor returns when the caller accepts the summary.
const ConfirmYes = "yes"

// DefaultGreeting is the router's bilingual entry prompt.
const DefaultGreeting = "Hi Bonjour, welcome to SmileRight Dental Clinic, how can I help you today?"

// PromptSet is the text one booking role speaks. Placeholders in braces are filled from
// the session: {date_time} {first_name} {last_name} {phone} {reason} {last_four} {hours}.
type PromptSet struct {
	Entry          string          `yaml:"entry"`
	Ask            map[Slot]string `yaml:"ask"`
	AskPhoneOnFile string          `yaml:"ask_phone_on_file"`
	Accepted       string          `yaml:"accepted"`
	Unclear        string          `yaml:"unclear"`
	OutsideHours   string          `yaml:"outside_hours"`
	InvalidPhone   string          `yaml:"invalid_phone"`
	Corrected      string          `yaml:"corrected"`
	Summary        string          `yaml:"summary"`
	Closing        string          `yaml:"closing"`
	ClinicInfo     string          `yaml:"clinic_info"`
}

// DefaultPrompts returns the built-in prompt set for a language.
func DefaultPrompts(lang language.Language) PromptSet {
	if lang == language.French {
		return PromptSet{
			Entry: "Parfait! Je vais vous aider à prendre rendez-vous en français. Commençons par la date et l'heure souhaitées.",
			Ask: map[Slot]string{
				SlotDateTime:  "Quelle date et quelle heure vous conviendraient?",
				SlotFirstName: "Quel est votre prénom?",
				SlotLastName:  "Quel est votre nom de famille? Pouvez-vous l'épeler lettre par lettre?",
				SlotPhone:     "Quel est votre numéro de téléphone, chiffre par chiffre?",
				SlotReason:    "Quelle est la raison de votre visite?",
			},
			AskPhoneOnFile: "J'ai un numéro qui se termine par {last_four}. Est-ce le bon? Sinon, donnez-moi votre numéro chiffre par chiffre.",
			Accepted:       "Merci.",
			Unclear:        "Désolé, je n'ai pas bien compris.",
			OutsideHours:   "Désolé, ce moment est en dehors de nos heures d'ouverture, du lundi au vendredi, {hours}. Quel autre moment vous conviendrait?",
			InvalidPhone:   "Je n'ai pas pu lire ce numéro. Pouvez-vous le dire chiffre par chiffre, au format 1, 514, 555, 1234?",
			Corrected:      "Pas de problème.",
			Summary:        "Je récapitule: rendez-vous le {date_time}, au nom de {first_name} {last_name}, téléphone {phone}, pour {reason}. Est-ce que tout est correct?",
			Closing:        "Votre rendez-vous est confirmé. Au plaisir de vous voir!",
			ClinicInfo:     "La clinique dentaire SmileRight est située au 5561 rue St-Denis, à Montréal. Nous sommes ouverts du lundi au vendredi, de 8h à 12h et de 13h à 18h.",
		}
	}
	return PromptSet{
		Entry: "Perfect! I'll help you book your appointment in English. Let's start with your preferred appointment date and time.",
		Ask: map[Slot]string{
			SlotDateTime:  "What date and time would you like for your appointment?",
			SlotFirstName: "What is your first name?",
			SlotLastName:  "What is your last name? Could you spell it letter by letter?",
			SlotPhone:     "What is your phone number, digit by digit?",
			SlotReason:    "What is the reason for your visit?",
		},
		AskPhoneOnFile: "I have your phone number ending in {last_four}. Is this correct? If not, please give me your number digit by digit.",
		Accepted:       "Thank you.",
		Unclear:        "Sorry, I didn't catch that.",
		OutsideHours:   "Sorry, that time is outside our opening hours, Monday to Friday, {hours}. What other time would suit you?",
		InvalidPhone:   "I couldn't read that number. Could you say it digit by digit, in the format 1, 514, 555, 1234?",
		Corrected:      "No problem.",
		Summary:        "Let me confirm: your appointment is on {date_time}, for {first_name} {last_name}, phone {phone}, for {reason}. Is everything correct?",
		Closing:        "Your appointment is booked. We look forward to seeing you!",
		ClinicInfo:     "SmileRight Dental Clinic is located at 5561 St-Denis Street, Montreal. We are open Monday to Friday from 8:00 AM to 12:00 PM and 1:00 PM to 6:00 PM.",
	}
}

// WithDefaults fills every empty field of p from def.
func (p PromptSet) WithDefaults(def PromptSet) PromptSet {
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = src
		}
	}
	fill(&p.Entry, def.Entry)
	fill(&p.AskPhoneOnFile, def.AskPhoneOnFile)
	fill(&p.Accepted, def.Accepted)
	fill(&p.Unclear, def.Unclear)
	fill(&p.OutsideHours, def.OutsideHours)
	fill(&p.InvalidPhone, def.InvalidPhone)
	fill(&p.Corrected, def.Corrected)
	fill(&p.Summary, def.Summary)
	fill(&p.Closing, def.Closing)
	fill(&p.ClinicInfo, def.ClinicInfo)
	ask := make(map[Slot]string, len(RequiredSlots))
	for k, v := range def.Ask {
		ask[k] = v
	}
	for k, v := range p.Ask {
		if strings.TrimSpace(v) != "" {
			ask[k] = v
		}
	}
	p.Ask = ask
	return p
}

// Validate checks that every slot has a question and the fixed lines are present.
func (p PromptSet) Validate() error {
	for _, s := range RequiredSlots {
		if strings.TrimSpace(p.Ask[s]) == "" {
			return fmt.Errorf("agent: prompts: no question for slot %q", s)
		}
	}
	if p.Entry == "" || p.Summary == "" || p.Closing == "" {
		return fmt.Errorf("agent: prompts: entry, summary and closing are required")
	}
	return nil
}

func render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func joinLines(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
