package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/chadiek/smileright-voice/internal/agent"
	"github.com/chadiek/smileright-voice/internal/language"
	"github.com/chadiek/smileright-voice/internal/validate"
)

//go:embed defaults.yaml
var defaultConversation []byte

// Conversation is the clinic-specific part of the dialogue: hours, indicator words and text.
type Conversation struct {
	Timezone    string                     `yaml:"timezone"`
	Greeting    string                     `yaml:"greeting"`
	Hours       validate.Hours             `yaml:"hours"`
	Keywords    language.Keywords          `yaml:"keywords"`
	SMSTemplate string                     `yaml:"sms_template"`
	Prompts     map[string]agent.PromptSet `yaml:"prompts"`

	location *time.Location
	prompts  map[language.Language]agent.PromptSet
}

// LoadConversation returns the embedded defaults overlaid with the file at path, if any.
func LoadConversation(path string) (Conversation, error) {
	var c Conversation
	if err := decodeStrict(defaultConversation, &c); err != nil {
		return Conversation{}, fmt.Errorf("config: embedded conversation: %w", err)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Conversation{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decodeStrict(b, &c); err != nil {
			return Conversation{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := c.resolve(); err != nil {
		return Conversation{}, err
	}
	return c, nil
}

func decodeStrict(b []byte, out *Conversation) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	return dec.Decode(out)
}

func (c *Conversation) resolve() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	c.location = loc
	if err := c.Hours.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(c.Keywords.French) == 0 || len(c.Keywords.English) == 0 {
		return fmt.Errorf("config: keywords for both languages are required")
	}
	c.prompts = make(map[language.Language]agent.PromptSet, len(c.Prompts))
	for name, p := range c.Prompts {
		lang, ok := language.Parse(name)
		if !ok {
			return fmt.Errorf("config: prompts for unknown language %q", name)
		}
		for slot := range p.Ask {
			if _, ok := agent.ParseSlot(string(slot)); !ok {
				return fmt.Errorf("config: prompts.%s: unknown slot %q", name, slot)
			}
		}
		c.prompts[lang] = p
	}
	return nil
}

// Location is the clinic's time zone; appointment times are interpreted in it.
func (c Conversation) Location() *time.Location { return c.location }

// PromptsByLanguage returns the prompt overrides keyed by language.
func (c Conversation) PromptsByLanguage() map[language.Language]agent.PromptSet { return c.prompts }
