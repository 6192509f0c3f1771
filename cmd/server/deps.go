package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/chadiek/smileright-voice/internal/agent"
	"github.com/chadiek/smileright-voice/internal/config"
	"github.com/chadiek/smileright-voice/internal/extract"
	"github.com/chadiek/smileright-voice/internal/infra/storage"
	"github.com/chadiek/smileright-voice/internal/language"
	"github.com/chadiek/smileright-voice/internal/llm"
	"github.com/chadiek/smileright-voice/internal/notify"
)

type buildOptions struct {
	useLLM        bool
	notifications bool
	archive       bool
}

// buildManager assembles the session manager from the environment and conversation file.
func buildManager(cfg config.Config, conv config.Conversation, opts buildOptions, log *zap.Logger) (*agent.Manager, error) {
	var extractor agent.Extractor = extract.Literal{}
	if opts.useLLM && cfg.CerebrasKey != "" {
		client := llm.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID)
		extractor = llm.NewSlotExtractor(client, conv.Location(),
			llm.WithFallback(extract.Literal{}),
			llm.WithLogger(log.Named("extract")))
		log.Info("slot extraction via cerebras", zap.String("model", cfg.CerebrasModelID))
	}

	var notifier agent.Notifier
	if opts.notifications && cfg.SMSEnabled() {
		sms, err := notify.NewSMS(notify.Config{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioPhoneNumber,
			Template:   conv.SMSTemplate,
		}, log.Named("notify"))
		if err != nil {
			return nil, err
		}
		notifier = sms
	}

	var archiver agent.Archiver
	if opts.archive && cfg.ArchiveEnabled() {
		store, err := storage.NewSupabaseStorage(storage.SupabaseConfig{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			return nil, err
		}
		archiver = storage.NewSessionArchiver(store)
	}

	mgr, err := agent.NewManager(agent.Dependencies{
		Classifier: language.NewClassifier(conv.Keywords),
		Greeting:   conv.Greeting,
		Prompts:    conv.PromptsByLanguage(),
		Hours:      conv.Hours,
		Location:   conv.Location(),
		Extractor:  extractor,
		Notifier:   notifier,
		Archiver:   archiver,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("build session manager: %w", err)
	}
	return mgr, nil
}
