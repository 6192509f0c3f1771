package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chadiek/smileright-voice/internal/language"
	"github.com/chadiek/smileright-voice/internal/validate"
)

// ErrSessionExists is returned when a transport opens an id that is still live.
var ErrSessionExists = errors.New("agent: session already exists")

// Dependencies are shared by every session a Manager opens.
type Dependencies struct {
	Classifier *language.Classifier
	Greeting   string
	Prompts    map[language.Language]PromptSet
	Hours      validate.Hours
	Location   *time.Location
	Extractor  Extractor
	Notifier   Notifier
	Archiver   Archiver
	Logger     *zap.Logger
}

// Manager keeps the live sessions. Handlers are stateless, so one set serves all sessions.
type Manager struct {
	deps     Dependencies
	log      *zap.Logger
	handlers []Handler

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds the router and one booking handler per language.
func NewManager(deps Dependencies) (*Manager, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Classifier == nil {
		deps.Classifier = language.NewClassifier(language.DefaultKeywords())
	}
	if deps.Greeting == "" {
		deps.Greeting = DefaultGreeting
	}
	if len(deps.Hours.Windows) == 0 {
		deps.Hours = validate.DefaultHours()
	}

	handlers := []Handler{NewRouter(deps.Classifier, deps.Greeting, log.Named("router"))}
	for _, lang := range []language.Language{language.English, language.French} {
		prompts := deps.Prompts[lang].WithDefaults(DefaultPrompts(lang))
		h, err := NewBookingHandler(BookingConfig{
			ID:        BookingHandlerFor(lang),
			Language:  lang,
			Prompts:   prompts,
			Hours:     deps.Hours,
			Location:  deps.Location,
			Extractor: deps.Extractor,
			Logger:    log.Named("booking"),
		})
		if err != nil {
			return nil, fmt.Errorf("agent: %s booking handler: %w", lang, err)
		}
		handlers = append(handlers, h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:     deps,
		log:      log,
		handlers: handlers,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}, nil
}

// Open starts a session and returns the router's greeting. An empty id gets a random one.
func (m *Manager) Open(ctx context.Context, id, callerID string) (*Session, TurnOutput, error) {
	if id == "" {
		id = uuid.NewString()
	}
	sc, err := NewSessionContext(id, RouterID, m.handlers...)
	if err != nil {
		return nil, TurnOutput{}, err
	}
	sc.CallerID = callerID

	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return nil, TurnOutput{}, ErrSessionClosed
	}
	if _, exists := m.sessions[id]; exists {
		m.mu.Unlock()
		return nil, TurnOutput{}, ErrSessionExists
	}
	s := NewSession(m.ctx, sc, SessionOptions{
		Notifier: m.deps.Notifier,
		Archiver: m.deps.Archiver,
		Logger:   m.log,
		OnEnd:    m.remove,
	})
	m.sessions[id] = s
	m.mu.Unlock()

	m.log.Info("session started", zap.String("session_id", id))
	out, err := s.Open(ctx)
	if err != nil {
		s.Close()
		return nil, TurnOutput{}, err
	}
	return s, out, nil
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.ID()]; ok && cur == s {
		delete(m.sessions, s.ID())
	}
	m.mu.Unlock()
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// End disconnects a live session. It reports whether the session was found.
func (m *Manager) End(id string) bool {
	s, ok := m.Get(id)
	if !ok {
		return false
	}
	s.Close()
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown disconnects every session and waits for them to finish.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.cancel()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()
	for _, s := range live {
		<-s.Done()
	}
}
