package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/chadiek/smileright-voice/internal/agent"
	"github.com/chadiek/smileright-voice/internal/middleware"
)

// Options wires the transports to the session manager.
type Options struct {
	Manager *agent.Manager
	Logger  *zap.Logger

	TwilioAuthToken string
	PublicBaseURL   string
	// SkipTwilioSignature disables webhook signature checks (local tunnels, tests).
	SkipTwilioSignature bool

	// AuthPassword protects /ws and /sessions when set.
	AuthPassword string
}

// Server bundles HTTP router and dependencies.
type Server struct {
	Router *echo.Echo

	mgr  *agent.Manager
	log  *zap.Logger
	opts Options
}

// New constructs the HTTP server with routes.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			log.Info("request", fields...)
			return nil
		},
	}))

	s := &Server{Router: e, mgr: opts.Manager, log: log, opts: opts}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	e.GET("/sessions/:id/transitions", s.transitions, s.requirePassword)
	e.GET("/ws", s.serveWebSocket, s.requirePassword)

	var twilioMW []echo.MiddlewareFunc
	if !opts.SkipTwilioSignature {
		token := opts.TwilioAuthToken
		twilioMW = append(twilioMW, middleware.TwilioAuth(func() string { return token }, opts.PublicBaseURL))
	}
	tw := e.Group("/twilio", twilioMW...)
	tw.POST("/voice", s.twilioVoice)
	tw.POST("/gather", s.twilioGather)
	tw.POST("/status", s.twilioStatus)

	return s
}

func (s *Server) requirePassword(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !authOK(c.Request(), s.opts.AuthPassword) {
			return c.String(http.StatusUnauthorized, "unauthorized")
		}
		return next(c)
	}
}

// authOK accepts ?password=, "Authorization: Bearer" or X-Auth-Token. An empty expected
// password disables the check.
func authOK(r *http.Request, expected string) bool {
	if expected == "" {
		return true
	}
	if r == nil {
		return false
	}
	if q := r.URL.Query().Get("password"); q != "" && q == expected {
		return true
	}
	ah := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		if strings.TrimSpace(ah[len("Bearer "):]) == expected {
			return true
		}
	}
	if x := r.Header.Get("X-Auth-Token"); x != "" && x == expected {
		return true
	}
	return false
}

type transitionsResponse struct {
	SessionID   string                   `json:"session_id"`
	Language    string                   `json:"language"`
	Transitions []agent.TransitionRecord `json:"transitions"`
}

func (s *Server) transitions(c echo.Context) error {
	id := c.Param("id")
	sess, ok := s.mgr.Get(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, transitionsResponse{
		SessionID:   id,
		Language:    string(sess.Language()),
		Transitions: sess.Transitions(),
	})
}

// turnTimeout bounds one utterance round trip, extraction included.
const turnTimeout = 12 * time.Second
