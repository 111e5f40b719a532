// Package gateway exposes the server's network surface: the device audio
// WebSocket, the conversation and device REST endpoints, the API-key
// protected management endpoints, and the operational endpoints (health,
// metrics). Each accepted audio connection runs its own session goroutine.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/soven-tech/soven-server/internal/convo"
	"github.com/soven-tech/soven-server/internal/dna"
	"github.com/soven-tech/soven-server/internal/health"
	"github.com/soven-tech/soven-server/internal/observe"
	"github.com/soven-tech/soven-server/internal/profile"
	"github.com/soven-tech/soven-server/internal/session"
	"github.com/soven-tech/soven-server/internal/voice"
	"github.com/soven-tech/soven-server/pkg/provider/llm"
	"github.com/soven-tech/soven-server/pkg/provider/stt"
	"github.com/soven-tech/soven-server/pkg/provider/tts"
)

// shutdownTimeout bounds graceful HTTP shutdown once the run context ends.
const shutdownTimeout = 10 * time.Second

// Config carries the gateway tunables.
type Config struct {
	// ListenAddr is the host:port the HTTP server binds to.
	ListenAddr string

	// APIKey protects the /api/ management endpoints. Empty disables the
	// check.
	APIKey string

	// TTSSampleRate is the PCM rate of the synthesis provider, used to build
	// WAV downloads. Default 22050.
	TTSSampleRate int

	// Session carries the per-connection session tunables.
	Session session.Config
}

// PersonalityStore persists generated personalities. Optional; without it
// personality creation still responds but nothing is saved.
type PersonalityStore interface {
	SaveTraits(ctx context.Context, deviceID string, traits map[string]float64) error
	SaveOrigin(ctx context.Context, deviceID, originStory, narrativeContext string) error
}

// Deps are the gateway's collaborators. STT, LLM, and TTS are required.
// Convo defaults to an in-memory store; Profiles defaults to a storeless
// loader; the rest are optional.
type Deps struct {
	STT         stt.Provider
	LLM         llm.Provider
	TTS         tts.Provider
	Profiles    *profile.Loader
	Convo       convo.Store
	Personality PersonalityStore
	Metrics     *observe.Metrics
	Health      *health.Handler
}

// Server is the HTTP server for all device and management traffic.
type Server struct {
	cfg      Config
	deps     Deps
	dna      *dna.Generator
	selector *voice.Selector
	srv      *http.Server

	sessMu  sync.Mutex
	sessCfg session.Config
}

// New builds the Server and its route table.
func New(cfg Config, deps Deps) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("gateway: listen address is required")
	}
	if deps.STT == nil || deps.LLM == nil || deps.TTS == nil {
		return nil, fmt.Errorf("gateway: stt, llm, and tts providers are required")
	}
	if cfg.TTSSampleRate <= 0 {
		cfg.TTSSampleRate = 22050
	}
	if deps.Profiles == nil {
		deps.Profiles = profile.NewLoader(nil)
	}
	if deps.Convo == nil {
		deps.Convo = convo.NewMemoryStore()
	}
	if deps.Health == nil {
		deps.Health = health.New()
	}
	if cfg.APIKey == "" {
		slog.Warn("no API key configured, management endpoints are unprotected")
	}

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		dna:      dna.NewGenerator(deps.LLM),
		selector: voice.NewSelector(),
		sessCfg:  cfg.Session,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/audio", s.handleAudioWS)

	mux.HandleFunc("POST /messages", s.handleAppendMessage)
	mux.HandleFunc("GET /conversations/{userID}/{deviceID}", s.handleHistory)
	mux.HandleFunc("GET /users/{userID}/devices", s.handleDevices)
	mux.HandleFunc("POST /devices", s.handleRegisterDevice)
	mux.HandleFunc("POST /devices/{deviceID}/onboarding", s.handleOnboarding)

	mux.HandleFunc("POST /api/tts/generate", s.handleTTSGenerate)
	mux.HandleFunc("GET /api/voices/list", s.handleVoicesList)
	mux.HandleFunc("POST /api/personality/create", s.handlePersonalityCreate)

	mux.HandleFunc("GET /healthz", deps.Health.Healthz)
	mux.HandleFunc("GET /api/health", deps.Health.Readyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = requireAPIKey(cfg.APIKey)(mux)
	if deps.Metrics != nil {
		handler = observe.Middleware(deps.Metrics)(handler)
	}

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the composed route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// SetSessionConfig replaces the session tunables. Sessions opened after the
// call pick up the new values; running sessions keep what they started with.
func (s *Server) SetSessionConfig(cfg session.Config) {
	s.sessMu.Lock()
	s.sessCfg = cfg
	s.sessMu.Unlock()
}

func (s *Server) sessionConfig() session.Config {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	return s.sessCfg
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("gateway listening", "addr", s.cfg.ListenAddr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("gateway: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway: shutdown: %w", err)
		}
		slog.Info("gateway stopped")
		return nil
	})

	return g.Wait()
}
