// Package session implements the per-connection state machine for device
// conversational audio. One Session owns one device WebSocket: it accumulates
// binary PCM fragments into a Buffer, and on the AUDIO_END token runs the
// finalize pipeline (transcribe, wake-word gate, generate, synthesize, stream
// back in paced chunks) before returning to listening.
//
// Each session runs on its own goroutine and processes inbound messages
// strictly in arrival order; a new utterance is never started while finalize
// is in flight. Fragments that arrive mid-finalize queue on the transport and
// are picked up for the next utterance.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/websocket"

	devcmd "github.com/soven-tech/soven-server/internal/command"
	"github.com/soven-tech/soven-server/internal/convo"
	"github.com/soven-tech/soven-server/internal/observe"
	"github.com/soven-tech/soven-server/internal/profile"
	"github.com/soven-tech/soven-server/internal/wake"
	"github.com/soven-tech/soven-server/pkg/audio"
	"github.com/soven-tech/soven-server/pkg/provider/llm"
	"github.com/soven-tech/soven-server/pkg/provider/stt"
	"github.com/soven-tech/soven-server/pkg/provider/tts"
)

// AudioEndToken is the literal text frame a device sends to finalize the
// current utterance.
const AudioEndToken = "AUDIO_END"

// FallbackReply is spoken when response generation fails. A degraded but
// always-present reply is preferred to silence.
const FallbackReply = "Sorry, I'm having trouble thinking right now."

// minTranscriptChars is the minimum trimmed transcript length treated as
// speech; anything shorter is handled like an absent wake word.
const minTranscriptChars = 3

// Conn is the transport a Session drives. *websocket.Conn satisfies it.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// Config carries the per-session tunables.
type Config struct {
	// SampleRate of inbound and outbound PCM in Hz. Default 16000.
	SampleRate int

	// ChunkSize is the outbound audio chunk size in bytes. Default 1024.
	ChunkSize int

	// ChunkInterval is the pacing delay between outbound chunks. Default 10 ms.
	ChunkInterval time.Duration

	// Language is the STT language hint. Default "en".
	Language string

	// LLMTimeout bounds each generation call. Default 30 s.
	LLMTimeout time.Duration

	// Phonetic enables phonetic wake-word matching.
	Phonetic bool
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1024
	}
	if c.ChunkInterval <= 0 {
		c.ChunkInterval = 10 * time.Millisecond
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 30 * time.Second
	}
	return c
}

// Deps are the external collaborators a Session calls out to. STT, LLM, and
// TTS are required; Convo and Metrics are optional.
type Deps struct {
	STT      stt.Provider
	LLM      llm.Provider
	TTS      tts.Provider
	Profiles *profile.Loader

	// Convo, when non-nil, records each completed exchange best-effort.
	Convo convo.Store

	// Metrics, when non-nil, receives stage latencies and outcome counts.
	Metrics *observe.Metrics

	// Pace delays between outbound chunks. Defaults to a context-aware
	// sleep; tests inject a no-op.
	Pace func(ctx context.Context, d time.Duration) error
}

// Session drives one device connection through repeated
// listen/accumulate/finalize cycles.
type Session struct {
	conn     Conn
	deviceID string
	cfg      Config
	deps     Deps

	profile *profile.Profile
	gate    *wake.Gate
	buffer  Buffer
}

// New creates a Session for an accepted connection. deviceID is the identity
// asserted at connect time; a later device_hello message may supersede it.
func New(conn Conn, deviceID string, deps Deps, cfg Config) *Session {
	if deps.Profiles == nil {
		deps.Profiles = profile.NewLoader(nil)
	}
	if deps.Pace == nil {
		deps.Pace = sleep
	}
	return &Session{
		conn:     conn,
		deviceID: deviceID,
		cfg:      cfg.withDefaults(),
		deps:     deps,
	}
}

// inbound is the recognized JSON control message shape.
type inbound struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id"`
}

// outbound control messages.
type personalityLoaded struct {
	Type         string `json:"type"`
	AIName       string `json:"ai_name"`
	SleepEnabled bool   `json:"sleep_enabled"`
}

type notice struct {
	Type string `json:"type"`
}

// Run loads the device profile, announces it, and processes inbound messages
// until the connection closes or ctx is cancelled. It returns nil on a clean
// disconnect and the transport error otherwise. Per-utterance failures never
// terminate the run loop.
func (s *Session) Run(ctx context.Context) error {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ActiveSessions.Add(ctx, 1)
		defer s.deps.Metrics.ActiveSessions.Add(ctx, -1)
	}

	s.reloadProfile(ctx)
	if err := s.sendJSON(ctx, personalityLoaded{
		Type:         "personality_loaded",
		AIName:       s.profile.AssistantName,
		SleepEnabled: true,
	}); err != nil {
		return fmt.Errorf("session: announce personality: %w", err)
	}
	slog.Info("device session started", "device_id", s.deviceID, "ai_name", s.profile.AssistantName)

	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			s.buffer.Reset()
			if isClosed(err) {
				slog.Info("device disconnected", "device_id", s.deviceID)
				return nil
			}
			return fmt.Errorf("session: read: %w", err)
		}

		switch typ {
		case websocket.MessageBinary:
			s.buffer.Append(data)
		case websocket.MessageText:
			if err := s.handleText(ctx, string(data)); err != nil {
				s.buffer.Reset()
				return err
			}
		}
	}
}

// handleText dispatches a text frame. Only transport errors are returned.
func (s *Session) handleText(ctx context.Context, text string) error {
	switch {
	case text == AudioEndToken:
		return s.finalize(ctx)
	case strings.HasPrefix(text, "{"):
		var msg inbound
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			slog.Warn("malformed control message ignored", "device_id", s.deviceID, "err", err)
			return nil
		}
		if msg.Type == "device_hello" {
			slog.Info("device hello", "device_id", s.deviceID, "asserted_id", msg.DeviceID)
			if msg.DeviceID != "" {
				s.deviceID = msg.DeviceID
			}
			s.reloadProfile(ctx)
		}
		// Unrecognized control messages are accepted and ignored.
	}
	return nil
}

// reloadProfile resolves the current device identity to a profile and
// rebuilds the wake gate. Safe to repeat whenever identity changes.
func (s *Session) reloadProfile(ctx context.Context) {
	s.profile = s.deps.Profiles.Load(ctx, s.deviceID)
	opts := []wake.Option{}
	if s.cfg.Phonetic {
		opts = append(opts, wake.WithPhonetic(true))
	}
	s.gate = wake.NewGate(s.profile.AssistantName, opts...)
}

// finalize processes the accumulated utterance. The buffer is reset
// unconditionally before returning, whatever path the pipeline takes. Only
// transport failures are returned; recognition, generation, and synthesis
// failures degrade the utterance but keep the session alive.
func (s *Session) finalize(ctx context.Context) error {
	start := time.Now()
	defer s.buffer.Reset()

	if s.buffer.Empty() {
		observe.Logger(ctx).Warn("audio end with empty buffer", "device_id", s.deviceID)
		s.countUtterance(ctx, observe.OutcomeEmptyBuffer)
		return nil
	}

	pcm := s.buffer.Drain()
	samples := audio.NormalizeBytes(pcm)
	observe.Logger(ctx).Info("processing utterance",
		"device_id", s.deviceID,
		"duration", audio.Duration(len(pcm), s.cfg.SampleRate),
	)

	transcript, ok, err := s.transcribe(ctx, samples)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	command, ok, err := s.gateCommand(ctx, transcript)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	reply := s.generate(ctx, command)
	observe.Logger(ctx).Info("reply generated", "device_id", s.deviceID, "reply", reply)

	replyPCM := s.synthesize(ctx, reply)

	if err := s.stream(ctx, replyPCM); err != nil {
		return err
	}
	if err := s.sendJSON(ctx, notice{Type: "audio_end"}); err != nil {
		return fmt.Errorf("session: send audio_end: %w", err)
	}

	s.record(ctx, command, reply)
	s.countUtterance(ctx, observe.OutcomeCompleted)
	if s.deps.Metrics != nil {
		s.deps.Metrics.UtteranceDuration.Record(ctx, time.Since(start).Seconds())
	}
	return nil
}

// transcribe runs STT over the utterance. ok is false when the utterance was
// abandoned (STT failure or an empty/near-empty transcript), in which case
// the device has already been notified.
func (s *Session) transcribe(ctx context.Context, samples []float32) (transcript string, ok bool, err error) {
	sttStart := time.Now()
	transcript, sttErr := s.deps.STT.Transcribe(ctx, samples, s.cfg.Language)
	if s.deps.Metrics != nil {
		s.deps.Metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	}
	if sttErr != nil {
		observe.Logger(ctx).Warn("transcription failed", "device_id", s.deviceID, "err", sttErr)
		s.countProviderError(ctx, "stt", "transcribe")
		transcript = ""
	}
	if len(strings.TrimSpace(transcript)) < minTranscriptChars {
		observe.Logger(ctx).Info("empty or too short transcript", "device_id", s.deviceID)
		if err := s.sendJSON(ctx, notice{Type: "no_wake_word"}); err != nil {
			return "", false, fmt.Errorf("session: send no_wake_word: %w", err)
		}
		s.countUtterance(ctx, observe.OutcomeNoWakeWord)
		return "", false, nil
	}
	observe.Logger(ctx).Info("transcript", "device_id", s.deviceID, "text", transcript)
	return transcript, true, nil
}

// gateCommand applies the wake-word gate. ok is false when no activation
// phrase was found, in which case the device has already been notified.
func (s *Session) gateCommand(ctx context.Context, transcript string) (command string, ok bool, err error) {
	command, found := s.gate.Extract(transcript)
	if !found {
		observe.Logger(ctx).Info("no wake word detected", "device_id", s.deviceID, "transcript", transcript)
		if err := s.sendJSON(ctx, notice{Type: "no_wake_word"}); err != nil {
			return "", false, fmt.Errorf("session: send no_wake_word: %w", err)
		}
		s.countUtterance(ctx, observe.OutcomeNoWakeWord)
		return "", false, nil
	}
	observe.Logger(ctx).Info("command extracted", "device_id", s.deviceID, "command", command)
	if actions := devcmd.Classify(command); len(actions) > 0 {
		observe.Logger(ctx).Info("appliance actions detected", "device_id", s.deviceID, "actions", actions)
	}
	return command, true, nil
}

// generate produces the reply text. A generation failure substitutes
// FallbackReply rather than propagating.
func (s *Session) generate(ctx context.Context, command string) string {
	llmCtx, cancel := context.WithTimeout(ctx, s.cfg.LLMTimeout)
	defer cancel()

	llmStart := time.Now()
	resp, err := s.deps.LLM.Complete(llmCtx, llm.CompletionRequest{
		SystemPrompt: s.systemPrompt(),
		Messages:     []llm.Message{{Role: "user", Content: command}},
	})
	if s.deps.Metrics != nil {
		s.deps.Metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	}
	if err != nil {
		observe.Logger(ctx).Warn("response generation failed", "device_id", s.deviceID, "err", err)
		s.countProviderError(ctx, "llm", "complete")
		return FallbackReply
	}
	return resp.Content
}

// synthesize converts the reply to PCM. A synthesis failure degrades to
// zero-length audio; the device still gets the audio_end marker.
func (s *Session) synthesize(ctx context.Context, reply string) []byte {
	ttsStart := time.Now()
	pcm, err := s.deps.TTS.Synthesize(ctx, reply, s.profile.Voice)
	if s.deps.Metrics != nil {
		s.deps.Metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
	}
	if err != nil {
		observe.Logger(ctx).Warn("speech synthesis failed", "device_id", s.deviceID, "err", err)
		s.countProviderError(ctx, "tts", "synthesize")
		return nil
	}
	return pcm
}

// stream sends pcm to the device in fixed-size chunks, pacing each send to
// avoid overrunning the device's receive buffer.
func (s *Session) stream(ctx context.Context, pcm []byte) error {
	for i := 0; i < len(pcm); i += s.cfg.ChunkSize {
		end := min(i+s.cfg.ChunkSize, len(pcm))
		if err := s.conn.Write(ctx, websocket.MessageBinary, pcm[i:end]); err != nil {
			return fmt.Errorf("session: stream chunk: %w", err)
		}
		if err := s.deps.Pace(ctx, s.cfg.ChunkInterval); err != nil {
			return fmt.Errorf("session: pacing: %w", err)
		}
	}
	if s.deps.Metrics != nil && len(pcm) > 0 {
		s.deps.Metrics.StreamedBytes.Add(ctx, int64(len(pcm)))
	}
	observe.Logger(ctx).Info("streamed reply audio", "device_id", s.deviceID, "bytes", len(pcm))
	return nil
}

// record appends the exchange to conversation history best-effort. Storage
// failures are logged, never surfaced.
func (s *Session) record(ctx context.Context, command, reply string) {
	if s.deps.Convo == nil || s.profile.UserID == "" {
		return
	}
	for _, turn := range []convo.Message{
		{UserID: s.profile.UserID, DeviceID: s.deviceID, Role: "user", Content: command},
		{UserID: s.profile.UserID, DeviceID: s.deviceID, Role: "assistant", Content: reply},
	} {
		msg := turn
		if err := s.deps.Convo.AppendMessage(ctx, &msg); err != nil {
			observe.Logger(ctx).Warn("conversation record failed", "device_id", s.deviceID, "err", err)
			return
		}
	}
}

// systemPrompt builds the generation prompt from the profile.
func (s *Session) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a coffee maker with an AI personality.\n", s.profile.AssistantName)
	if s.profile.NarrativeContext != "" {
		b.WriteString("\n")
		b.WriteString(s.profile.NarrativeContext)
		b.WriteString("\n")
	}
	b.WriteString("\nKeep responses to 1-2 sentences. Be conversational and natural.\n")
	b.WriteString("You can make coffee and control other appliances in the mesh network.\n")
	return b.String()
}

func (s *Session) sendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: marshal message: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *Session) countUtterance(ctx context.Context, outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordUtterance(ctx, outcome)
	}
}

func (s *Session) countProviderError(ctx context.Context, provider, kind string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordProviderError(ctx, provider, kind)
	}
}

// isClosed reports whether err represents a normal connection shutdown.
func isClosed(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return false
}

// sleep is the default pacer. It honors ctx cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
