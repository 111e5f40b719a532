package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/soven-tech/soven-server/internal/convo"
	"github.com/soven-tech/soven-server/internal/voice"
	"github.com/soven-tech/soven-server/pkg/audio"
)

// historyLimitDefault caps conversation history responses unless the client
// asks for less.
const historyLimitDefault = 50

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// handleAppendMessage stores one conversation turn.
func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var msg convo.Message
	if !decodeJSON(w, r, &msg) {
		return
	}
	if msg.UserID == "" || msg.DeviceID == "" || msg.Role == "" || msg.Content == "" {
		writeError(w, http.StatusBadRequest, "user_id, device_id, role, and content are required")
		return
	}
	if err := s.deps.Convo.AppendMessage(r.Context(), &msg); err != nil {
		slog.Error("append message failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store message")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// handleHistory returns the most recent turns for a user/device pair, newest
// first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	deviceID := r.PathValue("deviceID")

	limit := historyLimitDefault
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := s.deps.Convo.History(r.Context(), userID, deviceID, limit)
	if err != nil {
		slog.Error("history query failed", "user_id", userID, "device_id", deviceID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if msgs == nil {
		msgs = []convo.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// handleDevices lists a user's registered devices.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	devices, err := s.deps.Convo.Devices(r.Context(), userID)
	if err != nil {
		slog.Error("device list failed", "user_id", userID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []convo.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// handleRegisterDevice registers a new appliance and assigns its ID.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var d convo.Device
	if !decodeJSON(w, r, &d) {
		return
	}
	if d.UserID == "" || d.DeviceType == "" {
		writeError(w, http.StatusBadRequest, "user_id and device_type are required")
		return
	}
	if err := s.deps.Convo.RegisterDevice(r.Context(), &d); err != nil {
		slog.Error("device registration failed", "user_id", d.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to register device")
		return
	}
	slog.Info("device registered", "device_id", d.DeviceID, "user_id", d.UserID, "type", d.DeviceType)
	writeJSON(w, http.StatusCreated, d)
}

type onboardingRequest struct {
	AIName   string         `json:"ai_name"`
	Location string         `json:"location"`
	Data     map[string]any `json:"onboarding_data"`
}

// handleOnboarding records the first-boot choices for a device.
func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")
	var req onboardingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AIName == "" {
		writeError(w, http.StatusBadRequest, "ai_name is required")
		return
	}
	if err := s.deps.Convo.CompleteOnboarding(r.Context(), deviceID, req.AIName, req.Location, req.Data); err != nil {
		slog.Error("onboarding failed", "device_id", deviceID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to complete onboarding")
		return
	}
	slog.Info("onboarding complete", "device_id", deviceID, "ai_name", req.AIName)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "device_id": deviceID})
}

type ttsGenerateRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// handleTTSGenerate synthesizes text with a catalogue voice and returns a
// WAV download.
func (s *Server) handleTTSGenerate(w http.ResponseWriter, r *http.Request) {
	var req ttsGenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	v := voice.DefaultVoice()
	if req.VoiceID != "" {
		resolved, ok := voice.ByID(req.VoiceID)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown voice_id "+req.VoiceID)
			return
		}
		v = resolved
	}

	pcm, err := s.deps.TTS.Synthesize(r.Context(), req.Text, v)
	if err != nil {
		slog.Error("synthesis failed", "voice_id", req.VoiceID, "err", err)
		writeError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}

	wav := audio.EncodeWAV(pcm, s.cfg.TTSSampleRate, 1)
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `attachment; filename="speech.wav"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(wav); err != nil {
		slog.Warn("wav write failed", "err", err)
	}
}

type voiceEntry struct {
	ID       string            `json:"id"`
	Model    string            `json:"model"`
	Speaker  string            `json:"speaker,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// handleVoicesList returns the synthesis voice catalogue.
func (s *Server) handleVoicesList(w http.ResponseWriter, r *http.Request) {
	all := voice.All()
	entries := make([]voiceEntry, 0, len(all))
	for _, v := range all {
		entries = append(entries, voiceEntry{
			ID:       voice.ID(v),
			Model:    v.Model,
			Speaker:  v.Speaker,
			Metadata: v.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": entries})
}

type personalityRequest struct {
	DeviceID       string `json:"device_id"`
	Name           string `json:"name"`
	OriginStory    string `json:"origin_story"`
	Description    string `json:"description"`
	PreferAmerican bool   `json:"prefer_american"`
}

type personalityResponse struct {
	DeviceID         string             `json:"device_id"`
	AIName           string             `json:"ai_name"`
	VoiceID          string             `json:"voice_id"`
	Traits           map[string]float64 `json:"traits"`
	NarrativeContext string             `json:"narrative_context"`
	Themes           []string           `json:"themes,omitempty"`
}

// handlePersonalityCreate analyzes an origin story into trait parameters,
// selects a matching voice, and persists both when a personality store is
// configured.
func (s *Server) handlePersonalityCreate(w http.ResponseWriter, r *http.Request) {
	var req personalityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DeviceID == "" || req.OriginStory == "" {
		writeError(w, http.StatusBadRequest, "device_id and origin_story are required")
		return
	}
	if req.Name == "" {
		req.Name = "Assistant"
	}

	analysis := s.dna.Analyze(r.Context(), req.OriginStory)
	v := s.selector.Select(req.Name, req.Description, req.PreferAmerican, analysis.Traits)

	if s.deps.Personality != nil {
		if err := s.deps.Personality.SaveTraits(r.Context(), req.DeviceID, analysis.Traits); err != nil {
			slog.Error("trait save failed", "device_id", req.DeviceID, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to store personality")
			return
		}
		if err := s.deps.Personality.SaveOrigin(r.Context(), req.DeviceID, req.OriginStory, analysis.NarrativeContext); err != nil {
			slog.Error("origin save failed", "device_id", req.DeviceID, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to store personality")
			return
		}
	}

	slog.Info("personality created", "device_id", req.DeviceID, "ai_name", req.Name, "voice_id", voice.ID(v))
	writeJSON(w, http.StatusCreated, personalityResponse{
		DeviceID:         req.DeviceID,
		AIName:           req.Name,
		VoiceID:          voice.ID(v),
		Traits:           analysis.Traits,
		NarrativeContext: analysis.NarrativeContext,
		Themes:           analysis.Themes,
	})
}
