package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/soven-tech/soven-server/internal/convo"
	"github.com/soven-tech/soven-server/internal/voice"

	llmmock "github.com/soven-tech/soven-server/pkg/provider/llm/mock"
	sttmock "github.com/soven-tech/soven-server/pkg/provider/stt/mock"
	ttsmock "github.com/soven-tech/soven-server/pkg/provider/tts/mock"
)

func newTestServer(t *testing.T, cfg Config, deps Deps) *Server {
	t.Helper()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	if deps.STT == nil {
		deps.STT = &sttmock.Provider{}
	}
	if deps.LLM == nil {
		deps.LLM = &llmmock.Provider{}
	}
	if deps.TTS == nil {
		deps.TTS = &ttsmock.Provider{}
	}
	s, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}, Deps{}); err == nil {
		t.Fatal("New() should reject a missing listen address")
	}
	if _, err := New(Config{ListenAddr: ":0"}, Deps{}); err == nil {
		t.Fatal("New() should reject missing providers")
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	store := convo.NewMemoryStore()
	s := newTestServer(t, Config{}, Deps{Convo: store})
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/messages", map[string]string{
		"user_id":   "user-1",
		"device_id": "dev-1",
		"role":      "user",
		"content":   "make coffee",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /messages status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/conversations/user-1/dev-1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET history status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Messages []convo.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Content != "make coffee" {
		t.Fatalf("history = %+v", resp.Messages)
	}
}

func TestMessagesValidation(t *testing.T) {
	s := newTestServer(t, Config{}, Deps{})
	rec := doJSON(t, s.Handler(), http.MethodPost, "/messages", map[string]string{
		"user_id": "user-1",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an incomplete message", rec.Code)
	}
}

func TestDeviceLifecycle(t *testing.T) {
	s := newTestServer(t, Config{}, Deps{Convo: convo.NewMemoryStore()})
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/devices", map[string]any{
		"user_id":     "user-1",
		"device_type": "coffee_maker",
		"device_name": "Kitchen",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /devices status = %d, body %s", rec.Code, rec.Body)
	}
	var dev convo.Device
	if err := json.Unmarshal(rec.Body.Bytes(), &dev); err != nil {
		t.Fatalf("decode device: %v", err)
	}
	if dev.DeviceID == "" {
		t.Fatal("registration should assign a device ID")
	}

	rec = doJSON(t, h, http.MethodPost, "/devices/"+dev.DeviceID+"/onboarding", map[string]any{
		"ai_name":  "Frank",
		"location": "kitchen",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("onboarding status = %d, body %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/users/user-1/devices", nil, nil)
	var resp struct {
		Devices []convo.Device `json:"devices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode devices: %v", err)
	}
	if len(resp.Devices) != 1 {
		t.Fatalf("got %d devices, want 1", len(resp.Devices))
	}
	if got := resp.Devices[0]; got.AIName != "Frank" || !got.FirstBootComplete {
		t.Fatalf("device after onboarding = %+v", got)
	}
}

func TestAPIKeyGuardsManagementEndpoints(t *testing.T) {
	s := newTestServer(t, Config{APIKey: "secret"}, Deps{})
	h := s.Handler()

	rec := doJSON(t, h, http.MethodGet, "/api/voices/list", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/voices/list", nil, map[string]string{"X-API-Key": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d, want 401", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/voices/list", nil, map[string]string{"X-API-Key": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid key: status = %d, want 200", rec.Code)
	}

	// Probes must not need the key.
	rec = doJSON(t, h, http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/health status = %d, want 200 without a key", rec.Code)
	}

	// Non-management routes are never guarded.
	rec = doJSON(t, h, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/healthz status = %d, want 200", rec.Code)
	}
}

func TestVoicesList(t *testing.T) {
	s := newTestServer(t, Config{}, Deps{})
	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/voices/list", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Voices []voiceEntry `json:"voices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode voices: %v", err)
	}
	if len(resp.Voices) != len(voice.All()) {
		t.Fatalf("got %d voices, want the full catalogue of %d", len(resp.Voices), len(voice.All()))
	}
	for _, v := range resp.Voices {
		if v.ID == "" || v.Model == "" {
			t.Fatalf("catalogue entry missing id or model: %+v", v)
		}
	}
}

func TestTTSGenerateReturnsWAV(t *testing.T) {
	pcm := make([]byte, 400)
	ttsp := &ttsmock.Provider{SynthesizeResult: pcm}
	s := newTestServer(t, Config{TTSSampleRate: 22050}, Deps{TTS: ttsp})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/tts/generate", map[string]string{
		"text":     "hello there",
		"voice_id": "p234",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("Content-Type = %q", ct)
	}
	body := rec.Body.Bytes()
	if len(body) != 44+len(pcm) || !bytes.HasPrefix(body, []byte("RIFF")) {
		t.Fatalf("body is not a WAV wrapping the PCM: %d bytes", len(body))
	}

	calls := ttsp.Calls()
	if len(calls) != 1 || calls[0].Voice.Speaker != "p234" {
		t.Fatalf("TTS calls = %+v, want the requested catalogue voice", calls)
	}
}

func TestTTSGenerateRejectsUnknownVoice(t *testing.T) {
	s := newTestServer(t, Config{}, Deps{})
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/tts/generate", map[string]string{
		"text":     "hello",
		"voice_id": "p999",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an unknown voice", rec.Code)
	}
}

type personalityCapture struct {
	traits    map[string]float64
	origin    string
	narrative string
}

func (p *personalityCapture) SaveTraits(_ context.Context, _ string, traits map[string]float64) error {
	p.traits = traits
	return nil
}

func (p *personalityCapture) SaveOrigin(_ context.Context, _ string, originStory, narrativeContext string) error {
	p.origin = originStory
	p.narrative = narrativeContext
	return nil
}

func TestPersonalityCreate(t *testing.T) {
	llmp := &llmmock.Provider{CompleteResult: `{
		"traits": {"resilience": 1.5, "nostalgia_bias": 0.9},
		"temporal_resolution": "high",
		"pattern_window": "long",
		"narrative_context": "A machine shaped by decades of service.",
		"themes": ["service", "endurance"]
	}`}
	capture := &personalityCapture{}
	s := newTestServer(t, Config{}, Deps{LLM: llmp, Personality: capture})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/personality/create", map[string]any{
		"device_id":    "dev-1",
		"name":         "Frank",
		"origin_story": "Built in 1962, Frank served a diner for decades.",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp personalityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AIName != "Frank" || resp.VoiceID == "" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Traits["resilience"] != 1.0 {
		t.Fatalf("resilience = %v, want clamped to 1.0", resp.Traits["resilience"])
	}
	if resp.Traits["perfectionism"] != 0.5 {
		t.Fatalf("perfectionism = %v, omitted traits should default to 0.5", resp.Traits["perfectionism"])
	}
	if _, ok := voice.ByID(resp.VoiceID); !ok {
		t.Fatalf("voice_id %q is not in the catalogue", resp.VoiceID)
	}

	if capture.traits == nil || !strings.Contains(capture.origin, "1962") {
		t.Fatalf("personality store capture = %+v, want traits and origin persisted", capture)
	}
	if capture.narrative != "A machine shaped by decades of service." {
		t.Fatalf("narrative = %q", capture.narrative)
	}
}

func TestPersonalityCreateValidation(t *testing.T) {
	s := newTestServer(t, Config{}, Deps{})
	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/personality/create", map[string]string{
		"device_id": "dev-1",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without an origin story", rec.Code)
	}
}

func TestAudioWebSocketSession(t *testing.T) {
	replyPCM := make([]byte, 1500)
	sttp := &sttmock.Provider{TranscribeResult: "hey assistant start brewing"}
	llmp := &llmmock.Provider{CompleteResult: "Brewing now."}
	ttsp := &ttsmock.Provider{SynthesizeResult: replyPCM}
	s := newTestServer(t, Config{}, Deps{STT: sttp, LLM: llmp, TTS: ttsp})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/audio?device_id=dev-1"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")
	conn.SetReadLimit(1 << 20)

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read announcement: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("announcement type = %v", typ)
	}
	var hello struct {
		Type   string `json:"type"`
		AIName string `json:"ai_name"`
	}
	if err := json.Unmarshal(data, &hello); err != nil {
		t.Fatalf("decode announcement: %v", err)
	}
	if hello.Type != "personality_loaded" {
		t.Fatalf("first message = %+v, want personality_loaded", hello)
	}

	if err := conn.Write(ctx, websocket.MessageBinary, make([]byte, 640)); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte("AUDIO_END")); err != nil {
		t.Fatalf("send audio end: %v", err)
	}

	var audioBytes int
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read reply: %v", err)
		}
		if typ == websocket.MessageBinary {
			audioBytes += len(data)
			continue
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode notice: %v", err)
		}
		if msg.Type != "audio_end" {
			t.Fatalf("notice = %+v, want audio_end", msg)
		}
		break
	}
	if audioBytes != len(replyPCM) {
		t.Fatalf("received %d audio bytes, want %d", audioBytes, len(replyPCM))
	}
}
