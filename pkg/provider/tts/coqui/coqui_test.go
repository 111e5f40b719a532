package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soven-tech/soven-server/pkg/audio"
	"github.com/soven-tech/soven-server/pkg/provider/tts"
)

func TestNewRequiresServerURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNewTrimsTrailingSlash(t *testing.T) {
	p, err := New("http://localhost:5002/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.serverURL != "http://localhost:5002" {
		t.Errorf("serverURL = %q, want %q", p.serverURL, "http://localhost:5002")
	}
}

func TestSynthesizeStandard(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

	var gotPath, gotText, gotSpeaker, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		q := r.URL.Query()
		gotText = q.Get("text")
		gotSpeaker = q.Get("speaker_id")
		gotLang = q.Get("language_id")
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(audio.EncodeWAV(pcm, 16000, 1))
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.Synthesize(context.Background(), "hello there", tts.Voice{Speaker: "p297"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("PCM = %v, want %v", got, pcm)
	}
	if gotPath != apiTTSEndpoint {
		t.Errorf("path = %q, want %q", gotPath, apiTTSEndpoint)
	}
	if gotText != "hello there" {
		t.Errorf("text param = %q, want %q", gotText, "hello there")
	}
	if gotSpeaker != "p297" {
		t.Errorf("speaker_id param = %q, want %q", gotSpeaker, "p297")
	}
	if gotLang != "en" {
		t.Errorf("language_id param = %q, want %q", gotLang, "en")
	}
}

func TestSynthesizeXTTS(t *testing.T) {
	pcm := []byte{0x0a, 0x0b, 0x0c, 0x0d}

	var gotReq ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ttsEndpoint {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("unmarshal request body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(audio.EncodeWAV(pcm, 24000, 1))
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithAPIMode(APIModeXTTS), WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.Synthesize(context.Background(), "guten tag", tts.Voice{Speaker: "Ana Florence"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("PCM = %v, want %v", got, pcm)
	}
	if gotReq.Text != "guten tag" {
		t.Errorf("request text = %q, want %q", gotReq.Text, "guten tag")
	}
	if gotReq.SpeakerID != "Ana Florence" {
		t.Errorf("request speaker_id = %q, want %q", gotReq.SpeakerID, "Ana Florence")
	}
	if gotReq.Language != "de" {
		t.Errorf("request language = %q, want %q", gotReq.Language, "de")
	}
}

func TestSynthesizeEmptyTextSkipsServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called for empty text")
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Synthesize(context.Background(), "   ", tts.Voice{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("PCM length = %d, want 0", len(got))
	}
}

func TestSynthesizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "hello", tts.Voice{}); err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
}

func TestListVoicesStandardMultiSpeaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != detailsEndpoint {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(detailsResponse{
			ModelName: "tts_models/en/vctk/vits",
			Language:  "en",
			Speakers:  []string{"p301", "p225", "p297"},
		})
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 3 {
		t.Fatalf("got %d voices, want 3", len(voices))
	}
	// Sorted for determinism.
	wantSpeakers := []string{"p225", "p297", "p301"}
	for i, v := range voices {
		if v.Speaker != wantSpeakers[i] {
			t.Errorf("voices[%d].Speaker = %q, want %q", i, v.Speaker, wantSpeakers[i])
		}
		if v.Model != "tts_models/en/vctk/vits" {
			t.Errorf("voices[%d].Model = %q, want model name", i, v.Model)
		}
	}
}

func TestListVoicesStandardSingleSpeaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(detailsResponse{
			ModelName: "tts_models/en/ljspeech/tacotron2-DDC",
			Language:  "en",
		})
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 {
		t.Fatalf("got %d voices, want 1", len(voices))
	}
	if voices[0].Model != "tts_models/en/ljspeech/tacotron2-DDC" {
		t.Errorf("Model = %q, want model name", voices[0].Model)
	}
	if voices[0].Speaker != "" {
		t.Errorf("Speaker = %q, want empty for single-speaker model", voices[0].Speaker)
	}
}

func TestListVoicesXTTS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != studioSpeakersEndpoint {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Claribel Dervla": map[string]any{},
			"Ana Florence":    map[string]any{},
		})
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithAPIMode(APIModeXTTS))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	if voices[0].Speaker != "Ana Florence" || voices[1].Speaker != "Claribel Dervla" {
		t.Errorf("voices not sorted: %q, %q", voices[0].Speaker, voices[1].Speaker)
	}
}
