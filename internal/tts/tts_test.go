package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gopxl/beep/v2/wav"

	"github.com/loqalabs/loqa-podcast/internal/config"
)

func TestMockSynthProducesWav(t *testing.T) {
	synth := NewMockSynth(8000)
	data, err := synth.Synthesize(context.Background(), SynthRequest{Text: strings.Repeat("a", 24), Voice: "onyx", Format: "wav"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	streamer, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer streamer.Close()
	if int(format.SampleRate) != 8000 || format.NumChannels != 1 {
		t.Fatalf("unexpected format: %+v", format)
	}
	if streamer.Len() != 16000 {
		t.Fatalf("expected 2s of audio, got %d samples", streamer.Len())
	}
}

func TestMockSynthRejectsMP3(t *testing.T) {
	if _, err := NewMockSynth(8000).Synthesize(context.Background(), SynthRequest{Text: "hi", Format: "mp3"}); err == nil {
		t.Fatal("expected error for mp3")
	}
}

func TestExecSynthCollectsChunks(t *testing.T) {
	// "YWJj" and "ZGVm" are base64 for "abc" and "def".
	cmd := `sh -c 'cat >/dev/null; echo "{\"audio_base64\":\"YWJj\"}"; echo "{\"audio_base64\":\"ZGVm\",\"final\":true}"'`
	synth, err := NewExecSynth(cmd, 24000)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	data, err := synth.Synthesize(context.Background(), SynthRequest{Text: "hello", Voice: "nova", Format: "mp3"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(data) != "abcdef" {
		t.Fatalf("unexpected audio: %q", data)
	}
}

func TestExecSynthReportsCommandError(t *testing.T) {
	synth, err := NewExecSynth(`sh -c 'cat >/dev/null; echo boom >&2; exit 3'`, 24000)
	if err != nil {
		t.Fatalf("new exec synth: %v", err)
	}
	_, err = synth.Synthesize(context.Background(), SynthRequest{Text: "hello", Voice: "nova"})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected command failure with stderr, got %v", err)
	}
}

func TestExecSynthEmptyCommand(t *testing.T) {
	if _, err := NewExecSynth("   ", 24000); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestOpenAISynthRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("fake-mp3"))
	}))
	defer srv.Close()

	synth, err := NewOpenAISynth("sk-test", "tts-1-hd", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("new openai synth: %v", err)
	}
	data, err := synth.Synthesize(context.Background(), SynthRequest{Text: "Hello there.", Voice: "onyx", Format: "mp3"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(data) != "fake-mp3" {
		t.Fatalf("unexpected audio: %q", data)
	}
	if got["input"] != "Hello there." || got["voice"] != "onyx" || got["model"] != "tts-1-hd" || got["response_format"] != "mp3" {
		t.Fatalf("unexpected request body: %v", got)
	}
}

func TestOpenAISynthPropagatesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"input too long","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	synth, err := NewOpenAISynth("sk-test", "tts-1-hd", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("new openai synth: %v", err)
	}
	if _, err := synth.Synthesize(context.Background(), SynthRequest{Text: "x", Voice: "onyx"}); err == nil {
		t.Fatal("expected error from backend")
	}
}

func TestOpenAISynthFromConfigDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream unavailable","type":"server_error"}}`))
	}))
	defer srv.Close()

	synth, err := FromConfig(config.TTSConfig{Mode: "openai", APIKey: "sk-test", Model: "tts-1-hd", BaseURL: srv.URL + "/v1/"})
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if _, err := synth.Synthesize(context.Background(), SynthRequest{Text: "x", Voice: "onyx", Format: "mp3"}); err == nil {
		t.Fatal("expected error from backend")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected exactly one backend request, got %d", n)
	}
}

func TestOpenAISynthRetriesWhenConfigured(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After-Ms", "1")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"busy","type":"server_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("fake-mp3"))
	}))
	defer srv.Close()

	synth, err := FromConfig(config.TTSConfig{Mode: "openai", APIKey: "sk-test", Model: "tts-1-hd", BaseURL: srv.URL + "/v1/", MaxRetries: 1})
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if _, err := synth.Synthesize(context.Background(), SynthRequest{Text: "x", Voice: "onyx", Format: "mp3"}); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected one retry, got %d requests", n)
	}
}

func TestFromConfig(t *testing.T) {
	if _, err := FromConfig(config.TTSConfig{Mode: "mock", SampleRate: 24000}); err != nil {
		t.Fatalf("mock: %v", err)
	}
	if _, err := FromConfig(config.TTSConfig{Mode: "openai"}); err == nil {
		t.Fatal("expected error for openai without key")
	}
	if _, err := FromConfig(config.TTSConfig{Mode: "piper"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
