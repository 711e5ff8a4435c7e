package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

func TestSynthesizeDecodesWAV(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0}
	wav, err := audio.EncodeWAV(pcm, 22050)
	if err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}

	var received synthesizeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer server.Close()

	speech, err := NewClient(server.URL, WithVoice("amy")).Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("expected synthesis to succeed, got %v", err)
	}
	if string(speech.Audio) != string(pcm) || speech.Encoding.SampleRate != 22050 {
		t.Fatalf("unexpected speech %+v", speech)
	}
	if received.Text != "hello" || received.Voice != "amy" {
		t.Fatalf("unexpected request %+v", received)
	}
}

func TestSynthesizeAcceptsRawPCM(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte{9, 0, 8, 0, 7})
	}))
	defer server.Close()

	speech, err := NewClient(server.URL, WithSampleRate(24000)).Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatalf("expected synthesis to succeed, got %v", err)
	}
	if len(speech.Audio) != 4 || speech.Encoding.SampleRate != 24000 {
		t.Fatalf("expected trimmed PCM at configured rate, got %+v", speech)
	}
}

func TestSynthesizeReportsServiceFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "voice not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := NewClient(server.URL).Synthesize(context.Background(), "hi"); !errors.Is(err, texttospeech.ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
}
