package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

func TestSynthesizeCollectsAudioUntilFlushed(t *testing.T) {
	queries := make(chan string, 2)
	server := newSpeakServer(t, func(conn *websocket.Conn, r *http.Request) {
		queries <- r.URL.RawQuery
		for {
			var msg map[string]string
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg["type"] == "Flush" {
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2})
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte{3, 4})
				_ = conn.WriteJSON(map[string]any{"type": "Flushed", "sequence_id": 0})
			}
		}
	})

	client, err := NewClient(WithAPIKey("key"), WithSpeakURL(server))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}
	defer client.Close()

	speech, err := client.Synthesize(context.Background(), "Two plus two is four.")
	if err != nil {
		t.Fatalf("expected synthesis to succeed, got %v", err)
	}
	if string(speech.Audio) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected audio %v", speech.Audio)
	}
	query := <-queries
	if !strings.Contains(query, "model="+string(DefaultVoice)) || !strings.Contains(query, "container=none") {
		t.Fatalf("unexpected query %s", query)
	}

	// The socket is reused for the next request.
	if _, err := client.Synthesize(context.Background(), "Again."); err != nil {
		t.Fatalf("expected second synthesis to succeed, got %v", err)
	}
}

func TestSynthesizeHonoursCancellation(t *testing.T) {
	server := newSpeakServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	client, err := NewClient(WithAPIKey("key"), WithSpeakURL(server))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err = client.Synthesize(ctx, "never answered")
	if !errors.Is(err, texttospeech.ErrSynthesis) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
	if time.Since(started) > time.Second {
		t.Fatalf("expected cancellation to unblock promptly")
	}
}

func TestSetVoiceRejectsUnknownVoice(t *testing.T) {
	client, err := NewClient(WithAPIKey("key"))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}
	if err := client.SetVoice("robot"); err == nil {
		t.Fatalf("expected unknown voice to be rejected")
	}
	if err := client.SetVoice(string(VoiceLuna)); err != nil {
		t.Fatalf("expected known voice to be accepted, got %v", err)
	}
}

func newSpeakServer(t *testing.T, handle func(*websocket.Conn, *http.Request)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "token key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}
