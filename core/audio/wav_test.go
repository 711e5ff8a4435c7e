package audio

import (
	"bytes"
	"errors"
	"testing"
)

func TestWAVRoundTripKeepsSamplesAndRate(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	wav, err := EncodeWAV(pcm, 22050)
	if err != nil {
		t.Fatalf("expected encode to succeed, got %v", err)
	}
	if !IsWAV(wav) {
		t.Fatalf("expected encoded payload to be detected as WAV")
	}

	decoded, encoding, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("expected decode to succeed, got %v", err)
	}
	if !bytes.Equal(decoded, pcm) {
		t.Fatalf("expected %v, got %v", pcm, decoded)
	}
	if encoding.SampleRate != 22050 || encoding.Format != EncodingLinear16 {
		t.Fatalf("unexpected encoding %+v", encoding)
	}
}

func TestDecodeWAVSkipsUnknownChunks(t *testing.T) {
	wav, _ := EncodeWAV([]byte{9, 0}, 16000)
	// Insert a LIST chunk between fmt and data.
	withList := append([]byte{}, wav[:36]...)
	withList = append(withList, []byte("LIST\x04\x00\x00\x00abcd")...)
	withList = append(withList, wav[36:]...)

	decoded, _, err := DecodeWAV(withList)
	if err != nil {
		t.Fatalf("expected decode to succeed, got %v", err)
	}
	if !bytes.Equal(decoded, []byte{9, 0}) {
		t.Fatalf("expected samples to survive, got %v", decoded)
	}
}

func TestDecodeWAVRejectsRawPCM(t *testing.T) {
	if _, _, err := DecodeWAV([]byte{0, 1, 2, 3}); !errors.Is(err, ErrNotWAV) {
		t.Fatalf("expected ErrNotWAV, got %v", err)
	}
}
