package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrNotWAV = errors.New("not a RIFF/WAVE payload")

type wavFormatChunk struct {
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// DecodeWAV extracts mono PCM16 samples from a WAV payload. Chunks other than
// "fmt " and "data" are skipped.
func DecodeWAV(data []byte) ([]byte, EncodingInfo, error) {
	if !IsWAV(data) {
		return nil, EncodingInfo{}, ErrNotWAV
	}

	var format *wavFormatChunk
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		end := body + size
		if end > len(data) {
			// Streaming encoders write a placeholder size for the data chunk.
			end = len(data)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, EncodingInfo{}, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			format = &wavFormatChunk{}
			if err := binary.Read(bytes.NewReader(data[body:body+16]), binary.LittleEndian, format); err != nil {
				return nil, EncodingInfo{}, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
		case "data":
			if format == nil {
				return nil, EncodingInfo{}, fmt.Errorf("data chunk before fmt chunk")
			}
			if format.AudioFormat != 1 {
				return nil, EncodingInfo{}, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", format.AudioFormat)
			}
			if format.BitsPerSample != 16 {
				return nil, EncodingInfo{}, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", format.BitsPerSample)
			}
			if format.NumChannels != 1 {
				return nil, EncodingInfo{}, fmt.Errorf("unsupported channel count: %d (only mono is supported)", format.NumChannels)
			}
			pcm := data[body:end]
			if len(pcm)%2 == 1 {
				pcm = pcm[:len(pcm)-1]
			}
			return pcm, EncodingInfo{SampleRate: int(format.SampleRate), Format: EncodingLinear16}, nil
		}

		offset = end + size%2
	}

	return nil, EncodingInfo{}, fmt.Errorf("no data chunk found")
}

// EncodeWAV wraps mono PCM16 audio in a WAV header.
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, wavFormatChunk{
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
	})
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes(), nil
}
