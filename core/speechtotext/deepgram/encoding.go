package deepgram

import (
	"fmt"
	"slices"

	"github.com/koscakluka/ema-voice/core/audio"
)

type listenEncoding struct {
	SampleRate int
	Format     string
}

var supportedSampleRates = []int{8000, 16000, 24000, 32000, 48000}

// toListenEncoding maps capture encoding onto the query parameters the
// listen endpoint accepts. Companded formats are telephony only.
func toListenEncoding(encoding audio.EncodingInfo) (listenEncoding, error) {
	if !slices.Contains(supportedSampleRates, encoding.SampleRate) {
		return listenEncoding{}, fmt.Errorf("unsupported sample rate %d", encoding.SampleRate)
	}

	switch encoding.Format {
	case audio.EncodingLinear16:
	case audio.EncodingALaw, audio.EncodingMulaw:
		if encoding.SampleRate != 8000 {
			return listenEncoding{}, fmt.Errorf("unsupported sample rate %d for %s encoding", encoding.SampleRate, encoding.Format.Name())
		}
	default:
		return listenEncoding{}, fmt.Errorf("unsupported encoding %q", encoding.Format.Name())
	}

	return listenEncoding{SampleRate: encoding.SampleRate, Format: encoding.Format.Name()}, nil
}
