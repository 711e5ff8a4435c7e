package main

import (
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelslog"

	orchestration "github.com/koscakluka/ema-voice/core"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/audio/miniaudio"
	"github.com/koscakluka/ema-voice/core/audio/portaudio"
	"github.com/koscakluka/ema-voice/core/history"
	"github.com/koscakluka/ema-voice/core/history/sqlite"
	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/llms/gemini"
	"github.com/koscakluka/ema-voice/core/llms/groq"
	"github.com/koscakluka/ema-voice/core/llms/ollama"
	remotellm "github.com/koscakluka/ema-voice/core/llms/remote"
	"github.com/koscakluka/ema-voice/core/metrics"
	"github.com/koscakluka/ema-voice/core/playback"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	sttdeepgram "github.com/koscakluka/ema-voice/core/speechtotext/deepgram"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	ttsdeepgram "github.com/koscakluka/ema-voice/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-voice/core/texttospeech/piper"
	remotetts "github.com/koscakluka/ema-voice/core/texttospeech/remote"
	"github.com/koscakluka/ema-voice/internal/config"
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-voice/cmd/ema-voice")

// audioBackend is what miniaudio and portaudio clients have in common.
type audioBackend struct {
	capture audio.CaptureDevice
	player  playback.Player
	close   func()
}

// pipeline is every component built from the configuration, wired into one
// orchestrator.
type pipeline struct {
	orchestrator *orchestration.Orchestrator
	transcriber  *speechtotext.Client
	voices       texttospeech.VoiceSelector
	synth        texttospeech.Synthesizer
	audio        audioBackend
}

func newPipeline(cfg *config.Config, m *metrics.Metrics) (*pipeline, error) {
	backend, err := newAudioBackend(cfg)
	if err != nil {
		return nil, err
	}
	p := &pipeline{audio: backend}

	p.transcriber = newTranscriber(cfg, backend.capture.EncodingInfo(), m, func(state speechtotext.ConnectionState) {
		if p.orchestrator != nil {
			p.orchestrator.TranscriptionStateChanged(state)
		}
	})

	generator, err := newGenerator(cfg, m)
	if err != nil {
		backend.close()
		return nil, err
	}

	opts := []orchestration.OrchestratorOption{
		orchestration.WithTranscriber(p.transcriber),
		orchestration.WithGenerator(generator),
		orchestration.WithContextTurns(cfg.Generation.ContextTurns),
		orchestration.WithBargeInInterruptsPlayback(cfg.Playback.BargeInInterruptsPlayback),
		orchestration.WithMetrics(m),
		orchestration.WithCaptureDevice(
			func() (audio.CaptureDevice, error) { return backend.capture, nil },
			audio.WithFrameDuration(cfg.Audio.FrameDuration),
			audio.WithDeviceName(cfg.Audio.Device),
			audio.WithCaptureHints(audio.CaptureHints{
				NoiseSuppression: cfg.Audio.NoiseSuppression,
				EchoCancellation: cfg.Audio.EchoCancellation,
				AutoGainControl:  cfg.Audio.AutoGainControl,
			}),
		),
	}

	if cfg.SpeechEnabled() {
		synth, err := newSynthesizer(cfg)
		if err != nil {
			backend.close()
			return nil, err
		}
		p.synth = synth
		if selector, ok := synth.(texttospeech.VoiceSelector); ok {
			p.voices = selector
		}
		queue := playback.NewQueue(synth, backend.player,
			playback.WithMinWords(cfg.Playback.MinWords),
			playback.WithLookahead(cfg.Playback.Lookahead),
			playback.WithSynthesisTimeout(cfg.Playback.SynthesisTimeout, playback.DefaultPerRuneTimeout),
			playback.WithMetrics(m),
		)
		opts = append(opts, orchestration.WithSpeechQueue(queue))
	} else {
		opts = append(opts, orchestration.WithSpeaking(false))
	}

	store, err := newHistory(cfg)
	if err != nil {
		backend.close()
		return nil, err
	}
	opts = append(opts, orchestration.WithHistory(store))

	p.orchestrator = orchestration.NewOrchestrator(opts...)
	return p, nil
}

// Close shuts the orchestrator down before releasing the synthesizer and
// the audio devices it uses.
func (p *pipeline) Close() {
	p.orchestrator.Close()
	if closer, ok := p.synth.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("failed to close synthesizer", "error", err)
		}
	}
	p.audio.close()
}

func newAudioBackend(cfg *config.Config) (audioBackend, error) {
	switch cfg.Audio.Backend {
	case "portaudio":
		client, err := portaudio.NewClient(cfg.Audio.BufferSize, cfg.Synthesis.SampleRate)
		if err != nil {
			return audioBackend{}, fmt.Errorf("failed to initialize portaudio: %w", err)
		}
		return audioBackend{capture: client.Capture(), player: client.Playback(), close: client.Close}, nil
	default:
		client, err := miniaudio.NewClient(
			miniaudio.WithCaptureSampleRate(cfg.Audio.SampleRate),
			miniaudio.WithPlaybackSampleRate(cfg.Synthesis.SampleRate),
		)
		if err != nil {
			return audioBackend{}, fmt.Errorf("failed to initialize miniaudio: %w", err)
		}
		return audioBackend{capture: client.Capture(), player: client.Playback(), close: client.Close}, nil
	}
}

func newTranscriber(cfg *config.Config, encoding audio.EncodingInfo, m *metrics.Metrics, onState func(speechtotext.ConnectionState)) *speechtotext.Client {
	opts := []speechtotext.ClientOption{
		speechtotext.WithEncodingInfo(encoding),
		speechtotext.WithRetryPolicy(speechtotext.RetryPolicy{
			Initial:     cfg.Transcription.Retry.Initial,
			Max:         cfg.Transcription.Retry.Max,
			MaxAttempts: cfg.Transcription.Retry.MaxAttempts,
		}),
		speechtotext.WithHeartbeatInterval(cfg.Transcription.HeartbeatInterval),
		speechtotext.WithStaleAfter(cfg.Transcription.StaleAfter),
		speechtotext.WithMetrics(m),
		speechtotext.WithStateChangedCallback(onState),
	}

	if cfg.Transcription.Provider == "deepgram" {
		dialectOpts := []sttdeepgram.DialectOption{sttdeepgram.WithAPIKey(cfg.Transcription.APIKey)}
		if cfg.Transcription.Model != "" {
			dialectOpts = append(dialectOpts, sttdeepgram.WithModel(cfg.Transcription.Model))
		}
		if cfg.Transcription.Language != "" {
			dialectOpts = append(dialectOpts, sttdeepgram.WithLanguage(cfg.Transcription.Language))
		}
		opts = append(opts, speechtotext.WithDialect(sttdeepgram.NewDialect(dialectOpts...)))
	}

	return speechtotext.NewClient(cfg.Transcription.Endpoint(), opts...)
}

func newGenerator(cfg *config.Config, m *metrics.Metrics) (*llms.Generator, error) {
	gen := cfg.Generation

	var backend llms.Backend
	switch gen.Provider {
	case "groq":
		var opts []groq.ClientOption
		if gen.Model != "" {
			opts = append(opts, groq.WithModel(gen.Model))
		}
		if gen.URL != "" {
			opts = append(opts, groq.WithURL(gen.URL))
		}
		backend = groq.NewClient(gen.APIKey, opts...)
	case "gemini":
		var opts []gemini.ClientOption
		if gen.Model != "" {
			opts = append(opts, gemini.WithModel(gen.Model))
		}
		backend = gemini.NewClient(gen.APIKey, opts...)
	case "remote":
		backend = remotellm.NewClient(gen.URL)
	case "ollama":
		var opts []ollama.ClientOption
		if gen.Model != "" {
			opts = append(opts, ollama.WithModel(gen.Model))
		}
		if gen.URL != "" {
			opts = append(opts, ollama.WithBaseURL(gen.URL))
		}
		backend = ollama.NewClient(opts...)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", gen.Provider)
	}

	opts := []llms.GeneratorOption{
		llms.WithTimeout(gen.Timeout),
		llms.WithSystemPrompt(gen.SystemPrompt),
		llms.WithMetrics(m),
	}
	if gen.Model != "" {
		opts = append(opts, llms.WithModel(gen.Model))
	}
	return llms.NewGenerator(backend, opts...), nil
}

func newSynthesizer(cfg *config.Config) (texttospeech.Synthesizer, error) {
	synth := cfg.Synthesis
	encoding := audio.EncodingInfo{SampleRate: synth.SampleRate, Format: audio.EncodingLinear16}

	switch synth.Provider {
	case "piper":
		opts := []piper.ClientOption{piper.WithSampleRate(synth.SampleRate)}
		if synth.PiperBinary != "" {
			opts = append(opts, piper.WithBinary(synth.PiperBinary))
		}
		if synth.PiperModelDir != "" {
			opts = append(opts, piper.WithModelDir(synth.PiperModelDir))
		}
		return piper.NewClient(synth.Voice, opts...), nil
	case "remote":
		opts := []remotetts.ClientOption{remotetts.WithSampleRate(synth.SampleRate)}
		if synth.Voice != "" {
			opts = append(opts, remotetts.WithVoice(synth.Voice))
		}
		return remotetts.NewClient(synth.URL, opts...), nil
	case "deepgram":
		opts := []ttsdeepgram.ClientOption{
			ttsdeepgram.WithAPIKey(synth.APIKey),
			ttsdeepgram.WithEncodingInfo(encoding),
		}
		if synth.Voice != "" {
			opts = append(opts, ttsdeepgram.WithVoice(ttsdeepgram.Voice(synth.Voice)))
		}
		if synth.URL != "" {
			opts = append(opts, ttsdeepgram.WithSpeakURL(synth.URL))
		}
		client, err := ttsdeepgram.NewClient(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepgram synthesizer: %w", err)
		}
		return client, nil
	}
	return nil, fmt.Errorf("unknown synthesis provider %q", synth.Provider)
}

func newHistory(cfg *config.Config) (history.Store, error) {
	if cfg.History.Backend != "sqlite" {
		return history.NewMemory(), nil
	}

	var opts []sqlite.StoreOption
	if cfg.History.SessionID != "" {
		opts = append(opts, sqlite.WithSessionID(cfg.History.SessionID))
	}
	store, err := sqlite.Open(cfg.History.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}
