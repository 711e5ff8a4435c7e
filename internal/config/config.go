package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/invopop/jsonschema"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/koscakluka/ema-voice/internal/utils"
)

// Config is the complete configuration of the voice pipeline.
type Config struct {
	Audio         AudioConfig         `yaml:"audio" toml:"audio" json:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription" toml:"transcription" json:"transcription"`
	Generation    GenerationConfig    `yaml:"generation" toml:"generation" json:"generation"`
	Synthesis     SynthesisConfig     `yaml:"synthesis" toml:"synthesis" json:"synthesis"`
	Playback      PlaybackConfig      `yaml:"playback" toml:"playback" json:"playback"`
	History       HistoryConfig       `yaml:"history" toml:"history" json:"history"`
	Server        ServerConfig        `yaml:"server" toml:"server" json:"server"`
	Log           LogConfig           `yaml:"log" toml:"log" json:"log"`
}

type AudioConfig struct {
	Backend          string        `yaml:"backend" toml:"backend" json:"backend" jsonschema:"enum=miniaudio,enum=portaudio"`
	SampleRate       int           `yaml:"sample_rate" toml:"sample_rate" json:"sample_rate"`
	FrameDuration    time.Duration `yaml:"frame_duration" toml:"frame_duration" json:"frame_duration" jsonschema:"description=Length of one audio frame sent for transcription such as 20ms"`
	BufferSize       int           `yaml:"buffer_size" toml:"buffer_size" json:"buffer_size" jsonschema:"description=Frames per buffer for portaudio"`
	Device           string        `yaml:"device" toml:"device" json:"device,omitempty"`
	NoiseSuppression bool          `yaml:"noise_suppression" toml:"noise_suppression" json:"noise_suppression"`
	EchoCancellation bool          `yaml:"echo_cancellation" toml:"echo_cancellation" json:"echo_cancellation"`
	AutoGainControl  bool          `yaml:"auto_gain_control" toml:"auto_gain_control" json:"auto_gain_control"`
}

type TranscriptionConfig struct {
	Provider          string        `yaml:"provider" toml:"provider" json:"provider" jsonschema:"enum=native,enum=deepgram"`
	URL               string        `yaml:"url" toml:"url" json:"url"`
	APIKey            string        `yaml:"api_key" toml:"api_key" json:"api_key,omitempty"`
	Model             string        `yaml:"model" toml:"model" json:"model,omitempty"`
	Language          string        `yaml:"language" toml:"language" json:"language,omitempty"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" toml:"heartbeat_interval" json:"heartbeat_interval"`
	StaleAfter        time.Duration `yaml:"stale_after" toml:"stale_after" json:"stale_after"`
	Retry             RetryConfig   `yaml:"retry" toml:"retry" json:"retry"`
}

type RetryConfig struct {
	Initial     time.Duration `yaml:"initial" toml:"initial" json:"initial"`
	Max         time.Duration `yaml:"max" toml:"max" json:"max"`
	MaxAttempts int           `yaml:"max_attempts" toml:"max_attempts" json:"max_attempts"`
}

type GenerationConfig struct {
	Provider     string        `yaml:"provider" toml:"provider" json:"provider" jsonschema:"enum=groq,enum=ollama,enum=gemini,enum=remote"`
	URL          string        `yaml:"url" toml:"url" json:"url,omitempty"`
	APIKey       string        `yaml:"api_key" toml:"api_key" json:"api_key,omitempty"`
	Model        string        `yaml:"model" toml:"model" json:"model,omitempty"`
	SystemPrompt string        `yaml:"system_prompt" toml:"system_prompt" json:"system_prompt,omitempty"`
	Timeout      time.Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
	ContextTurns int           `yaml:"context_turns" toml:"context_turns" json:"context_turns"`
}

type SynthesisConfig struct {
	// Enabled is a pointer so a config file can turn speech off explicitly.
	Enabled       *bool  `yaml:"enabled" toml:"enabled" json:"enabled"`
	Provider      string `yaml:"provider" toml:"provider" json:"provider" jsonschema:"enum=deepgram,enum=piper,enum=remote"`
	URL           string `yaml:"url" toml:"url" json:"url,omitempty"`
	APIKey        string `yaml:"api_key" toml:"api_key" json:"api_key,omitempty"`
	Voice         string `yaml:"voice" toml:"voice" json:"voice,omitempty"`
	SampleRate    int    `yaml:"sample_rate" toml:"sample_rate" json:"sample_rate"`
	PiperBinary   string `yaml:"piper_binary" toml:"piper_binary" json:"piper_binary,omitempty"`
	PiperModelDir string `yaml:"piper_model_dir" toml:"piper_model_dir" json:"piper_model_dir,omitempty"`
}

type PlaybackConfig struct {
	MinWords                  int           `yaml:"min_words" toml:"min_words" json:"min_words"`
	Lookahead                 int           `yaml:"lookahead" toml:"lookahead" json:"lookahead"`
	SynthesisTimeout          time.Duration `yaml:"synthesis_timeout" toml:"synthesis_timeout" json:"synthesis_timeout"`
	BargeInInterruptsPlayback bool          `yaml:"barge_in_interrupts_playback" toml:"barge_in_interrupts_playback" json:"barge_in_interrupts_playback"`
}

type HistoryConfig struct {
	Backend string `yaml:"backend" toml:"backend" json:"backend" jsonschema:"enum=memory,enum=sqlite"`
	Path    string `yaml:"path" toml:"path" json:"path,omitempty"`
	// SessionID resumes an earlier sqlite session when set.
	SessionID string `yaml:"session_id" toml:"session_id" json:"session_id,omitempty"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Address string `yaml:"address" toml:"address" json:"address"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// DefaultNativeTranscriptionURL is where the bundled transcription server
// listens by default.
const DefaultNativeTranscriptionURL = "ws://localhost:8765/transcribe"

// Endpoint is the transcription URL to dial. Empty means the provider's
// default.
func (c TranscriptionConfig) Endpoint() string {
	if c.URL == "" && c.Provider == "native" {
		return DefaultNativeTranscriptionURL
	}
	return c.URL
}

// Environment variables that fill empty API keys.
const (
	EnvDeepgramAPIKey = "DEEPGRAM_API_KEY"
	EnvGroqAPIKey     = "GROQ_API_KEY"
	EnvGeminiAPIKey   = "GEMINI_API_KEY"
)

func Default() Config {
	return Config{
		Audio: AudioConfig{
			Backend:          "miniaudio",
			SampleRate:       16000,
			FrameDuration:    20 * time.Millisecond,
			BufferSize:       1024,
			NoiseSuppression: true,
			EchoCancellation: true,
			AutoGainControl:  true,
		},
		Transcription: TranscriptionConfig{
			Provider:          "native",
			HeartbeatInterval: 15 * time.Second,
			StaleAfter:        30 * time.Second,
			Retry: RetryConfig{
				Initial:     2 * time.Second,
				Max:         10 * time.Second,
				MaxAttempts: 3,
			},
		},
		Generation: GenerationConfig{
			Provider:     "ollama",
			Timeout:      60 * time.Second,
			ContextTurns: 10,
		},
		Synthesis: SynthesisConfig{
			Enabled:    utils.Ptr(true),
			Provider:   "deepgram",
			SampleRate: 24000,
		},
		Playback: PlaybackConfig{
			MinWords:         3,
			Lookahead:        2,
			SynthesisTimeout: 10 * time.Second,
		},
		History: HistoryConfig{
			Backend: "memory",
			Path:    "ema-voice.db",
		},
		Server: ServerConfig{
			Address: "127.0.0.1:8080",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path over the defaults. The format follows
// the extension: .yaml, .yml or .toml. An empty path loads only defaults.
// envFiles are loaded with godotenv first; missing files are skipped.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	config := Default()
	if path != "" {
		if err := decodeFile(path, &config); err != nil {
			return nil, err
		}
	}
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func loadEnvFiles(envFiles ...string) error {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}
	return nil
}

func decodeFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	case ".toml":
		_, err = toml.Decode(string(data), config)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if c.Transcription.APIKey == "" && c.Transcription.Provider == "deepgram" {
		c.Transcription.APIKey = os.Getenv(EnvDeepgramAPIKey)
	}
	if c.Synthesis.APIKey == "" && c.Synthesis.Provider == "deepgram" {
		c.Synthesis.APIKey = os.Getenv(EnvDeepgramAPIKey)
	}
	if c.Generation.APIKey == "" {
		switch c.Generation.Provider {
		case "groq":
			c.Generation.APIKey = os.Getenv(EnvGroqAPIKey)
		case "gemini":
			c.Generation.APIKey = os.Getenv(EnvGeminiAPIKey)
		}
	}
}

// SpeechEnabled reports whether responses are spoken.
func (c *Config) SpeechEnabled() bool {
	return c.Synthesis.Enabled == nil || *c.Synthesis.Enabled
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(oneOf(c.Audio.Backend, "miniaudio", "portaudio"),
		"audio.backend must be miniaudio or portaudio, got %q", c.Audio.Backend)
	check(c.Audio.SampleRate > 0, "audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	check(c.Audio.FrameDuration > 0, "audio.frame_duration must be positive, got %s", c.Audio.FrameDuration)

	check(oneOf(c.Transcription.Provider, "native", "deepgram"),
		"transcription.provider must be native or deepgram, got %q", c.Transcription.Provider)
	check(c.Transcription.Provider != "deepgram" || c.Transcription.APIKey != "",
		"transcription.api_key or %s is required for deepgram", EnvDeepgramAPIKey)
	check(c.Transcription.Retry.MaxAttempts >= 0,
		"transcription.retry.max_attempts cannot be negative, got %d", c.Transcription.Retry.MaxAttempts)

	switch c.Generation.Provider {
	case "groq":
		check(c.Generation.APIKey != "", "generation.api_key or %s is required for groq", EnvGroqAPIKey)
	case "gemini":
		check(c.Generation.APIKey != "", "generation.api_key or %s is required for gemini", EnvGeminiAPIKey)
	case "remote":
		check(c.Generation.URL != "", "generation.url is required for the remote provider")
	case "ollama":
	default:
		errs = append(errs, fmt.Errorf("generation.provider must be groq, ollama, gemini or remote, got %q", c.Generation.Provider))
	}
	check(c.Generation.Timeout > 0, "generation.timeout must be positive, got %s", c.Generation.Timeout)
	check(c.Generation.ContextTurns >= 0, "generation.context_turns cannot be negative, got %d", c.Generation.ContextTurns)

	if c.SpeechEnabled() {
		switch c.Synthesis.Provider {
		case "deepgram":
			check(c.Synthesis.APIKey != "", "synthesis.api_key or %s is required for deepgram", EnvDeepgramAPIKey)
		case "piper":
			check(c.Synthesis.Voice != "", "synthesis.voice must name a piper model")
		case "remote":
			check(c.Synthesis.URL != "", "synthesis.url is required for the remote provider")
		default:
			errs = append(errs, fmt.Errorf("synthesis.provider must be deepgram, piper or remote, got %q", c.Synthesis.Provider))
		}
		check(c.Synthesis.SampleRate > 0, "synthesis.sample_rate must be positive, got %d", c.Synthesis.SampleRate)
	}

	check(c.Playback.MinWords > 0, "playback.min_words must be positive, got %d", c.Playback.MinWords)
	check(c.Playback.Lookahead > 0, "playback.lookahead must be positive, got %d", c.Playback.Lookahead)
	check(c.Playback.SynthesisTimeout > 0, "playback.synthesis_timeout must be positive, got %s", c.Playback.SynthesisTimeout)

	check(oneOf(c.History.Backend, "memory", "sqlite"),
		"history.backend must be memory or sqlite, got %q", c.History.Backend)
	check(c.History.Backend != "sqlite" || c.History.Path != "", "history.path is required for sqlite")

	check(!c.Server.Enabled || c.Server.Address != "", "server.address cannot be empty when the server is enabled")
	check(oneOf(c.Log.Level, "debug", "info", "warn", "error"),
		"log.level must be debug, info, warn or error, got %q", c.Log.Level)

	return errors.Join(errs...)
}

func oneOf(value string, allowed ...string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}

// Schema returns the JSON schema of the config file.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&Config{})
	schema.Title = "ema-voice configuration"
	return json.MarshalIndent(schema, "", "  ")
}
