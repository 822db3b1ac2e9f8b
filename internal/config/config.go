package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"whisperer/internal/session"
	"whisperer/internal/vad"
)

// Config holds configurable parameters.
type Config struct {
	Provider       string  `json:"PROVIDER" yaml:"PROVIDER"`
	APIEndpoint    string  `json:"API_ENDPOINT" yaml:"API_ENDPOINT"`
	Token          string  `json:"TOKEN" yaml:"TOKEN"`
	Model          string  `json:"MODEL" yaml:"MODEL"`
	Language       string  `json:"LANGUAGE" yaml:"LANGUAGE"`
	Prompt         string  `json:"PROMPT" yaml:"PROMPT"`
	TEXTPath       string  `json:"TEXT_PATH" yaml:"TEXT_PATH"`
	ExtraConfig    string  `json:"ExtraConfig" yaml:"ExtraConfig"`
	RequestTimeout int     `json:"REQUEST_TIMEOUT" yaml:"REQUEST_TIMEOUT"`
	MaxRetry       int     `json:"MAX_RETRY" yaml:"MAX_RETRY"`
	RetryBaseDelay float64 `json:"RETRY_BASE_DELAY" yaml:"RETRY_BASE_DELAY"`
	EnableHTTP2    bool    `json:"ENABLE_HTTP2" yaml:"ENABLE_HTTP2"`
	VerifySSL      bool    `json:"VERIFY_SSL" yaml:"VERIFY_SSL"`

	Channels            int    `json:"CHANNELS" yaml:"CHANNELS"`
	SAMPLING_RATE       int    `json:"SAMPLING_RATE" yaml:"SAMPLING_RATE"`
	SAMPLING_RATE_DEPTH int    `json:"SAMPLING_RATE_DEPTH" yaml:"SAMPLING_RATE_DEPTH"`
	BIT_RATE            int    `json:"BIT_RATE" yaml:"BIT_RATE"`
	CODECS              string `json:"CODECS" yaml:"CODECS"`
	CONTAINER           string `json:"CONTAINER" yaml:"CONTAINER"`

	RecordingMode        string  `json:"RECORDING_MODE" yaml:"RECORDING_MODE"`
	VADAggressiveness    int     `json:"VAD_AGGRESSIVENESS" yaml:"VAD_AGGRESSIVENESS"`
	MinRecordingDuration float64 `json:"MIN_RECORDING_DURATION" yaml:"MIN_RECORDING_DURATION"`
	MaxRecordingDuration float64 `json:"MAX_RECORDING_DURATION" yaml:"MAX_RECORDING_DURATION"`
	SilenceTimeout       float64 `json:"SILENCE_TIMEOUT" yaml:"SILENCE_TIMEOUT"`
	CalibrationDuration  float64 `json:"CALIBRATION_DURATION" yaml:"CALIBRATION_DURATION"`
	CalibrateOnStart     bool    `json:"CALIBRATE_ON_START" yaml:"CALIBRATE_ON_START"`
	NoiseThreshold       float64 `json:"NOISE_THRESHOLD" yaml:"NOISE_THRESHOLD"`
	LevelSmoothing       float64 `json:"LEVEL_SMOOTHING" yaml:"LEVEL_SMOOTHING"`
	PeakHold             float64 `json:"PEAK_HOLD" yaml:"PEAK_HOLD"`
	PeakDecay            float64 `json:"PEAK_DECAY" yaml:"PEAK_DECAY"`
	DeviceRetry          int     `json:"DEVICE_RETRY" yaml:"DEVICE_RETRY"`
	DeviceRetryDelay     float64 `json:"DEVICE_RETRY_DELAY" yaml:"DEVICE_RETRY_DELAY"`
	HandoffQueue         int     `json:"HANDOFF_QUEUE" yaml:"HANDOFF_QUEUE"`

	HotKeyHook   bool   `json:"HOTKEY_HOOK" yaml:"HOTKEY_HOOK"`
	StartKey     string `json:"START_KEY" yaml:"START_KEY"`
	CancelKey    string `json:"CANCEL_KEY" yaml:"CANCEL_KEY"`
	ModeKey      string `json:"MODE_KEY" yaml:"MODE_KEY"`
	CalibrateKey string `json:"CALIBRATE_KEY" yaml:"CALIBRATE_KEY"`

	CacheDir                  string `json:"CACHE_DIR" yaml:"CACHE_DIR"`
	KeepCache                 bool   `json:"KEEP_CACHE" yaml:"KEEP_CACHE"`
	Notification              bool   `json:"NOTIFICATION" yaml:"NOTIFICATION"`
	RequestFailedNotification bool   `json:"REQUEST_FAILED_NOTIFICATION" yaml:"REQUEST_FAILED_NOTIFICATION"`
	EnableSounds              bool   `json:"ENABLE_SOUNDS" yaml:"ENABLE_SOUNDS"`
	LevelMeter                bool   `json:"LEVEL_METER" yaml:"LEVEL_METER"`
	AutoPaste                 bool   `json:"AUTO_PASTE" yaml:"AUTO_PASTE"`
	TranscriptFile            string `json:"TRANSCRIPT_FILE" yaml:"TRANSCRIPT_FILE"`
	RedisAddr                 string `json:"REDIS_ADDR" yaml:"REDIS_ADDR"`
	RedisChannel              string `json:"REDIS_CHANNEL" yaml:"REDIS_CHANNEL"`
	MonitorAddr               string `json:"MONITOR_ADDR" yaml:"MONITOR_ADDR"`

	LogLevel  string `json:"LOG_LEVEL" yaml:"LOG_LEVEL"`
	LogFormat string `json:"LOG_FORMAT" yaml:"LOG_FORMAT"`
	LogOutput string `json:"LOG_OUTPUT" yaml:"LOG_OUTPUT"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Provider:       "http",
		APIEndpoint:    "https://api.groq.com/openai/v1/audio/transcriptions",
		Token:          "",
		Model:          "whisper-large-v3",
		Language:       "",
		Prompt:         "",
		TEXTPath:       "text",
		ExtraConfig:    "",
		RequestTimeout: 30,
		MaxRetry:       3,
		RetryBaseDelay: 0.5,
		EnableHTTP2:    true,
		VerifySSL:      true,

		Channels:            1,
		SAMPLING_RATE:       16000,
		SAMPLING_RATE_DEPTH: 16,
		BIT_RATE:            128,
		CODECS:              "pcm",
		CONTAINER:           "wav",

		RecordingMode:        "toggle",
		VADAggressiveness:    3,
		MinRecordingDuration: 0.5,
		MaxRecordingDuration: 60,
		SilenceTimeout:       1.0,
		CalibrationDuration:  2.0,
		CalibrateOnStart:     true,
		NoiseThreshold:       300,
		LevelSmoothing:       0.3,
		PeakHold:             0.5,
		PeakDecay:            0.95,
		DeviceRetry:          3,
		DeviceRetryDelay:     0.5,
		HandoffQueue:         4,

		HotKeyHook:   false,
		StartKey:     "alt+x",
		CancelKey:    "esc",
		ModeKey:      "alt+t",
		CalibrateKey: "alt+c",

		CacheDir:                  "",
		KeepCache:                 false,
		Notification:              false,
		RequestFailedNotification: false,
		EnableSounds:              true,
		LevelMeter:                true,
		AutoPaste:                 true,
		TranscriptFile:            "",
		RedisAddr:                 "",
		RedisChannel:              "whisperer:transcripts",
		MonitorAddr:               "",

		LogLevel:  "info",
		LogFormat: "text",
		LogOutput: "stderr",
	}
}

// Load loads config from a JSON or YAML file if provided. Missing keys keep
// their defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// LoadEnv reads a .env file from the working directory when present and fills
// the token from GROQ_API_KEY or WHISPERER_TOKEN when the config leaves it empty.
func LoadEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if cfg.Token != "" {
		return nil
	}
	for _, key := range []string{"GROQ_API_KEY", "WHISPERER_TOKEN"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			cfg.Token = v
			return nil
		}
	}
	return nil
}

// SaveDefault writes a default config JSON to the provided path.
func SaveDefault(path string) error {
	cfg := DefaultConfig()
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

var allowedCodecs = map[string]bool{
	"opus": true, "libopus": true, "wavpack": true, "aac": true, "ac3": true,
	"eac3": true, "mp3": true, "mp2": true, "mp1": true, "flac": true,
	"alac": true, "pcm": true, "vorbis": true, "libvorbis": true, "vorb": true,
	"adpcm": true, "amr": true,
	"pcm_f32be": true, "pcm_f32le": true, "pcm_f64be": true, "pcm_f64le": true,
	"pcm_s16be": true, "pcm_s16le": true, "pcm_s24be": true, "pcm_s24le": true,
	"pcm_s32be": true, "pcm_s32le": true, "pcm_s64be": true, "pcm_s64le": true,
	"pcm_s8": true,
}

var allowedContainers = map[string]bool{
	"wav": true, "ac3": true, "ac4": true, "ogg": true, "oga": true, "mp3": true,
	"flac": true, "eac3": true, "aac": true, "m4a": true, "mp4": true,
	"opus": true, "webm": true,
	"s8": true, "s16be": true, "s16le": true, "s24be": true, "s24le": true,
	"s32be": true, "s32le": true, "f32be": true, "f32le": true, "f64be": true,
	"f64le": true,
}

// Validate verifies config fields and returns an error if any value is invalid.
func Validate(cfg *Config) error {
	switch strings.ToLower(cfg.Provider) {
	case "http", "openai":
	default:
		return fmt.Errorf("invalid PROVIDER: %s (allowed: http, openai)", cfg.Provider)
	}
	if cfg.Channels < 1 || cfg.Channels > 8 {
		return fmt.Errorf("invalid Channels: %d (allowed 1..8)", cfg.Channels)
	}
	if cfg.SAMPLING_RATE <= 0 {
		return fmt.Errorf("invalid SAMPLING_RATE: %d (must be > 0)", cfg.SAMPLING_RATE)
	}
	allowedDepth := map[int]bool{8: true, 16: true, 24: true, 32: true}
	if !allowedDepth[cfg.SAMPLING_RATE_DEPTH] {
		return fmt.Errorf("invalid SAMPLING_RATE_DEPTH: %d (allowed: 8,16,24,32)", cfg.SAMPLING_RATE_DEPTH)
	}
	if cfg.BIT_RATE <= 0 {
		return fmt.Errorf("invalid BIT_RATE: %d (must be > 0)", cfg.BIT_RATE)
	}
	if !allowedCodecs[strings.ToLower(cfg.CODECS)] {
		return fmt.Errorf("invalid CODECS: %s", cfg.CODECS)
	}
	if !allowedContainers[strings.ToLower(cfg.CONTAINER)] {
		return fmt.Errorf("invalid CONTAINER: %s", cfg.CONTAINER)
	}
	if cfg.MaxRetry < 1 {
		return fmt.Errorf("invalid MAX_RETRY: %d (must be >= 1)", cfg.MaxRetry)
	}
	if cfg.VADAggressiveness < 0 || cfg.VADAggressiveness > vad.MaxAggressiveness {
		return fmt.Errorf("invalid VAD_AGGRESSIVENESS: %d (allowed 0..%d)", cfg.VADAggressiveness, vad.MaxAggressiveness)
	}
	if cfg.DeviceRetry < 0 {
		return fmt.Errorf("invalid DEVICE_RETRY: %d (must be >= 0)", cfg.DeviceRetry)
	}
	if cfg.HandoffQueue < 1 {
		return fmt.Errorf("invalid HANDOFF_QUEUE: %d (must be >= 1)", cfg.HandoffQueue)
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (allowed: text, json)", cfg.LogFormat)
	}
	sc, err := cfg.Session()
	if err != nil {
		return err
	}
	return sc.Validate()
}

// Session derives the immutable recording session configuration.
func (cfg Config) Session() (session.Config, error) {
	mode, err := session.ParseMode(cfg.RecordingMode)
	if err != nil {
		return session.Config{}, err
	}
	sc := session.DefaultConfig()
	sc.Mode = mode
	sc.SampleRate = cfg.SAMPLING_RATE
	sc.MinDuration = seconds(cfg.MinRecordingDuration)
	sc.MaxDuration = seconds(cfg.MaxRecordingDuration)
	sc.SilenceTimeout = seconds(cfg.SilenceTimeout)
	sc.CalibrationWindow = seconds(cfg.CalibrationDuration)
	sc.NoiseThreshold = cfg.NoiseThreshold
	sc.LevelSmoothing = cfg.LevelSmoothing
	sc.PeakHold = seconds(cfg.PeakHold)
	sc.PeakDecay = cfg.PeakDecay
	return sc, nil
}

// DeviceRetryBackoff is the first delay before reopening the microphone.
func (cfg Config) DeviceRetryBackoff() time.Duration {
	return seconds(cfg.DeviceRetryDelay)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// InitCacheDir validates/creates the configured cache directory.
// It mutates cfg.CacheDir to an absolute path or clears it on failure.
func InitCacheDir(cfg *Config, logger *slog.Logger) {
	if cfg.CacheDir == "" {
		return
	}
	log := logger.With("component", "config")
	abs, err := filepath.Abs(cfg.CacheDir)
	if err != nil {
		log.Warn("cache-dir path invalid; falling back to cwd", "dir", cfg.CacheDir, "err", err)
		cfg.CacheDir = ""
		return
	}
	info, err := os.Stat(abs)
	switch {
	case err == nil && !info.IsDir():
		log.Warn("cache-dir is not a directory; falling back to cwd", "dir", abs)
		cfg.CacheDir = ""
	case err == nil:
		cfg.CacheDir = abs
		log.Info("using existing cache-dir", "dir", abs)
	case os.IsNotExist(err):
		if err := os.MkdirAll(abs, 0755); err != nil {
			log.Warn("cannot create cache-dir; falling back to cwd", "dir", abs, "err", err)
			cfg.CacheDir = ""
			return
		}
		cfg.CacheDir = abs
		log.Info("created cache-dir", "dir", abs)
	default:
		log.Warn("cannot access cache-dir; falling back to cwd", "dir", abs, "err", err)
		cfg.CacheDir = ""
	}
}

// TempDir returns the directory to use for temporary files.
func TempDir(cfg *Config) string {
	if cfg.CacheDir != "" {
		return cfg.CacheDir
	}
	cwd, _ := os.Getwd()
	return cwd
}

// ContainerExt maps container names to file extensions (lowercase).
func ContainerExt(container string) string {
	c := strings.ToLower(strings.TrimSpace(container))
	if c == "" {
		return "wav"
	}
	return c
}

// NeedsTranscode reports whether recorded WAV audio must go through ffmpeg
// before upload.
func NeedsTranscode(cfg *Config) bool {
	codec := strings.ToLower(cfg.CODECS)
	return ContainerExt(cfg.CONTAINER) != "wav" || (codec != "pcm" && codec != "pcm_s16le")
}
