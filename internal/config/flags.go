package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// FlagValues holds parsed flags with explicit set tracking. Only flags the
// user actually passed are applied over the loaded config.
type FlagValues struct {
	staged  Config
	applies []func(dst *Config)
	set     map[string]bool

	OutputPath    string
	OutputPathSet bool
	Segment       bool
	SegmentSet    bool
}

// setFlag is a flag.Value that reports when the user passed it.
type setFlag[T any] struct {
	target *T
	parse  func(string) (T, error)
	onSet  func()
	isBool bool
}

func (f *setFlag[T]) String() string {
	if f == nil || f.target == nil {
		return ""
	}
	return fmt.Sprint(*f.target)
}

func (f *setFlag[T]) Set(v string) error {
	n, err := f.parse(v)
	if err != nil {
		return err
	}
	*f.target = n
	if f.onSet != nil {
		f.onSet()
	}
	return nil
}

// IsBoolFlag lets "-flag" stand for "-flag=true" on boolean flags.
func (f *setFlag[T]) IsBoolFlag() bool { return f.isBool }

func parseString(v string) (string, error) { return v, nil }

func parseFloat(v string) (float64, error) { return strconv.ParseFloat(v, 64) }

func parseBoolExt(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y":
		return true, nil
	case "0", "false", "no", "n":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean: %s", v)
}

func (fv *FlagValues) mark(name string, apply func(dst *Config)) func() {
	return func() {
		if !fv.set[name] {
			fv.set[name] = true
			fv.applies = append(fv.applies, apply)
		}
	}
}

// bind registers a flag that stages its value and, once set, copies it onto
// the same field of the destination config.
func bind[T any](fv *FlagValues, fs *flag.FlagSet, name, usage string, parse func(string) (T, error), field func(*Config) *T) {
	f := &setFlag[T]{target: field(&fv.staged), parse: parse}
	f.onSet = fv.mark(name, func(dst *Config) { *field(dst) = *field(&fv.staged) })
	_, f.isBool = any(f.target).(*bool)
	fs.Var(f, name, usage)
}

func (fv *FlagValues) str(fs *flag.FlagSet, name, usage string, field func(*Config) *string) {
	bind(fv, fs, name, usage, parseString, field)
}

func (fv *FlagValues) num(fs *flag.FlagSet, name, usage string, field func(*Config) *int) {
	bind(fv, fs, name, usage, strconv.Atoi, field)
}

func (fv *FlagValues) float(fs *flag.FlagSet, name, usage string, field func(*Config) *float64) {
	bind(fv, fs, name, usage, parseFloat, field)
}

func (fv *FlagValues) boolean(fs *flag.FlagSet, name, usage string, field func(*Config) *bool) {
	bind(fv, fs, name, usage, parseBoolExt, field)
}

// BindFlags registers all flags and returns the populated FlagValues.
func BindFlags(fs *flag.FlagSet) *FlagValues {
	fv := &FlagValues{set: make(map[string]bool)}

	fv.str(fs, "provider", "transcription provider (http, openai)", func(c *Config) *string { return &c.Provider })
	fv.str(fs, "api-endpoint", "API endpoint URL (openai provider: base URL)", func(c *Config) *string { return &c.APIEndpoint })
	fv.str(fs, "token", "Authorization token", func(c *Config) *string { return &c.Token })
	fv.str(fs, "model", "model", func(c *Config) *string { return &c.Model })
	fv.str(fs, "language", "language", func(c *Config) *string { return &c.Language })
	fv.str(fs, "prompt", "prompt", func(c *Config) *string { return &c.Prompt })
	fv.str(fs, "text-path", "JSON path to extract text", func(c *Config) *string { return &c.TEXTPath })
	fv.str(fs, "extra-config", "extra JSON config to merge into request payload", func(c *Config) *string { return &c.ExtraConfig })
	fv.num(fs, "request-timeout", "request timeout seconds", func(c *Config) *int { return &c.RequestTimeout })
	fv.num(fs, "max-retry", "max retry attempts", func(c *Config) *int { return &c.MaxRetry })
	fv.float(fs, "retry-base-delay", "retry base delay seconds (float)", func(c *Config) *float64 { return &c.RetryBaseDelay })
	fv.boolean(fs, "enable-http2", "enable HTTP/2 (true/false)", func(c *Config) *bool { return &c.EnableHTTP2 })
	fv.boolean(fs, "verify-ssl", "verify TLS certificates (true/false)", func(c *Config) *bool { return &c.VerifySSL })

	fv.str(fs, "codecs", "upload codec (e.g. PCM, OPUS, FLAC)", func(c *Config) *string { return &c.CODECS })
	fv.str(fs, "container", "upload container (e.g. WAV, OGG, FLAC)", func(c *Config) *string { return &c.CONTAINER })
	fv.num(fs, "channels", "upload channels (int)", func(c *Config) *int { return &c.Channels })
	fv.num(fs, "sampling-rate", "capture sampling rate (Hz)", func(c *Config) *int { return &c.SAMPLING_RATE })
	// deprecated alias
	fv.num(fs, "rate", "deprecated: rate (Hz), use -sampling-rate", func(c *Config) *int { return &c.SAMPLING_RATE })
	fv.num(fs, "sampling-rate-depth", "upload sample depth (bits)", func(c *Config) *int { return &c.SAMPLING_RATE_DEPTH })
	fv.num(fs, "bit-rate", "upload bit rate (kbps)", func(c *Config) *int { return &c.BIT_RATE })

	fv.str(fs, "mode", "recording mode (toggle, hold)", func(c *Config) *string { return &c.RecordingMode })
	fv.num(fs, "vad", "VAD aggressiveness (0-3)", func(c *Config) *int { return &c.VADAggressiveness })
	fv.float(fs, "min-duration", "minimum recording seconds", func(c *Config) *float64 { return &c.MinRecordingDuration })
	fv.float(fs, "max-duration", "maximum recording seconds", func(c *Config) *float64 { return &c.MaxRecordingDuration })
	fv.float(fs, "silence-timeout", "trailing silence seconds that end a recording", func(c *Config) *float64 { return &c.SilenceTimeout })
	fv.float(fs, "calibration", "calibration window seconds", func(c *Config) *float64 { return &c.CalibrationDuration })
	fv.boolean(fs, "calibrate", "calibrate on start (true/false)", func(c *Config) *bool { return &c.CalibrateOnStart })
	fv.float(fs, "noise-threshold", "noise threshold used before calibration", func(c *Config) *float64 { return &c.NoiseThreshold })
	fv.num(fs, "device-retry", "microphone reopen attempts", func(c *Config) *int { return &c.DeviceRetry })

	fv.str(fs, "start-key", "record hotkey", func(c *Config) *string { return &c.StartKey })
	fv.str(fs, "cancel-key", "cancel hotkey", func(c *Config) *string { return &c.CancelKey })
	fv.str(fs, "mode-key", "switch toggle/hold hotkey", func(c *Config) *string { return &c.ModeKey })
	fv.str(fs, "calibrate-key", "recalibrate hotkey", func(c *Config) *string { return &c.CalibrateKey })
	fv.boolean(fs, "hotkeyhook", "use low-level keyboard hook (true/false)", func(c *Config) *bool { return &c.HotKeyHook })

	fv.str(fs, "cache-dir", "cache directory", func(c *Config) *string { return &c.CacheDir })
	fv.boolean(fs, "keep-cache", "keep cache files (true/false)", func(c *Config) *bool { return &c.KeepCache })
	fv.boolean(fs, "notification", "enable notifications (true/false)", func(c *Config) *bool { return &c.Notification })
	fv.boolean(fs, "enable-sounds", "beep when a recording starts and finishes (true/false)", func(c *Config) *bool { return &c.EnableSounds })
	fv.boolean(fs, "level-meter", "log the input level while listening (true/false)", func(c *Config) *bool { return &c.LevelMeter })
	fv.boolean(fs, "auto-paste", "paste transcripts into the focused window (true/false)", func(c *Config) *bool { return &c.AutoPaste })
	fv.str(fs, "transcript-file", "append transcripts to this file", func(c *Config) *string { return &c.TranscriptFile })
	fv.str(fs, "redis-addr", "publish transcripts to this redis server", func(c *Config) *string { return &c.RedisAddr })
	fv.str(fs, "monitor-addr", "serve /metrics and /ws on this address", func(c *Config) *string { return &c.MonitorAddr })
	fv.str(fs, "log-level", "log level (debug, info, warn, error)", func(c *Config) *string { return &c.LogLevel })
	fv.str(fs, "log-format", "log format (text, json)", func(c *Config) *string { return &c.LogFormat })

	fs.Var(&setFlag[string]{target: &fv.OutputPath, parse: parseString, onSet: func() { fv.OutputPathSet = true }}, "output", "output txt path for -file mode")
	fs.Var(&setFlag[bool]{target: &fv.Segment, parse: parseBoolExt, onSet: func() { fv.SegmentSet = true }, isBool: true}, "segment", "split a -file WAV into utterances before upload")

	return fv
}

// ApplyFlags applies present flags to the config.
func ApplyFlags(cfg *Config, fv *FlagValues) {
	for _, apply := range fv.applies {
		apply(cfg)
	}
}

// AnySet reports whether any flag was explicitly set by the user.
func (fv *FlagValues) AnySet() bool {
	return len(fv.applies) > 0 || fv.OutputPathSet || fv.SegmentSet
}
