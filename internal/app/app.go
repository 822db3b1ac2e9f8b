// Package app wires the capture loop, transcription and delivery into the two
// run modes of the command.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"whisperer/internal/asr"
	"whisperer/internal/audio/mic"
	"whisperer/internal/audio/wavfile"
	"whisperer/internal/config"
	"whisperer/internal/hotkey"
	"whisperer/internal/metrics"
	"whisperer/internal/monitor"
	"whisperer/internal/notify"
	"whisperer/internal/output"
	"whisperer/internal/record"
	"whisperer/internal/session"
	"whisperer/internal/vad"
)

const shutdownTimeout = 3 * time.Second

// RunRecordMode captures from the default microphone until ctx is canceled,
// a quit command arrives or the device fails past its retry budget.
func RunRecordMode(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	log := logger.With("component", "app")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tempDir := config.TempDir(&cfg)
	cleanupOldTempFiles(tempDir, log)

	sc, err := cfg.Session()
	if err != nil {
		return err
	}
	detector, err := vad.NewEnergy(cfg.VADAggressiveness)
	if err != nil {
		return err
	}
	sess, err := session.New(sc, detector)
	if err != nil {
		return err
	}

	transcriber, err := asr.New(cfg, asr.NewHTTPClient(cfg))
	if err != nil {
		return err
	}

	m := metrics.New()
	observers := []record.Observer{m, newCues(cfg)}
	if cfg.LevelMeter {
		observers = append(observers, newLevelLog(sc.ChunkDuration, logger))
	}
	sinks := []output.Sink{output.NewStdout()}
	if cfg.AutoPaste {
		sinks = append(sinks, output.NewPaste())
	}
	if cfg.TranscriptFile != "" {
		sinks = append(sinks, output.NewFile(cfg.TranscriptFile))
	}
	if cfg.RedisAddr != "" {
		sink, client := output.NewRedis(cfg.RedisAddr, cfg.RedisChannel)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis not reachable; transcripts will be retried per utterance", "addr", cfg.RedisAddr, "err", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.MonitorAddr != "" {
		hub := monitor.NewHub(logger)
		srv := monitor.NewServer(cfg.MonitorAddr, m.Registry, hub, logger)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
		observers = append(observers, hub)
		sinks = append(sinks, hub)
	}

	queue := record.NewQueue(cfg.HandoffQueue)
	source := mic.New(cfg.SAMPLING_RATE, 1, sc.ChunkSamples(), logger)
	runner, err := record.NewRunner(source, sess, queue, record.Options{
		RetryCount:       cfg.DeviceRetry,
		RetryDelay:       cfg.DeviceRetryBackoff(),
		CalibrateOnStart: cfg.CalibrateOnStart,
		Observers:        observers,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	defer runner.Close()

	hookActive := needsHook(cfg, sc.Mode)
	runner.SetHoldSupported(hookActive)
	stopKeys, err := hotkey.Register(bindings(cfg), hookActive, hotkeyHandler(runner, hookActive, log), logger)
	switch {
	case errors.Is(err, hotkey.ErrUnsupported):
		runner.SetHoldSupported(false)
		log.Info("global hotkeys unavailable; reading commands from the console",
			"keys", "enter=toggle c=cancel m=mode r=recalibrate f=force q=quit")
		go func() {
			if err := hotkey.ReadConsole(ctx, os.Stdin, consoleHandler(runner, cancel, log)); err != nil {
				log.Warn("console input closed", "err", err)
			}
		}()
	case err != nil:
		return err
	default:
		defer stopKeys()
	}

	p := newPipeline(cfg, transcriber, output.NewMulti(logger, sinks...), m, logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.run(ctx, queue.C())
	}()

	log.Info("ready", "mode", sc.Mode, "record_key", cfg.StartKey, "hook", hookActive, "provider", cfg.Provider)
	err = runner.Run(ctx)
	cancel()
	wg.Wait()

	var devErr *session.AudioDeviceError
	if errors.As(err, &devErr) {
		m.RecordDeviceFailure()
		notify.Notifier{Enabled: cfg.Notification}.Send("Microphone unavailable")
	}
	return err
}

// RunFileMode transcribes an existing audio file and writes the text next to
// it, or to outputPath when set. With segment the WAV input is first cut into
// utterances by the same state machine used for live capture.
func RunFileMode(ctx context.Context, cfg config.Config, inputPath, outputPath string, segment bool, logger *slog.Logger) error {
	log := logger.With("component", "app")
	tempDir := config.TempDir(&cfg)
	cleanupOldTempFiles(tempDir, log)

	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("file '%s' stat failed: %w", inputPath, err)
	}
	transcriber, err := asr.New(cfg, asr.NewHTTPClient(cfg))
	if err != nil {
		return err
	}
	p := newPipeline(cfg, transcriber, output.NewMulti(logger), nil, logger)

	var text string
	if segment {
		text, err = transcribeSegments(ctx, p, cfg, inputPath, log)
	} else {
		convert := config.NeedsTranscode(&cfg) || !strings.EqualFold(filepath.Ext(inputPath), ".wav")
		text, err = p.transcribe(ctx, inputPath, false, convert)
	}
	if err != nil {
		p.notifier.Send("Upload failed")
		return err
	}

	outPath := outputPath
	if outPath == "" {
		base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		outPath = filepath.Join(".", base+".txt")
	}
	if err := os.WriteFile(outPath, []byte(text), 0644); err != nil {
		return err
	}
	log.Info("transcript written", "path", outPath, "chars", len(text))
	return nil
}

func transcribeSegments(ctx context.Context, p *pipeline, cfg config.Config, inputPath string, log *slog.Logger) (string, error) {
	samples, rate, err := wavfile.ReadFile(inputPath)
	if err != nil {
		return "", err
	}
	utterances, stats, err := segmentSamples(cfg, samples, rate)
	if err != nil {
		return "", err
	}
	log.Info("segmented input", "utterances", len(utterances),
		"windows", stats.TotalWindows, "voiced_pct", fmt.Sprintf("%.1f", stats.VoicePercentage))

	var parts []string
	for _, u := range utterances {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		wavPath := wavfile.TempPath(p.tempDir, "wav")
		if err := wavfile.WriteFile(wavPath, u.Samples, u.SampleRate); err != nil {
			return "", fmt.Errorf("write segment: %w", err)
		}
		text, err := p.transcribe(ctx, wavPath, true, config.NeedsTranscode(&cfg))
		if err != nil {
			return "", fmt.Errorf("segment %s: %w", u.ID, err)
		}
		if t := strings.TrimSpace(text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// segmentSamples replays samples through a toggle-mode session that is
// re-armed after every utterance. The tail is zero-padded to a full chunk.
func segmentSamples(cfg config.Config, samples []int16, rate int) ([]session.Utterance, vad.Stats, error) {
	sc, err := cfg.Session()
	if err != nil {
		return nil, vad.Stats{}, err
	}
	sc.Mode = session.ModeToggle
	sc.SampleRate = rate
	energy, err := vad.NewEnergy(cfg.VADAggressiveness)
	if err != nil {
		return nil, vad.Stats{}, err
	}
	detector := vad.NewCounter(energy)
	sess, err := session.New(sc, detector)
	if err != nil {
		return nil, vad.Stats{}, err
	}

	var out []session.Utterance
	collect := func(step session.Step) {
		if step.Utterance != nil {
			out = append(out, *step.Utterance)
		}
	}

	n := sc.ChunkSamples()
	chunk := make([]int16, n)
	chunkMs := sc.ChunkDuration.Milliseconds()
	sess.OnHotkeyStart()
	for i, off := 0, 0; off < len(samples); i, off = i+1, off+n {
		m := copy(chunk, samples[off:])
		for j := m; j < n; j++ {
			chunk[j] = 0
		}
		step, err := sess.OnChunk(chunk, int64(i)*chunkMs)
		if err != nil {
			return nil, vad.Stats{}, err
		}
		collect(step)
		if sess.State() == session.StateIdle {
			sess.OnHotkeyStart()
		}
	}
	collect(sess.OnHotkeyStop())
	return out, detector.Stats(), nil
}
