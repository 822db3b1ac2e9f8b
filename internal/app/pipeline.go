package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"whisperer/internal/asr"
	"whisperer/internal/audio/ffmpeg"
	"whisperer/internal/audio/wavfile"
	"whisperer/internal/config"
	"whisperer/internal/metrics"
	"whisperer/internal/notify"
	"whisperer/internal/output"
	"whisperer/internal/session"
)

const requestFailedText = "[request failed]"

// pipeline turns finished utterances into delivered text.
type pipeline struct {
	cfg      config.Config
	tempDir  string
	asr      asr.Transcriber
	sink     output.Sink
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func newPipeline(cfg config.Config, t asr.Transcriber, sink output.Sink, m *metrics.Metrics, logger *slog.Logger) *pipeline {
	return &pipeline{
		cfg:      cfg,
		tempDir:  config.TempDir(&cfg),
		asr:      t,
		sink:     sink,
		notifier: notify.Notifier{Enabled: cfg.Notification},
		metrics:  m,
		log:      logger.With("component", "pipeline"),
		now:      time.Now,
	}
}

func (p *pipeline) ffmpegOptions() ffmpeg.Options {
	return ffmpeg.Options{
		Codec:      p.cfg.CODECS,
		Channels:   p.cfg.Channels,
		SampleRate: p.cfg.SAMPLING_RATE,
		BitRate:    p.cfg.BIT_RATE,
		Depth:      p.cfg.SAMPLING_RATE_DEPTH,
	}
}

// run drains the handoff queue until ctx is done.
func (p *pipeline) run(ctx context.Context, utterances <-chan session.Utterance) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-utterances:
			if err := p.process(ctx, u); err != nil && ctx.Err() == nil {
				p.log.Error("utterance failed", "id", u.ID, "err", err)
			}
		}
	}
}

// process writes u to a temp WAV, transcribes it and delivers the text.
func (p *pipeline) process(ctx context.Context, u session.Utterance) error {
	wavPath := wavfile.TempPath(p.tempDir, "wav")
	if err := wavfile.WriteFile(wavPath, u.Samples, u.SampleRate); err != nil {
		return fmt.Errorf("write recording: %w", err)
	}
	p.log.Debug("recording written", "id", u.ID, "path", wavPath, "duration", u.Duration, "reason", u.Reason)

	text, err := p.transcribe(ctx, wavPath, true, config.NeedsTranscode(&p.cfg))
	if err != nil {
		p.reportFailure(ctx, u.ID, err)
		return err
	}
	if strings.TrimSpace(text) == "" {
		p.log.Info("empty result", "id", u.ID)
		p.notifier.Send("Empty result from ASR")
		return nil
	}

	t := output.Transcript{
		ID:         u.ID,
		Text:       text,
		Reason:     string(u.Reason),
		DurationMs: u.Duration.Milliseconds(),
		Source:     "mic",
		CreatedAt:  p.now(),
	}
	if err := p.sink.Deliver(ctx, t); err != nil {
		p.notifier.Send("Delivery failed")
		return err
	}
	p.log.Info("transcript delivered", "id", u.ID, "chars", len(text))
	p.notifier.Send("Transcription delivered")
	return nil
}

// transcribe uploads src, converting it first when convert is set. A temp
// src is removed or archived afterwards along with the converted file.
func (p *pipeline) transcribe(ctx context.Context, src string, temp, convert bool) (string, error) {
	var wavPath string
	if temp {
		wavPath = src
	}
	upload := src
	var outPath string
	if convert {
		outPath = wavfile.TempPath(p.tempDir, config.ContainerExt(p.cfg.CONTAINER))
		if err := ffmpeg.Convert(ctx, p.log, p.ffmpegOptions(), src, outPath); err != nil {
			handleCache(config.Config{}, p.now(), wavPath, outPath, false, nil, p.log)
			return "", err
		}
		upload = outPath
	}

	start := time.Now()
	text, raw, err := p.asr.Transcribe(ctx, upload)
	if p.metrics != nil {
		p.metrics.RecordTranscription(err == nil, time.Since(start).Seconds())
	}
	handleCache(p.cfg, p.now(), wavPath, outPath, err == nil, raw, p.log)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return text, nil
}

func (p *pipeline) reportFailure(ctx context.Context, id string, err error) {
	if ctx.Err() != nil {
		return
	}
	p.notifier.Send("Upload failed")
	var re *asr.RetryExhaustedError
	if !p.cfg.RequestFailedNotification || !errors.As(err, &re) {
		return
	}
	t := output.Transcript{ID: id, Text: requestFailedText, Source: "mic", CreatedAt: p.now()}
	if derr := p.sink.Deliver(ctx, t); derr != nil {
		p.log.Warn("failure marker not delivered", "id", id, "err", derr)
		return
	}
	p.notifier.Send("Request failed")
}
