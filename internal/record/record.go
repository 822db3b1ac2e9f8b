// Package record runs the capture loop: it pulls chunks from the microphone,
// feeds them to a session.Session and hands finished utterances off.
package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"whisperer/internal/session"
)

// Source supplies fixed-size PCM chunks. Read must block for at most about one
// chunk period and fill buf completely or return an error.
type Source interface {
	Open(ctx context.Context) error
	Read(buf []int16) error
	Close() error
}

// Handoff receives completed utterances. Submit must not block.
type Handoff interface {
	Submit(u session.Utterance) error
}

// Observer is notified from the capture goroutine. Implementations must be fast.
type Observer interface {
	OnStep(step session.Step)
	OnDeviceRetry(attempt int, cause error)
	OnHandoffError(err error)
}

// Action is a user-issued command funneled into the capture loop.
type Action int

const (
	ActionStart Action = iota + 1
	ActionStop
	ActionToggle
	ActionForce
	ActionCancel
	ActionSwitchMode
	ActionRecalibrate
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	case ActionToggle:
		return "toggle"
	case ActionForce:
		return "force"
	case ActionCancel:
		return "cancel"
	case ActionSwitchMode:
		return "switch_mode"
	case ActionRecalibrate:
		return "recalibrate"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Event carries one Action.
type Event struct {
	Action Action
	At     time.Time
}

// Options tune a Runner.
type Options struct {
	RetryCount       int
	RetryDelay       time.Duration
	EventQueue       int
	CalibrateOnStart bool
	Observers        []Observer
	Logger           *slog.Logger
}

// Runner is the single writer of a session. All session mutation happens on
// the goroutine executing Run or Calibrate.
type Runner struct {
	src       Source
	sess      *session.Session
	handoff   Handoff
	observers []Observer
	events    chan Event
	opts      Options
	log       *slog.Logger

	buf    []int16
	opened bool
	start  time.Time
	mode   atomic.Int32
	noHold atomic.Bool
}

// NewRunner wires a source, a session and a handoff.
func NewRunner(src Source, sess *session.Session, handoff Handoff, opts Options) (*Runner, error) {
	if src == nil || sess == nil || handoff == nil {
		return nil, errors.New("runner requires a source, a session and a handoff")
	}
	if opts.RetryCount < 0 {
		return nil, fmt.Errorf("invalid retry count: %d", opts.RetryCount)
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.EventQueue <= 0 {
		opts.EventQueue = 32
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		src:       src,
		sess:      sess,
		handoff:   handoff,
		observers: opts.Observers,
		events:    make(chan Event, opts.EventQueue),
		opts:      opts,
		log:       logger.With("component", "record"),
		buf:       make([]int16, sess.Config().ChunkSamples()),
		start:     time.Now(),
	}
	r.mode.Store(int32(sess.Config().Mode))
	return r, nil
}

// Send enqueues an event without blocking. It is safe to call from any
// goroutine and reports false when the queue is full.
func (r *Runner) Send(ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case r.events <- ev:
		return true
	default:
		return false
	}
}

// Mode returns the session's recording mode. Safe for concurrent use.
func (r *Runner) Mode() session.Mode {
	return session.Mode(r.mode.Load())
}

// Run opens the source and processes chunks until ctx is done or the device
// fails past its retry budget. A recording in progress at shutdown is
// discarded.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.ensureOpen(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer r.closeSource()

	if r.opts.CalibrateOnStart {
		if err := r.calibrate(ctx, 0); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ce *session.CalibrationError
			if !errors.As(err, &ce) {
				return err
			}
			r.log.Warn("calibration failed; using default threshold", "err", err, "threshold", r.sess.Threshold())
		}
	}

	r.log.Info("capture started", "mode", r.Mode().String(), "threshold", r.sess.Threshold())
	for {
		if ctx.Err() != nil {
			r.shutdown()
			return nil
		}
		r.drainEvents(ctx)

		if err := r.src.Read(r.buf); err != nil {
			if ctx.Err() != nil {
				r.shutdown()
				return nil
			}
			r.log.Warn("stream read failed", "err", err)
			if err := r.reconnect(ctx, err); err != nil {
				r.notify(r.sess.Reset())
				if ctx.Err() != nil {
					return nil
				}
				r.log.Error("audio device lost", "err", err)
				return err
			}
			continue
		}

		step, err := r.sess.OnChunk(r.buf, r.now())
		if err != nil {
			r.log.Debug("chunk skipped", "err", err)
			continue
		}
		r.handle(step)
	}
}

// Calibrate measures ambient noise for window (the configured window when
// zero). It must not run concurrently with Run; use ActionRecalibrate instead.
func (r *Runner) Calibrate(ctx context.Context, window time.Duration) error {
	if err := r.ensureOpen(ctx); err != nil {
		return err
	}
	return r.calibrate(ctx, window)
}

// Close releases the audio device.
func (r *Runner) Close() error {
	return r.closeSource()
}

func (r *Runner) calibrate(ctx context.Context, window time.Duration) error {
	cfg := r.sess.Config()
	if window <= 0 {
		window = cfg.CalibrationWindow
	}
	if err := r.sess.StartCalibration(window); err != nil {
		return err
	}
	r.log.Info("calibrating microphone; stay quiet", "window", window)

	deadline := time.Now().Add(window + window/2 + cfg.ChunkDuration)
	for r.sess.Calibrating() {
		if ctx.Err() != nil {
			r.notify(r.sess.Reset())
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			break
		}
		r.drainEvents(ctx)
		if err := r.src.Read(r.buf); err != nil {
			r.log.Debug("calibration read failed", "err", err)
			sleepCtx(ctx, cfg.ChunkDuration)
			continue
		}
		step, err := r.sess.OnChunk(r.buf, r.now())
		if err != nil {
			continue
		}
		r.notify(step)
	}

	if err := r.sess.FinishCalibration(); err != nil {
		return err
	}
	c := r.sess.Calibration()
	r.log.Info("calibration complete", "noise", c.Noise, "threshold", c.Threshold, "chunks", c.Chunks)
	return nil
}

func (r *Runner) drainEvents(ctx context.Context) {
	for {
		select {
		case ev := <-r.events:
			r.apply(ctx, ev)
		default:
			return
		}
	}
}

func (r *Runner) apply(ctx context.Context, ev Event) {
	var step session.Step
	switch ev.Action {
	case ActionStart:
		step = r.sess.OnHotkeyStart()
	case ActionStop:
		step = r.sess.OnHotkeyStop()
	case ActionToggle:
		step = r.sess.OnHotkeyToggle()
	case ActionForce:
		step = r.sess.OnForceStart()
	case ActionCancel:
		step = r.sess.Cancel()
	case ActionSwitchMode:
		r.switchMode()
		return
	case ActionRecalibrate:
		if r.sess.Calibrating() {
			return
		}
		if err := r.calibrate(ctx, 0); err != nil {
			r.log.Warn("recalibration failed", "err", err)
		}
		return
	default:
		r.log.Debug("unknown event", "action", ev.Action.String())
		return
	}
	r.log.Debug("event applied", "action", ev.Action.String(), "from", step.From.String(), "to", step.To.String())
	r.handle(step)
}

// SetHoldSupported reports whether key releases reach the runner. Without
// them switching into hold mode is refused. Safe to call from any goroutine.
func (r *Runner) SetHoldSupported(ok bool) {
	r.noHold.Store(!ok)
}

func (r *Runner) switchMode() {
	cfg := r.sess.Config()
	next := session.ModeHold
	if cfg.Mode == session.ModeHold {
		next = session.ModeToggle
	}
	if next == session.ModeHold && r.noHold.Load() {
		r.log.Warn("mode switch refused; hold mode needs key release events", "mode", cfg.Mode.String())
		return
	}
	if err := r.sess.Reconfigure(cfg.WithMode(next)); err != nil {
		r.log.Warn("mode switch refused", "err", err)
		return
	}
	r.mode.Store(int32(next))
	r.log.Info("recording mode switched", "mode", next.String())
}

func (r *Runner) handle(step session.Step) {
	r.notify(step)
	if step.Discarded {
		r.log.Info("recording discarded", "reason", string(step.Reason))
	}
	if step.Utterance == nil {
		return
	}
	u := *step.Utterance
	r.log.Info("utterance ready", "id", u.ID, "duration", u.Duration, "reason", string(u.Reason))
	if err := r.handoff.Submit(u); err != nil {
		herr := &session.HandoffError{UtteranceID: u.ID, Err: err}
		r.log.Error("handoff failed", "err", herr)
		for _, o := range r.observers {
			o.OnHandoffError(herr)
		}
	}
}

func (r *Runner) notify(step session.Step) {
	for _, o := range r.observers {
		o.OnStep(step)
	}
}

func (r *Runner) shutdown() {
	if r.sess.Calibrating() || r.sess.State() != session.StateIdle {
		r.notify(r.sess.Reset())
	}
	r.log.Info("capture stopped")
}

func (r *Runner) ensureOpen(ctx context.Context) error {
	if r.opened {
		return nil
	}
	return r.reconnect(ctx, nil)
}

// reconnect opens the source with exponential backoff. After a read failure
// (cause != nil) the device is closed first, every attempt is delayed and the
// failed read counts as the first attempt.
func (r *Runner) reconnect(ctx context.Context, cause error) error {
	attempts := r.opts.RetryCount + 1
	first := 1
	if cause != nil {
		_ = r.closeSource()
		first = 2
	}
	lastErr := cause
	delay := r.opts.RetryDelay
	for i := first; i <= attempts; i++ {
		if i > 1 {
			for _, o := range r.observers {
				o.OnDeviceRetry(i-1, lastErr)
			}
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}
		err := r.src.Open(ctx)
		if err == nil {
			r.opened = true
			if cause != nil {
				r.log.Info("audio device reopened", "attempt", i)
			}
			return nil
		}
		lastErr = err
		r.log.Warn("audio device open failed", "attempt", i, "err", err)
	}
	op := "open"
	if cause != nil {
		op = "read"
	}
	return &session.AudioDeviceError{Op: op, Attempts: attempts, Err: lastErr}
}

func (r *Runner) closeSource() error {
	if !r.opened {
		return nil
	}
	r.opened = false
	return r.src.Close()
}

func (r *Runner) now() int64 {
	return time.Since(r.start).Milliseconds()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
