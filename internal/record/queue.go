package record

import (
	"errors"

	"whisperer/internal/session"
)

// ErrQueueFull is returned when the transcription queue cannot take more work.
var ErrQueueFull = errors.New("transcription queue full")

// Queue is a bounded, non-blocking Handoff backed by a channel.
type Queue struct {
	ch chan session.Utterance
}

// NewQueue returns a queue holding up to size utterances.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{ch: make(chan session.Utterance, size)}
}

// Submit enqueues u or fails immediately with ErrQueueFull.
func (q *Queue) Submit(u session.Utterance) error {
	select {
	case q.ch <- u:
		return nil
	default:
		return ErrQueueFull
	}
}

// C is the consumer side of the queue.
func (q *Queue) C() <-chan session.Utterance {
	return q.ch
}

// Len returns the number of queued utterances.
func (q *Queue) Len() int {
	return len(q.ch)
}
