// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

package compliance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ringBufferSize bounds the short per-job catch-up buffer the hub keeps for
// late-but-still-live subscribers. Subscribers that join after the buffer
// has rolled past a job's earliest event receive only the events still in
// the buffer; the hub does not replay dropped events from the job store.
const ringBufferSize = 64

// eventBox pairs an Event with a generated identifier and emission time,
// mirroring the wire shape a subscriber receives.
type eventBox struct {
	ID        string
	Event     Event
	CreatedAt time.Time
}

type jobStream struct {
	mu        sync.Mutex
	buffer    []eventBox
	seq       int64
	subs      map[chan eventBox]struct{}
	terminal  bool
}

func newJobStream() *jobStream {
	return &jobStream{subs: make(map[chan eventBox]struct{})}
}

// EventHub publishes per-job progress/completion events to subscribers.
// Per-job buffers are written only by the supervisor; subscribers are
// read-only, matching the ownership rule in the concurrency model.
type EventHub struct {
	mu     sync.Mutex
	jobs   map[string]*jobStream
}

// NewEventHub constructs an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{jobs: make(map[string]*jobStream)}
}

func (h *EventHub) stream(jobID string) *jobStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.jobs[jobID]
	if !ok {
		s = newJobStream()
		h.jobs[jobID] = s
	}
	return s
}

// Publish appends kind/payload to jobID's stream, in emission order, and
// fans it out to every currently-subscribed channel. Only the supervisor
// should call Publish.
func (h *EventHub) Publish(jobID string, kind EventKind, payload any) {
	s := h.stream(jobID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	box := eventBox{
		ID: uuid.NewString(),
		Event: Event{
			JobID:   jobID,
			Seq:     s.seq,
			Kind:    kind,
			Payload: payload,
		},
		CreatedAt: time.Now(),
	}
	box.Event.CreatedAt = box.CreatedAt

	s.buffer = append(s.buffer, box)
	if len(s.buffer) > ringBufferSize {
		s.buffer = s.buffer[len(s.buffer)-ringBufferSize:]
	}
	if kind == EventCompleted || kind == EventFailed {
		s.terminal = true
	}

	for ch := range s.subs {
		select {
		case ch <- box:
		default:
			// Slow subscriber; drop rather than block the supervisor.
		}
	}

	if s.terminal {
		for ch := range s.subs {
			close(ch)
		}
		s.subs = make(map[chan eventBox]struct{})
	}
}

// Subscribe returns a channel of events for jobID starting from the
// beginning of the retained buffer, and an unsubscribe func. If the stream
// already reached a terminal event, the channel delivers that terminal
// event (replayed from the buffer) and is then closed — callers do not need
// a separate replay-from-job-store path as long as the hub has not been
// restarted since termination; Supervisor.Snapshot covers the restart case.
func (h *EventHub) Subscribe(jobID string) (<-chan eventBox, func()) {
	s := h.stream(jobID)
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan eventBox, ringBufferSize)
	for _, box := range s.buffer {
		ch <- box
	}
	if s.terminal {
		close(ch)
		return ch, func() {}
	}

	s.subs[ch] = struct{}{}
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Close releases a job's in-memory stream state. Safe to call after the
// terminal event; it is not required for correctness since a terminal
// stream already closes every subscriber channel, but it bounds memory.
func (h *EventHub) Close(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.jobs, jobID)
}

// Heartbeat blocks until ctx is done, invoking send every interval so
// intermediaries do not close an idle connection. Callers run this
// alongside their own Subscribe loop.
func Heartbeat(ctx context.Context, interval time.Duration, send func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send()
		}
	}
}
