// Package capture holds the recording-side helpers the Input Thread
// and the Transport Facade use once an event has been routed to a
// record-armed track: appending it to a clip, and quantizing a
// captured clip's ticks onto a tempo grid on export.
package capture

import (
	"sync"

	"github.com/xuxin333/qtractor/midi"
)

// Clip is the minimal capability the Input Thread needs from a
// recording destination: allocate an Event and append it to the clip
// sequence.
type Clip interface {
	Append(ev midi.Event)
}

// SequenceClip is a straightforward in-memory Clip, the default
// recording destination for a record-armed track.
type SequenceClip struct {
	mu     sync.Mutex
	Events []midi.Event
}

func (c *SequenceClip) Append(ev midi.Event) {
	c.mu.Lock()
	c.Events = append(c.Events, ev)
	c.mu.Unlock()
}

// Snapshot returns a copy of the events captured so far, safe to hand
// to a consumer (export, quantize) while recording continues.
func (c *SequenceClip) Snapshot() []midi.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]midi.Event, len(c.Events))
	copy(out, c.Events)
	return out
}

func (c *SequenceClip) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Events)
}
