// Package engine is the Transport Facade: it wires a backend.Backend,
// a Session (the session/track/clip model, an external collaborator)
// and a monitor clock into the producer/consumer thread pair that
// schedules, dispatches, and captures MIDI against the shared
// transport timeline.
package engine

import (
	"github.com/xuxin333/qtractor/backend"
	"github.com/xuxin333/qtractor/capture"
	"github.com/xuxin333/qtractor/midi"
	"github.com/xuxin333/qtractor/monitor"
)

// Cursor is a read/write position over the session's event stream,
// projecting into both frames (audio domain) and frame_time (a
// monotonically increasing counter independent of transport seeks).
type Cursor struct {
	Frame     uint64
	FrameTime uint64
}

func (c *Cursor) Seek(frame uint64)     { c.Frame = frame }
func (c *Cursor) Advance(frames uint64) { c.FrameTime += frames }

// AudioClock is the external audio engine, consumed only as a
// monotonic frame-time source and for its session cursor. Frame
// is the audio session cursor's current frame position; FrameTime is
// the free-running period counter used for the sync predicate.
type AudioClock interface {
	Frame() uint64
	FrameTime() uint64
}

// Session is the session/track/clip model, consumed as an iterable
// yielding timestamped events, and the timescale converter, consumed
// for frame<->tick math.
type Session interface {
	TickFromFrame(frame uint64) uint64
	FrameFromTick(tick uint64) uint64
	Tempo() float64
	TicksPerBeat() uint16
	SampleRate() uint32

	PlayHead() uint64
	IsPlaying() bool
	IsLooping() bool
	LoopStart() uint64
	LoopEnd() uint64

	// Process asks the session to emit, for every clip intersecting
	// [startFrame, endFrame), each event to sink via Engine.enqueue.
	Process(cursor *Cursor, startFrame, endFrame uint64, sink func(track *Track, ev midi.Event, tick uint64, gain float32))

	// ProcessTrack is Process narrowed to a single track, used by the
	// mute/unmute reflush: when a track unmutes, only its own clips
	// need to be rescheduled from playFrame onward, not the whole
	// window's worth of tracks again.
	ProcessTrack(track *Track, cursor *Cursor, playFrame uint64, sink func(track *Track, ev midi.Event, tick uint64, gain float32))
}

// Track is the MIDI view of a session track.
type Track struct {
	Channel    uint8
	MidiTag    uint8
	InputBus   *midi.Bus
	InputPort  backend.PortHandle
	OutputBus  *midi.Bus
	OutputPort backend.PortHandle
	Record     bool
	Mute       bool
	Monitor    *monitor.Monitor
	RecordClip capture.Clip
	Gain       float32
}

// BusEndpoint pairs a Bus with the backend port it dispatches through
// and, for input buses, the port the Input Thread should match
// incoming events against.
type BusEndpoint struct {
	Bus  *midi.Bus
	Port backend.PortHandle
}
