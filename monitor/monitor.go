// Package monitor implements the VU-meter-style peak/count tracker fed
// by the Input and Output Threads, and the process-wide timing clock
// every Monitor shares.
package monitor

import "sync"

const queueSize = 16
const queueMask = queueSize - 1

// EventType distinguishes NoteOn (a peak candidate) from every other
// event kind, which only ever bumps the count.
type EventType int

const (
	Other EventType = iota
	NoteOn
)

type queueItem struct {
	value uint8
	count uint32
}

// Session is the sliver of transport state the monitor needs:
// converting between frame time and tick time, and locating "now".
type Session interface {
	PlayHead() uint64
	FrameTime() uint64
	TickFromFrame(frame uint64) uint64
}

// The queue slot width (in frames and in ticks) is a process-wide
// singleton shared by every Monitor, recomputed once per sync reset
// rather than per instance — see the design notes on why that split
// exists.
var (
	clockMu   sync.RWMutex
	frameSlot uint64
	timeSlot  uint64
)

// SyncReset recomputes the shared slot width from the session's
// current position and the engine's read-ahead window (in frames);
// Engine.resetAllMonitors calls it on Activate and Start.
func SyncReset(sess Session, readAheadFrames uint64) {
	frame := sess.PlayHead()
	t0 := sess.TickFromFrame(frame)
	fs := (readAheadFrames << 1) / queueSize
	ts := sess.TickFromFrame(frame+fs) - t0
	clockMu.Lock()
	frameSlot, timeSlot = fs, ts
	clockMu.Unlock()
}

func slots() (uint64, uint64) {
	clockMu.RLock()
	defer clockMu.RUnlock()
	return frameSlot, timeSlot
}

// Monitor accumulates event peaks and counts between drains. Output
// Thread and Input Thread each own one per bus direction; a GUI drains
// them with Value/Count on its own refresh cadence.
type Monitor struct {
	mu sync.Mutex

	gain    float32
	panning float32

	queue      [queueSize]queueItem
	queueIndex uint32
	direct     queueItem

	frameStart uint64
	timeStart  uint64

	sess Session
}

// New builds a Monitor bound to sess (nil is valid for tests that only
// exercise the direct, unscheduled path).
func New(sess Session, gain, panning float32) *Monitor {
	m := &Monitor{sess: sess, gain: gain, panning: panning}
	m.Reset()
	return m
}

// Enqueue records val at tick. Ticks after the queue window's start
// are bucketed into the ring slot they land in, and ticks past the
// window's end are clamped into its last slot; a tick at or before the
// window's start, or any tick while the slot width is zero, is folded
// into the direct, always-available slot.
func (m *Monitor) Enqueue(kind EventType, val uint8, tick uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ts := slots()
	if m.timeStart < tick && ts > 0 {
		offset := (tick - m.timeStart) / ts
		if offset > queueMask {
			offset = queueMask
		}
		idx := (m.queueIndex + uint32(offset)) & queueMask
		item := &m.queue[idx]
		if kind == NoteOn && item.value < val {
			item.value = val
		}
		item.count++
		return
	}
	if kind == NoteOn && m.direct.value < val {
		m.direct.value = val
	}
	m.direct.count++
}

// Value drains and returns the current gain-scaled peak, in 0..1,
// sweeping every ring slot whose start frame the audio clock's frame
// time has passed since the last call.
func (m *Monitor) Value() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	val := m.direct.value
	m.direct.value = 0

	fs, _ := slots()
	if fs > 0 && m.sess != nil {
		frameEnd := m.sess.FrameTime()
		for m.frameStart < frameEnd {
			item := &m.queue[m.queueIndex]
			if val < item.value {
				val = item.value
			}
			m.direct.count += item.count
			*item = queueItem{}
			m.queueIndex = (m.queueIndex + 1) & queueMask
			_, ts := slots()
			m.frameStart += fs
			m.timeStart += ts
		}
	}
	return (m.gain * float32(val)) / 127.0
}

// Count drains and returns the number of events counted since the
// last Count call: direct-slot events, plus ring-slot events once
// Value has swept their slot.
func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := int(m.direct.count)
	m.direct.count = 0
	return c
}

// Reset reinitialises this monitor's own time origin from the
// session's current position. It does not touch the shared clock slot
// widths — that's SyncReset's job, done once for every monitor at
// once.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.direct = queueItem{}
	m.queueIndex = 0
	if m.sess != nil {
		frame := m.sess.PlayHead()
		t0 := m.sess.TickFromFrame(frame)
		m.frameStart = m.sess.FrameTime()
		m.timeStart = m.sess.TickFromFrame(frame+m.frameStart) - t0
	} else {
		m.frameStart, m.timeStart = 0, 0
	}
	for i := range m.queue {
		m.queue[i] = queueItem{}
	}
}

func (m *Monitor) Gain() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gain
}

func (m *Monitor) SetGain(g float32) {
	m.mu.Lock()
	m.gain = g
	m.mu.Unlock()
}

func (m *Monitor) Panning() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.panning
}

func (m *Monitor) SetPanning(p float32) {
	m.mu.Lock()
	m.panning = p
	m.mu.Unlock()
}
