package engine

import (
	"github.com/xuxin333/qtractor/backend"
	"github.com/xuxin333/qtractor/midi"
)

// fakeBackend is a minimal, single-goroutine backend.Backend double:
// it records EventOutput/RemoveEvents calls and lets a test script
// canned return values for the handful of methods the engine package
// actually calls.
type fakeBackend struct {
	outEvents     []backend.OutEvent
	removeFilters []backend.RemoveFilter

	queueTick    uint64
	queueTickErr error
	drainErr     error
	eventOutErr  error
}

func (b *fakeBackend) OpenClient(name string) (backend.ClientID, error) { return 1, nil }
func (b *fakeBackend) AllocQueue() (backend.QueueID, error)             { return 1, nil }
func (b *fakeBackend) CreatePort(name string, caps backend.PortCaps) (backend.PortHandle, error) {
	return 1, nil
}
func (b *fakeBackend) SetPortTimestamping(port backend.PortHandle, queue backend.QueueID, ticks bool) error {
	return nil
}
func (b *fakeBackend) SetQueueTempo(queue backend.QueueID, ppq uint16, microsPerQuarter uint32) error {
	return nil
}
func (b *fakeBackend) StartQueue(queue backend.QueueID) error { return nil }
func (b *fakeBackend) StopQueue(queue backend.QueueID) error  { return nil }
func (b *fakeBackend) DropInput() error                       { return nil }
func (b *fakeBackend) DropOutput() error                      { return nil }

func (b *fakeBackend) EventOutput(ev backend.OutEvent) error {
	b.outEvents = append(b.outEvents, ev)
	return b.eventOutErr
}
func (b *fakeBackend) DrainOutput() error { return b.drainErr }
func (b *fakeBackend) QueueTickNow(queue backend.QueueID) (uint64, error) {
	return b.queueTick, b.queueTickErr
}
func (b *fakeBackend) RemoveEvents(filter backend.RemoveFilter) error {
	b.removeFilters = append(b.removeFilters, filter)
	return nil
}

func (b *fakeBackend) Subscribe(sender, dest backend.PortHandle) error   { return nil }
func (b *fakeBackend) Unsubscribe(sender, dest backend.PortHandle) error { return nil }
func (b *fakeBackend) QuerySubscribers(port backend.PortHandle) ([]backend.PortHandle, error) {
	return nil, nil
}
func (b *fakeBackend) EventInput() (backend.InEvent, error) {
	return backend.InEvent{}, backend.ErrWouldBlock
}
func (b *fakeBackend) AnnounceRecv() (backend.HotplugEvent, error) {
	return backend.HotplugEvent{}, backend.ErrWouldBlock
}
func (b *fakeBackend) Close() error { return nil }

// fakeSession is a deterministic Session double: ticks and frames are
// related by a fixed ticksPerFrame ratio, and Process/ProcessTrack
// simply replay a canned list of (track, event, tick, gain) emissions
// whose tick falls within the requested window.
type fakeSession struct {
	playHead  uint64
	looping   bool
	loopStart uint64
	loopEnd   uint64
	ticksPer  uint64

	emissions []fakeEmission
}

type fakeEmission struct {
	track *Track
	ev    midi.Event
	tick  uint64
	gain  float32
}

func (s *fakeSession) TickFromFrame(frame uint64) uint64 { return frame * s.ticksPer }
func (s *fakeSession) FrameFromTick(tick uint64) uint64  { return tick / s.ticksPer }
func (s *fakeSession) Tempo() float64                    { return 120 }
func (s *fakeSession) TicksPerBeat() uint16              { return 480 }
func (s *fakeSession) SampleRate() uint32                { return 48000 }
func (s *fakeSession) PlayHead() uint64                  { return s.playHead }
func (s *fakeSession) IsPlaying() bool                   { return true }
func (s *fakeSession) IsLooping() bool                   { return s.looping }
func (s *fakeSession) LoopStart() uint64                 { return s.loopStart }
func (s *fakeSession) LoopEnd() uint64                   { return s.loopEnd }

func (s *fakeSession) Process(cursor *Cursor, startFrame, endFrame uint64, sink func(track *Track, ev midi.Event, tick uint64, gain float32)) {
	for _, em := range s.emissions {
		frame := em.tick / s.ticksPer
		if frame >= startFrame && frame < endFrame {
			sink(em.track, em.ev, em.tick, em.gain)
		}
	}
}

func (s *fakeSession) ProcessTrack(track *Track, cursor *Cursor, playFrame uint64, sink func(track *Track, ev midi.Event, tick uint64, gain float32)) {
	for _, em := range s.emissions {
		if em.track == track {
			sink(em.track, em.ev, em.tick, em.gain)
		}
	}
}
