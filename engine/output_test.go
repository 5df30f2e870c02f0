package engine

import (
	"errors"
	"testing"

	"github.com/xuxin333/qtractor/backend"
	"github.com/xuxin333/qtractor/midi"
	"github.com/xuxin333/qtractor/monitor"
)

func newTestEngine(be backend.Backend, sess Session, audio AudioClock) *Engine {
	e := New(be, sess, audio, 64, nil)
	e.queue = 1
	return e
}

func newTestTrack() *Track {
	bus := midi.NewBus("out", nil)
	bus.OutMonitor = monitor.New(nil, 1.0, 0)
	return &Track{
		Channel:   3,
		MidiTag:   7,
		OutputBus: bus,
		Monitor:   monitor.New(nil, 1.0, 0),
		Gain:      1.0,
	}
}

func TestEnqueueSkipsNilTrackAndMissingOutputBus(t *testing.T) {
	be := &fakeBackend{}
	e := newTestEngine(be, &fakeSession{ticksPer: 1}, &fakeAudioClock{})

	e.enqueue(nil, midi.NewEvent(0, midi.NoteOn, 0, 60, 100, 0), 0, 1.0)
	e.enqueue(&Track{}, midi.NewEvent(0, midi.NoteOn, 0, 60, 100, 0), 0, 1.0)

	if len(be.outEvents) != 0 {
		t.Errorf("expected no EventOutput calls, got %d", len(be.outEvents))
	}
}

func TestEnqueueSuppressesVolumeAndPanningFeedback(t *testing.T) {
	be := &fakeBackend{}
	e := newTestEngine(be, &fakeSession{ticksPer: 1}, &fakeAudioClock{})
	track := newTestTrack()

	e.enqueue(track, midi.NewEvent(0, midi.Controller, 0, midi.CCChannelVolume, 100, 0), 0, 1.0)
	e.enqueue(track, midi.NewEvent(0, midi.Controller, 0, midi.CCChannelPanning, 100, 0), 0, 1.0)

	if len(be.outEvents) != 0 {
		t.Errorf("expected CC7/CC10 to be suppressed as mixer feedback, got %d events", len(be.outEvents))
	}
}

func TestEnqueueScalesNoteOnVelocityByGain(t *testing.T) {
	be := &fakeBackend{}
	e := newTestEngine(be, &fakeSession{ticksPer: 1}, &fakeAudioClock{})
	track := newTestTrack()

	e.enqueue(track, midi.NewEvent(0, midi.NoteOn, 0, 60, 100, 0), 0, 0.5)

	if len(be.outEvents) != 1 {
		t.Fatalf("expected 1 EventOutput call, got %d", len(be.outEvents))
	}
	if got, want := be.outEvents[0].Data2, uint8(50); got != want {
		t.Errorf("scaled velocity = %d, want %d (100*0.5)", got, want)
	}
	if be.outEvents[0].Channel != track.Channel {
		t.Errorf("event channel = %d, want track channel %d", be.outEvents[0].Channel, track.Channel)
	}
	if be.outEvents[0].Tag != track.MidiTag {
		t.Errorf("event tag = %d, want track tag %d", be.outEvents[0].Tag, track.MidiTag)
	}
}

func TestEnqueueDoesNotScaleNonNoteOnValue(t *testing.T) {
	be := &fakeBackend{}
	e := newTestEngine(be, &fakeSession{ticksPer: 1}, &fakeAudioClock{})
	track := newTestTrack()

	e.enqueue(track, midi.NewEvent(0, midi.Controller, 0, 64, 100, 0), 0, 0.5)

	if got := be.outEvents[0].Data2; got != 100 {
		t.Errorf("non-NoteOn value = %d, want unscaled 100", got)
	}
}

func TestEnqueueFeedsTrackAndBusMonitors(t *testing.T) {
	be := &fakeBackend{}
	e := newTestEngine(be, &fakeSession{ticksPer: 1}, &fakeAudioClock{})
	track := newTestTrack()

	e.enqueue(track, midi.NewEvent(0, midi.NoteOn, 0, 60, 100, 0), 0, 1.0)

	if v := track.Monitor.Value(); v == 0 {
		t.Errorf("track monitor should have observed the NoteOn")
	}
	if v := track.OutputBus.OutMonitor.Value(); v == 0 {
		t.Errorf("bus output monitor should have observed the NoteOn")
	}
}

func TestFlushSkipsCorrectionOnDrainError(t *testing.T) {
	be := &fakeBackend{drainErr: errTest}
	e := newTestEngine(be, &fakeSession{ticksPer: 1}, &fakeAudioClock{})
	e.sync.Start(0)

	e.flush() // must not panic; correction is simply skipped

	if got := e.sync.TimeStart(); got != 0 {
		t.Errorf("TimeStart moved despite a drain error: %d", got)
	}
}

func TestFlushAppliesCorrectionFromQueueAndAudioTicks(t *testing.T) {
	be := &fakeBackend{queueTick: 40}
	audio := &fakeAudioClock{frameTime: 10}
	sess := &fakeSession{ticksPer: 5} // audioTick = TickFromFrame(10) = 50
	e := newTestEngine(be, sess, audio)
	e.sync.Start(0)

	e.flush()

	if got := e.sync.TimeStart(); got != 10 {
		t.Errorf("TimeStart after flush = %d, want 10 (50-40)", got)
	}
}

var errTest = errors.New("engine test: forced failure")
