package engine

import (
	"testing"

	"github.com/xuxin333/qtractor/midi"
	"github.com/xuxin333/qtractor/monitor"
)

type recordingDispatcher struct {
	controllers []struct{ channel, controller, value uint8 }
}

func (d *recordingDispatcher) SendController(channel, controller, value uint8) error {
	d.controllers = append(d.controllers, struct{ channel, controller, value uint8 }{channel, controller, value})
	return nil
}
func (d *recordingDispatcher) SendProgramChange(channel, program uint8) error { return nil }
func (d *recordingDispatcher) SendSysex(data []byte) error                    { return nil }

func TestTrackMuteRemovesQueuedEventsAndSilences(t *testing.T) {
	be := &fakeBackend{}
	sess := &fakeSession{ticksPer: 2, playHead: 100}
	e := newTestEngine(be, sess, &fakeAudioClock{})
	e.sync.Start(0)

	dispatcher := &recordingDispatcher{}
	track := newTestTrack()
	track.OutputBus = midi.NewBus("out", dispatcher)
	track.Monitor = monitor.New(nil, 1.0, 0)
	track.Monitor.Enqueue(monitor.NoteOn, 90, 0)

	e.TrackMute(track, true)

	if !track.Mute {
		t.Errorf("track.Mute should be true after TrackMute(track, true)")
	}
	if len(be.removeFilters) != 1 {
		t.Fatalf("expected 1 RemoveEvents call, got %d", len(be.removeFilters))
	}
	f := be.removeFilters[0]
	if !f.MatchTag || f.Tag != track.MidiTag || f.Channel != track.Channel || !f.SkipNoteOff {
		t.Errorf("RemoveFilter = %+v, does not match expected tag/channel/SkipNoteOff", f)
	}
	// PlayHead=100, ticksPer=2 -> tick=200; ScheduleTick with TimeStart=0 -> 200.
	if f.AfterTick != 200 {
		t.Errorf("AfterTick = %d, want 200", f.AfterTick)
	}

	if len(dispatcher.controllers) != 1 || dispatcher.controllers[0].controller != midi.CCAllNotesOff {
		t.Fatalf("expected a single All Notes Off controller send, got %+v", dispatcher.controllers)
	}
	if dispatcher.controllers[0].channel != track.Channel {
		t.Errorf("All Notes Off channel = %d, want %d", dispatcher.controllers[0].channel, track.Channel)
	}

	if v := track.Monitor.Value(); v != 0 {
		t.Errorf("track.Monitor should have been reset, got Value()=%v", v)
	}
}

func TestTrackMuteUnmuteReflushesFromPlayHead(t *testing.T) {
	be := &fakeBackend{}
	sess := &fakeSession{ticksPer: 1, playHead: 10}
	e := newTestEngine(be, sess, &fakeAudioClock{})
	e.sync.Start(0)

	track := newTestTrack()
	sess.emissions = []fakeEmission{
		{track: track, ev: midi.NewEvent(0, midi.NoteOn, track.Channel, 60, 100, 0), tick: 10, gain: 1.0},
	}

	track.Mute = true
	e.TrackMute(track, false)

	if track.Mute {
		t.Errorf("track.Mute should be false after TrackMute(track, false)")
	}
	if len(be.outEvents) != 1 {
		t.Fatalf("expected trackSync to reschedule the track's own emission, got %d events", len(be.outEvents))
	}
	if be.outEvents[0].Tag != track.MidiTag {
		t.Errorf("rescheduled event tag = %d, want %d", be.outEvents[0].Tag, track.MidiTag)
	}
}

func TestTrackMuteSkipsAllNotesOffWithoutOutputBus(t *testing.T) {
	be := &fakeBackend{}
	sess := &fakeSession{ticksPer: 1, playHead: 0}
	e := newTestEngine(be, sess, &fakeAudioClock{})
	e.sync.Start(0)

	track := &Track{MidiTag: 1, Channel: 0}
	e.TrackMute(track, true) // must not panic despite a nil OutputBus/Monitor
}
