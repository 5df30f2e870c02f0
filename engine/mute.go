package engine

import (
	"github.com/xuxin333/qtractor/backend"
	"github.com/xuxin333/qtractor/midi"
)

// TrackMute mutes or unmutes a track already registered with the
// engine. Muting cancels the already-scheduled events on the track's
// tag and channel that fall after the play head's tick (queued
// NoteOffs are kept), silences it immediately with All Notes Off,
// and resets its monitor; unmuting rebuilds the track's queued output
// from the current play position onward via trackSync so it catches up
// without waiting for the next full process cycle.
func (e *Engine) TrackMute(track *Track, mute bool) {
	frame := e.sess.PlayHead()

	track.Mute = mute
	if !mute {
		e.trackSync(track, frame)
		return
	}

	tick := e.sess.TickFromFrame(frame)
	afterTick := e.sync.ScheduleTick(uint32(tick))

	if err := e.be.RemoveEvents(backend.RemoveFilter{
		Queue:       e.queue,
		AfterTick:   afterTick,
		Tag:         track.MidiTag,
		MatchTag:    true,
		Channel:     track.Channel,
		SkipNoteOff: true,
	}); err != nil {
		e.log.Warn("remove events", "track", track.MidiTag, "err", err)
	}

	if track.OutputBus != nil {
		if err := track.OutputBus.SetController(track.Channel, midi.CCAllNotesOff, 0); err != nil {
			e.log.Warn("all notes off", "track", track.MidiTag, "err", err)
		}
	}
	if track.Monitor != nil {
		track.Monitor.Reset()
	}
}
