package engine

import (
	"github.com/xuxin333/qtractor/backend"
	"github.com/xuxin333/qtractor/midi"
	"github.com/xuxin333/qtractor/monitor"
)

// outputLoop is the Output Thread: it sleeps until woken by Sync (or
// by Deactivate's poke on shutdown) and runs one process cycle per
// wake, only while the transport is playing. Start and trackSync do
// not wake it; they run their own cycle directly under e.mu.
func (e *Engine) outputLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case <-e.wake:
		}
		if e.isPlaying() {
			e.mu.Lock()
			e.processLocked()
			e.mu.Unlock()
		}
	}
}

// processLocked runs process under the engine's mutex, matching
// processSync's role of serialising against trackSync.
func (e *Engine) processLocked() {
	e.process()
}

// process runs one read-ahead output cycle: it schedules every event
// due in [cursor.Frame, cursor.Frame+W), splicing across a loop
// boundary as many times as the read-ahead window spans, then advances
// the cursor and flushes the backend queue.
func (e *Engine) process() {
	if !e.sync.MidiCursorSync(&e.cursor, e.audio, e.readAheadFrames, false) {
		return
	}

	frameStart := e.cursor.Frame
	frameEnd := frameStart + e.readAheadFrames

	if e.sess.IsLooping() && frameStart < e.sess.LoopEnd() {
		for frameEnd >= e.sess.LoopEnd() {
			e.sess.Process(&e.cursor, frameStart, e.sess.LoopEnd(), e.enqueue)
			frameStart = e.sess.LoopStart()
			frameEnd = frameStart + (frameEnd - e.sess.LoopEnd())
			e.cursor.Seek(frameStart)
			e.restartLoop()
		}
	}

	e.sess.Process(&e.cursor, frameStart, frameEnd, e.enqueue)

	if e.sess.IsLooping() && frameStart < e.sess.LoopEnd() && frameEnd >= e.sess.LoopEnd() {
		frameEnd = e.sess.LoopStart() + (frameEnd - e.sess.LoopEnd())
	}

	e.cursor.Seek(frameEnd)
	e.cursor.Advance(e.readAheadFrames)

	e.flush()
}

// restartLoop nudges the SyncController back by one loop length so
// scheduled ticks keep landing correctly across a loop splice.
func (e *Engine) restartLoop() {
	loopTicks := int64(e.sess.TickFromFrame(e.sess.LoopEnd())) - int64(e.sess.TickFromFrame(e.sess.LoopStart()))
	e.sync.RestartLoop(loopTicks)
}

// flush drains the backend's output buffer and applies the
// SyncController's drift correction from the backend's actual queue
// tick versus the audio-derived tick.
func (e *Engine) flush() {
	if err := e.be.DrainOutput(); err != nil {
		e.log.Warn("drain output", "err", err)
		return
	}
	queueTick, err := e.be.QueueTickNow(e.queue)
	if err != nil {
		e.log.Warn("queue tick now", "err", err)
		return
	}
	audioTick := e.sess.TickFromFrame(e.audio.FrameTime())
	if audioTick == 0 || queueTick == 0 {
		return
	}
	e.sync.Correct(queueTick, audioTick)
}

// trackSync reschedules one track's own clips from playFrame up to the
// MIDI cursor's current frame, used when a track unmutes mid-playback
// so it catches up without waiting for the next full process cycle.
func (e *Engine) trackSync(track *Track, playFrame uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sess.ProcessTrack(track, &e.cursor, playFrame, e.enqueue)
	e.flush()
}

// enqueue is the sink the Session calls for every event it emits
// during process/trackSync: it schedules the event on the backend
// queue and feeds the track's and bus's output monitors.
func (e *Engine) enqueue(track *Track, ev midi.Event, tick uint64, gain float32) {
	if track == nil || track.OutputBus == nil {
		return
	}

	// Ignore our own mixer-monitor supplied controllers, so a UI
	// fader's CC7/CC10 feedback never gets rescheduled as if it were
	// clip content.
	if ev.Kind == midi.Controller && (ev.Data1 == midi.CCChannelVolume || ev.Data1 == midi.CCChannelPanning) {
		return
	}

	scheduledTick := e.sync.ScheduleTick(uint32(tick))

	value := ev.Data2
	if ev.Kind == midi.NoteOn {
		value = uint8(gain*float32(value)) & 0x7f
	}

	out := backend.OutEvent{
		Tick:       scheduledTick,
		Tag:        track.MidiTag,
		Queue:      e.queue,
		SourcePort: track.OutputPort,
		Kind:       ev.Kind,
		Channel:    track.Channel,
		Data1:      ev.Data1,
		Data2:      value,
		Duration:   ev.DurationTicks,
		Sysex:      ev.SysexData,
	}
	if err := e.be.EventOutput(out); err != nil {
		e.log.Warn("event output", "tag", track.MidiTag, "err", err)
		return
	}

	if track.Monitor != nil {
		track.Monitor.Enqueue(monitorEventType(ev.Kind), value, tick)
	}
	if track.OutputBus.OutMonitor != nil {
		track.OutputBus.OutMonitor.Enqueue(monitorEventType(ev.Kind), value, tick)
	}
}

func monitorEventType(k midi.EventKind) monitor.EventType {
	if k == midi.NoteOn {
		return monitor.NoteOn
	}
	return monitor.Other
}
