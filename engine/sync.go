package engine

import "sync"

// SyncController computes the tick offset (TimeStart) and running
// correction (TimeDelta) that slaves the MIDI queue to the audio frame
// clock, since each has its own free-running counter.
type SyncController struct {
	mu        sync.Mutex
	timeStart int64
	timeDelta int64
	started   bool
}

// MidiCursorSync implements the predicate of the same name: with
// start, it hard-aligns the MIDI cursor to the audio cursor's frame
// and always returns it; otherwise it backs off (returns ok=false)
// once the MIDI cursor's frame_time has outrun the audio clock's by
// more than the read-ahead window W.
func (s *SyncController) MidiCursorSync(cursor *Cursor, audio AudioClock, w uint64, start bool) bool {
	if start {
		cursor.Seek(audio.Frame())
		return true
	}
	if cursor.FrameTime > audio.FrameTime()+w {
		return false
	}
	return true
}

// Correct implements the end-of-cycle correction: read the backend's
// current queue tick, compute the audio-derived tick, and if the
// residual has moved, nudge both TimeStart and TimeDelta by it so the
// next window's schedule ticks land correctly.
func (s *SyncController) Correct(queueTick uint64, audioTick uint64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return 0
	}
	delta := (int64(audioTick) - int64(queueTick)) - s.timeDelta
	if delta != 0 {
		s.timeStart += delta
		s.timeDelta += delta
	}
	return delta
}

// RestartLoop shifts TimeStart back by the loop's tick length so that
// the next iteration's events land at the correct backend ticks after
// the output window wraps.
func (s *SyncController) RestartLoop(loopLengthTicks int64) {
	s.mu.Lock()
	s.timeStart -= loopLengthTicks
	s.mu.Unlock()
}

// Start hard-resets TimeStart from the cursor's tick position and
// zeroes TimeDelta; the caller is responsible for starting the
// backend queue and waking the output thread.
func (s *SyncController) Start(cursorTick uint64) {
	s.mu.Lock()
	s.timeStart = int64(cursorTick)
	s.timeDelta = 0
	s.started = true
	s.mu.Unlock()
}

// Stop clears the started flag; the caller is responsible for
// dropping backend input/output and stopping the queue.
func (s *SyncController) Stop() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
}

// TimeStart returns the current scheduling offset in ticks: an event
// at tick t is scheduled to the backend at t - TimeStart.
func (s *SyncController) TimeStart() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeStart
}

// ScheduleTick converts a session tick into the tick the backend
// should schedule it at.
func (s *SyncController) ScheduleTick(eventTick uint32) uint32 {
	ts := s.TimeStart()
	v := int64(eventTick) - ts
	if v < 0 {
		return 0
	}
	return uint32(v)
}
