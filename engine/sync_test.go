package engine

import (
	"testing"
	"time"
)

func TestMidiCursorSyncStartHardAligns(t *testing.T) {
	var s SyncController
	cursor := &Cursor{Frame: 999, FrameTime: 999}
	audio := &fakeAudioClock{frame: 100, frameTime: 100}

	ok := s.MidiCursorSync(cursor, audio, 64, true)
	if !ok {
		t.Fatalf("MidiCursorSync(start=true) should always return true")
	}
	if cursor.Frame != 100 {
		t.Errorf("cursor.Frame = %d, want 100 (hard-aligned to audio.Frame())", cursor.Frame)
	}
}

func TestMidiCursorSyncBacksOffPastReadAhead(t *testing.T) {
	var s SyncController
	cursor := &Cursor{FrameTime: 200}
	audio := &fakeAudioClock{frameTime: 100}

	if ok := s.MidiCursorSync(cursor, audio, 64, false); ok {
		t.Errorf("cursor 100 frames ahead of audio with W=64 should back off")
	}
	if ok := s.MidiCursorSync(cursor, audio, 200, false); !ok {
		t.Errorf("cursor within a wide-enough read-ahead window should not back off")
	}
}

func TestCorrectNoOpBeforeStart(t *testing.T) {
	var s SyncController
	if got := s.Correct(1000, 500); got != 0 {
		t.Errorf("Correct() before Start() = %d, want 0", got)
	}
}

func TestCorrectNudgesTimeStartByResidual(t *testing.T) {
	var s SyncController
	s.Start(0)

	// audioTick - queueTick - timeDelta(0) = 50 - 40 - 0 = 10
	delta := s.Correct(40, 50)
	if delta != 10 {
		t.Fatalf("Correct() = %d, want 10", delta)
	}
	if got := s.TimeStart(); got != 10 {
		t.Errorf("TimeStart() = %d, want 10 after a +10 correction", got)
	}

	// Second call with the same residual should now be a no-op.
	if delta := s.Correct(50, 60); delta != 0 {
		t.Errorf("Correct() with an already-absorbed residual = %d, want 0", delta)
	}
}

func TestRestartLoopShiftsTimeStartBack(t *testing.T) {
	var s SyncController
	s.Start(100)
	s.RestartLoop(40)
	if got := s.TimeStart(); got != 60 {
		t.Errorf("TimeStart() = %d, want 60 (100-40)", got)
	}
}

func TestScheduleTickClampsToZero(t *testing.T) {
	var s SyncController
	s.Start(50)
	if got := s.ScheduleTick(10); got != 0 {
		t.Errorf("ScheduleTick(10) with TimeStart=50 = %d, want 0 (clamped)", got)
	}
	if got := s.ScheduleTick(60); got != 10 {
		t.Errorf("ScheduleTick(60) with TimeStart=50 = %d, want 10", got)
	}
}

func TestStopClearsStarted(t *testing.T) {
	var s SyncController
	s.Start(0)
	s.Stop()
	if got := s.Correct(0, 100); got != 0 {
		t.Errorf("Correct() after Stop() = %d, want 0 (started flag cleared)", got)
	}
}

func TestEngineSyncNeverBlocksWhenMuIsHeld(t *testing.T) {
	e := newTestEngine(&fakeBackend{}, &fakeSession{ticksPer: 1}, &fakeAudioClock{})

	e.mu.Lock()
	defer e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.Sync()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sync() blocked on a contended mutex instead of dropping the wake")
	}
}

func TestEngineSyncWakesOutputThreadWhenUncontended(t *testing.T) {
	e := newTestEngine(&fakeBackend{}, &fakeSession{ticksPer: 1}, &fakeAudioClock{})

	e.Sync()

	select {
	case <-e.wake:
	default:
		t.Errorf("Sync() should have woken the output loop when e.mu was free")
	}
}

type fakeAudioClock struct {
	frame     uint64
	frameTime uint64
}

func (f *fakeAudioClock) Frame() uint64     { return f.frame }
func (f *fakeAudioClock) FrameTime() uint64 { return f.frameTime }
