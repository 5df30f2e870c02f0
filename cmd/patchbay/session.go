package main

import (
	"github.com/xuxin333/qtractor/engine"
	"github.com/xuxin333/qtractor/midi"
)

// emptySession is a Session with no tracks and no clips: Process and
// ProcessTrack never emit anything, so the transport just idles at a
// fixed tempo while buses stay open for control-bus/monitor traffic.
type emptySession struct {
	tempo        float64
	ticksPerBeat uint16
	sampleRate   uint32
}

func (s *emptySession) TickFromFrame(frame uint64) uint64 {
	return uint64(float64(frame) * s.tempo * float64(s.ticksPerBeat) / (60 * float64(s.sampleRate)))
}

func (s *emptySession) FrameFromTick(tick uint64) uint64 {
	return uint64(float64(tick) * 60 * float64(s.sampleRate) / (s.tempo * float64(s.ticksPerBeat)))
}

func (s *emptySession) Tempo() float64       { return s.tempo }
func (s *emptySession) TicksPerBeat() uint16 { return s.ticksPerBeat }
func (s *emptySession) SampleRate() uint32   { return s.sampleRate }

func (s *emptySession) PlayHead() uint64  { return 0 }
func (s *emptySession) IsPlaying() bool   { return true }
func (s *emptySession) IsLooping() bool   { return false }
func (s *emptySession) LoopStart() uint64 { return 0 }
func (s *emptySession) LoopEnd() uint64   { return 0 }

func (s *emptySession) Process(cursor *engine.Cursor, startFrame, endFrame uint64, sink func(track *engine.Track, ev midi.Event, tick uint64, gain float32)) {
}

func (s *emptySession) ProcessTrack(track *engine.Track, cursor *engine.Cursor, playFrame uint64, sink func(track *engine.Track, ev midi.Event, tick uint64, gain float32)) {
}
