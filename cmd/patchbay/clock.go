package main

import "sync/atomic"

// freeRunningClock is a software AudioClock: with no real audio
// driver to slave to, it advances its own frame counter on a fixed
// tick from main's ticker loop and reports the same value for both
// Frame and FrameTime (there is no independent transport seek here).
type freeRunningClock struct {
	frame atomic.Uint64
}

func (c *freeRunningClock) Frame() uint64     { return c.frame.Load() }
func (c *freeRunningClock) FrameTime() uint64 { return c.frame.Load() }

func (c *freeRunningClock) advance(frames uint64) {
	c.frame.Add(frames)
}
