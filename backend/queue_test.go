package backend

import (
	"sync"
	"testing"
	"time"

	"github.com/xuxin333/qtractor/midi"
)

func TestSoftwareQueueDirectEventBypassesScheduling(t *testing.T) {
	var mu sync.Mutex
	var written []OutEvent
	q := newSoftwareQueue(func(ev OutEvent) error {
		mu.Lock()
		written = append(written, ev)
		mu.Unlock()
		return nil
	})

	if err := q.submit(OutEvent{Direct: true, Kind: midi.Controller}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(written) != 1 {
		t.Fatalf("direct event should be written immediately, got %d writes", len(written))
	}
	if len(q.pending) != 0 {
		t.Errorf("direct event should never enter the pending heap")
	}
}

func TestSoftwareQueueDispatchesInTickOrder(t *testing.T) {
	var mu sync.Mutex
	var order []uint32
	done := make(chan struct{})

	q := newSoftwareQueue(func(ev OutEvent) error {
		mu.Lock()
		order = append(order, ev.Tick)
		n := len(order)
		mu.Unlock()
		if n == 3 {
			close(done)
		}
		return nil
	})
	q.setTempo(96, 500000) // ~5.2ms/tick, plenty of headroom for scheduling in a test

	q.start_()
	defer q.stop_()

	_ = q.submit(OutEvent{Tick: 2})
	_ = q.submit(OutEvent{Tick: 0})
	_ = q.submit(OutEvent{Tick: 1})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for all 3 events to dispatch")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("dispatch order = %v, want [0 1 2]", order)
	}
}

func TestRemoveMatchingDropsByTagChannelAndTick(t *testing.T) {
	q := newSoftwareQueue(func(OutEvent) error { return nil })
	q.pending = eventHeap{
		{tick: 10, seq: 1, ev: OutEvent{Queue: 1, Tag: 5, Channel: 0, Kind: midi.NoteOn}},
		{tick: 20, seq: 2, ev: OutEvent{Queue: 1, Tag: 5, Channel: 0, Kind: midi.NoteOff}},
		{tick: 30, seq: 3, ev: OutEvent{Queue: 1, Tag: 9, Channel: 0, Kind: midi.NoteOn}},
		{tick: 5, seq: 4, ev: OutEvent{Queue: 1, Tag: 5, Channel: 0, Kind: midi.NoteOn}},
	}

	q.removeMatching(RemoveFilter{
		Queue:       1,
		AfterTick:   9,
		Tag:         5,
		MatchTag:    true,
		Channel:     0,
		SkipNoteOff: true,
	})

	if len(q.pending) != 3 {
		t.Fatalf("expected 3 events to survive removal, got %d", len(q.pending))
	}
	for _, se := range q.pending {
		if se.tick == 10 {
			t.Errorf("tick 10 (tag 5, NoteOn, after AfterTick=9) should have been removed")
		}
	}
}

func TestTickNowBeforeStartIsZero(t *testing.T) {
	q := newSoftwareQueue(func(OutEvent) error { return nil })
	if got := q.tickNow(); got != 0 {
		t.Errorf("tickNow() before start_() = %d, want 0", got)
	}
}
