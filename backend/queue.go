package backend

import (
	"container/heap"
	"sync"
	"time"

	"github.com/xuxin333/qtractor/midi"
)

// scheduledEvent is a queued OutEvent waiting for its due wall-clock
// time. seq preserves session-iteration order for events sharing a
// tick.
type scheduledEvent struct {
	tick uint32
	seq  uint64
	ev   OutEvent
}

type eventHeap []*scheduledEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].tick != h[j].tick {
		return h[i].tick < h[j].tick
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(*scheduledEvent)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// softwareQueue emulates a kernel MIDI sequencer's tick-scheduled
// output queue (ALSA's snd_seq queue) on top of a plain
// "write these bytes now" transport, so both the rtmidi and the
// serial backend can share one scheduling engine instead of each
// re-implementing tick math.
type softwareQueue struct {
	mu      sync.Mutex
	pending eventHeap
	nextSeq uint64

	running bool
	start   time.Time
	ppq     uint16
	micros  uint32 // microseconds per quarter note

	wake chan struct{}
	done chan struct{}

	writer func(OutEvent) error
}

func newSoftwareQueue(writer func(OutEvent) error) *softwareQueue {
	return &softwareQueue{
		writer: writer,
		ppq:    96,
		micros: 500000,
		wake:   make(chan struct{}, 1),
	}
}

func (q *softwareQueue) poke() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *softwareQueue) setTempo(ppq uint16, micros uint32) {
	q.mu.Lock()
	if ppq > 0 {
		q.ppq = ppq
	}
	if micros > 0 {
		q.micros = micros
	}
	q.mu.Unlock()
	q.poke()
}

func (q *softwareQueue) tickDuration() time.Duration {
	return time.Duration(q.micros) * time.Microsecond / time.Duration(q.ppq)
}

func (q *softwareQueue) start_() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.start = time.Now()
	q.done = make(chan struct{})
	done := q.done
	q.mu.Unlock()
	go q.run(done)
}

func (q *softwareQueue) stop_() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.done)
	q.pending = nil
	q.mu.Unlock()
}

func (q *softwareQueue) tickNow() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.start.IsZero() {
		return 0
	}
	return uint64(time.Since(q.start) / q.tickDuration())
}

func (q *softwareQueue) submit(ev OutEvent) error {
	if ev.Direct {
		return q.writer(ev)
	}
	q.mu.Lock()
	q.nextSeq++
	heap.Push(&q.pending, &scheduledEvent{tick: ev.Tick, seq: q.nextSeq, ev: ev})
	q.mu.Unlock()
	q.poke()
	return nil
}

// removeMatching drops queued (not-yet-dispatched) events matching the
// given filter.
func (q *softwareQueue) removeMatching(f RemoveFilter) {
	q.mu.Lock()
	kept := q.pending[:0]
	for _, se := range q.pending {
		if q.matches(se, f) {
			continue
		}
		kept = append(kept, se)
	}
	q.pending = kept
	heap.Init(&q.pending)
	q.mu.Unlock()
}

func (q *softwareQueue) matches(se *scheduledEvent, f RemoveFilter) bool {
	if se.ev.Queue != f.Queue {
		return false
	}
	if se.tick <= f.AfterTick {
		return false
	}
	if f.MatchTag && se.ev.Tag != f.Tag {
		return false
	}
	if se.ev.Channel != f.Channel {
		return false
	}
	if f.SkipNoteOff && se.ev.Kind == midi.NoteOff {
		return false
	}
	return true
}

// run is the dispatcher loop: it sleeps until the earliest pending
// event's due wall-clock time, then hands it to the writer.
func (q *softwareQueue) run(done <-chan struct{}) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			select {
			case <-done:
				return
			case <-q.wake:
			}
			continue
		}
		top := q.pending[0]
		due := q.start.Add(time.Duration(top.tick) * q.tickDuration())
		now := time.Now()
		if now.Before(due) {
			wait := due.Sub(now)
			q.mu.Unlock()
			timer := time.NewTimer(wait)
			select {
			case <-done:
				timer.Stop()
				return
			case <-q.wake:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}
		heap.Pop(&q.pending)
		ev := top.ev
		q.mu.Unlock()
		_ = q.writer(ev)
	}
}
