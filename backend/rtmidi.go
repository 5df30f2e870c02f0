package backend

import (
	"fmt"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/xuxin333/qtractor/midi"
)

// rtmidiPort is a duplex port pair: a MIDI bus is one named port with
// an optional readable and/or writable side.
type rtmidiPort struct {
	name string
	in   drivers.In
	out  drivers.Out
	send func(gomidi.Message) error
	stop func()
}

// RTMidiBackend is the reference Sequencer Backend, built on
// gitlab.com/gomidi/midi/v2/drivers/rtmididrv, the same driver used
// by cmd/usb-piano and cmd/step-recorder.
//
// rtmididrv has no notion of a kernel tick-scheduled output queue or
// of pollable file descriptors (CoreMIDI/WinMM backends don't expose
// either), so this backend layers a softwareQueue on top for
// scheduled delivery and turns midi.ListenTo's callback model into
// the poll-with-timeout EventInput contract the Input Thread expects.
type RTMidiBackend struct {
	log *charmlog.Logger
	drv *rtmididrv.Driver

	mu       sync.Mutex
	ports    map[PortHandle]*rtmidiPort
	nextPort PortHandle
	subs     map[PortHandle]map[PortHandle]bool

	queue *softwareQueue
	inbox chan InEvent

	announce chan HotplugEvent
}

// NewRTMidiBackend opens the rtmidi driver. Callers still call
// OpenClient afterwards per the Backend contract; the driver handle
// itself has no separate "client" concept so OpenClient is a no-op
// bookkeeping call here.
func NewRTMidiBackend(log *charmlog.Logger) (*RTMidiBackend, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, &Error{Kind: BackendOpen, Op: "NewRTMidiBackend", Err: err}
	}
	b := &RTMidiBackend{
		log:      log,
		drv:      drv,
		ports:    make(map[PortHandle]*rtmidiPort),
		subs:     make(map[PortHandle]map[PortHandle]bool),
		inbox:    make(chan InEvent, 256),
		announce: make(chan HotplugEvent, 8),
	}
	b.queue = newSoftwareQueue(b.writeDirect)
	return b, nil
}

func (b *RTMidiBackend) OpenClient(name string) (ClientID, error) {
	return 0, nil
}

func (b *RTMidiBackend) AllocQueue() (QueueID, error) {
	return 0, nil
}

func (b *RTMidiBackend) CreatePort(name string, caps PortCaps) (PortHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := &rtmidiPort{name: name}

	if caps.Has(CapRead) {
		in, err := b.drv.OpenVirtualIn(name)
		if err != nil {
			return 0, &Error{Kind: BackendTransient, Op: "CreatePort:in", Err: err}
		}
		p.in = in
	}
	if caps.Has(CapWrite) {
		out, err := b.drv.OpenVirtualOut(name)
		if err != nil {
			return 0, &Error{Kind: BackendTransient, Op: "CreatePort:out", Err: err}
		}
		send, err := gomidi.SendTo(out)
		if err != nil {
			return 0, &Error{Kind: BackendTransient, Op: "CreatePort:send", Err: err}
		}
		p.out = out
		p.send = send
	}

	handle := b.nextPort
	b.nextPort++
	b.ports[handle] = p

	if p.in != nil {
		stop, err := gomidi.ListenTo(p.in, func(msg gomidi.Message, _ int32) {
			b.dispatchIn(handle, msg)
		}, gomidi.UseSysEx())
		if err != nil {
			return 0, &Error{Kind: BackendTransient, Op: "CreatePort:listen", Err: err}
		}
		p.stop = stop
	}

	return handle, nil
}

func (b *RTMidiBackend) dispatchIn(dest PortHandle, msg gomidi.Message) {
	var ch, key, vel uint8
	var raw []byte
	ev := InEvent{DestPort: dest}
	switch {
	case msg.GetSysEx(&raw):
		ev.Kind = midi.Sysex
		ev.Sysex = raw
	case msg.GetNoteOn(&ch, &key, &vel):
		ev.Kind = midi.NoteOn
		ev.Channel, ev.Data1, ev.Data2 = ch, key, vel
	case msg.GetNoteOff(&ch, &key, &vel):
		ev.Kind = midi.NoteOff
		ev.Channel, ev.Data1, ev.Data2 = ch, key, vel
	case msg.GetControlChange(&ch, &key, &vel):
		ev.Kind = midi.Controller
		ev.Channel, ev.Data1, ev.Data2 = ch, key, vel
	case msg.GetProgramChange(&ch, &vel):
		ev.Kind = midi.ProgramChange
		ev.Channel, ev.Data2 = ch, vel
	case msg.GetAfterTouch(&ch, &vel):
		ev.Kind = midi.ChannelPressure
		ev.Channel, ev.Data2 = ch, vel
	case msg.GetPolyAfterTouch(&ch, &key, &vel):
		ev.Kind = midi.KeyPressure
		ev.Channel, ev.Data1, ev.Data2 = ch, key, vel
	case msg.GetPitchBend(&ch, nil, &vel):
		ev.Kind = midi.PitchBend
		ev.Channel, ev.Data2 = ch, vel
	default:
		return
	}
	select {
	case b.inbox <- ev:
	default:
		if b.log != nil {
			b.log.Warn("input queue full, dropping event")
		}
	}
}

func (b *RTMidiBackend) SetPortTimestamping(port PortHandle, queue QueueID, ticks bool) error {
	return nil
}

func (b *RTMidiBackend) SetQueueTempo(queue QueueID, ppq uint16, microsPerQuarter uint32) error {
	b.queue.setTempo(ppq, microsPerQuarter)
	return nil
}

func (b *RTMidiBackend) StartQueue(queue QueueID) error {
	b.queue.start_()
	return nil
}

func (b *RTMidiBackend) StopQueue(queue QueueID) error {
	b.queue.stop_()
	return nil
}

func (b *RTMidiBackend) DropInput() error {
	for len(b.inbox) > 0 {
		<-b.inbox
	}
	return nil
}

func (b *RTMidiBackend) DropOutput() error {
	b.queue.mu.Lock()
	b.queue.pending = nil
	b.queue.mu.Unlock()
	return nil
}

func (b *RTMidiBackend) writeDirect(ev OutEvent) error {
	b.mu.Lock()
	p, ok := b.ports[ev.SourcePort]
	b.mu.Unlock()
	if !ok || p.send == nil {
		return &Error{Kind: BackendTransient, Op: "EventOutput", Err: fmt.Errorf("no writable port %d", ev.SourcePort)}
	}
	fake := midi.Event{Kind: ev.Kind, Channel: ev.Channel, Data1: ev.Data1, Data2: ev.Data2, SysexData: ev.Sysex}
	msg := fake.Message(ev.Channel)
	if msg == nil {
		return &Error{Kind: BackendTransient, Op: "EventOutput", Err: fmt.Errorf("unrepresentable event kind %v", ev.Kind)}
	}
	if err := p.send(msg); err != nil {
		return &Error{Kind: BackendTransient, Op: "EventOutput", Err: err}
	}
	return nil
}

func (b *RTMidiBackend) EventOutput(ev OutEvent) error {
	return b.queue.submit(ev)
}

func (b *RTMidiBackend) DrainOutput() error {
	b.queue.poke()
	return nil
}

func (b *RTMidiBackend) QueueTickNow(queue QueueID) (uint64, error) {
	return b.queue.tickNow(), nil
}

func (b *RTMidiBackend) RemoveEvents(filter RemoveFilter) error {
	b.queue.removeMatching(filter)
	return nil
}

func (b *RTMidiBackend) Subscribe(sender, dest PortHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[sender] == nil {
		b.subs[sender] = make(map[PortHandle]bool)
	}
	b.subs[sender][dest] = true
	return nil
}

func (b *RTMidiBackend) Unsubscribe(sender, dest PortHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[sender], dest)
	return nil
}

func (b *RTMidiBackend) QuerySubscribers(port PortHandle) ([]PortHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PortHandle, 0, len(b.subs[port]))
	for d := range b.subs[port] {
		out = append(out, d)
	}
	return out, nil
}

func (b *RTMidiBackend) EventInput() (InEvent, error) {
	select {
	case ev := <-b.inbox:
		return ev, nil
	case <-time.After(200 * time.Millisecond):
		return InEvent{}, ErrWouldBlock
	}
}

func (b *RTMidiBackend) AnnounceRecv() (HotplugEvent, error) {
	select {
	case ev := <-b.announce:
		return ev, nil
	case <-time.After(200 * time.Millisecond):
		return HotplugEvent{}, ErrWouldBlock
	}
}

func (b *RTMidiBackend) Close() error {
	b.mu.Lock()
	for _, p := range b.ports {
		if p.stop != nil {
			p.stop()
		}
	}
	b.mu.Unlock()
	gomidi.CloseDriver()
	return nil
}
