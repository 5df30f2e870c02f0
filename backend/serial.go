package backend

import (
	"fmt"
	"io"
	"sync"
	"time"

	goserial "github.com/albenik/go-serial/v2"
	charmlog "github.com/charmbracelet/log"

	"github.com/xuxin333/qtractor/midi"
)

// SerialBackend is a second concrete Sequencer Backend for boards that
// speak raw MIDI over a serial line instead of exposing a kernel MIDI
// sequencer client (cmd/serial-piano's hardware, generalised from its
// bespoke 2-byte keypad protocol to plain running-status MIDI bytes).
//
// A serial line has exactly one duplex endpoint, so SerialBackend only
// ever hands out a single PortHandle (0) from its first CreatePort
// call; every later call is rejected, whatever name it passes. Scheduling reuses the same softwareQueue as
// RTMidiBackend, since go-serial gives us nothing but Read/Write.
type SerialBackend struct {
	log  *charmlog.Logger
	port io.ReadWriteCloser

	mu     sync.Mutex
	opened bool

	queue *softwareQueue
	inbox chan InEvent

	announce chan HotplugEvent
	closeCh  chan struct{}
}

// NewSerialBackend opens portName at baud and starts the background
// reader that turns incoming running-status MIDI bytes into InEvents.
func NewSerialBackend(log *charmlog.Logger, portName string, baud int) (*SerialBackend, error) {
	port, err := goserial.Open(portName,
		goserial.WithBaudrate(baud),
		goserial.WithDataBits(8),
		goserial.WithParity(goserial.NoParity),
		goserial.WithStopBits(goserial.OneStopBit),
	)
	if err != nil {
		return nil, &Error{Kind: BackendOpen, Op: "NewSerialBackend", Err: err}
	}
	b := &SerialBackend{
		log:      log,
		port:     port,
		inbox:    make(chan InEvent, 256),
		announce: make(chan HotplugEvent, 8),
		closeCh:  make(chan struct{}),
	}
	b.queue = newSoftwareQueue(b.writeDirect)
	go b.readLoop()
	return b, nil
}

func (b *SerialBackend) OpenClient(name string) (ClientID, error) { return 0, nil }
func (b *SerialBackend) AllocQueue() (QueueID, error)             { return 0, nil }

func (b *SerialBackend) CreatePort(name string, caps PortCaps) (PortHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opened {
		return 0, &Error{Kind: BackendTransient, Op: "CreatePort", Err: fmt.Errorf("serial backend already has a port open")}
	}
	b.opened = true
	return 0, nil
}

func (b *SerialBackend) SetPortTimestamping(port PortHandle, queue QueueID, ticks bool) error {
	return nil
}

func (b *SerialBackend) SetQueueTempo(queue QueueID, ppq uint16, microsPerQuarter uint32) error {
	b.queue.setTempo(ppq, microsPerQuarter)
	return nil
}

func (b *SerialBackend) StartQueue(queue QueueID) error { b.queue.start_(); return nil }
func (b *SerialBackend) StopQueue(queue QueueID) error  { b.queue.stop_(); return nil }

func (b *SerialBackend) DropInput() error {
	for len(b.inbox) > 0 {
		<-b.inbox
	}
	return nil
}

func (b *SerialBackend) DropOutput() error {
	b.queue.mu.Lock()
	b.queue.pending = nil
	b.queue.mu.Unlock()
	return nil
}

func (b *SerialBackend) writeDirect(ev OutEvent) error {
	fake := midi.Event{Kind: ev.Kind, Channel: ev.Channel, Data1: ev.Data1, Data2: ev.Data2, SysexData: ev.Sysex}
	msg := fake.Message(ev.Channel)
	if msg == nil {
		return &Error{Kind: BackendTransient, Op: "EventOutput", Err: fmt.Errorf("unrepresentable event kind %v", ev.Kind)}
	}
	if _, err := b.port.Write(msg); err != nil {
		return &Error{Kind: BackendTransient, Op: "EventOutput", Err: err}
	}
	return nil
}

func (b *SerialBackend) EventOutput(ev OutEvent) error { return b.queue.submit(ev) }
func (b *SerialBackend) DrainOutput() error            { b.queue.poke(); return nil }

func (b *SerialBackend) QueueTickNow(queue QueueID) (uint64, error) {
	return b.queue.tickNow(), nil
}

func (b *SerialBackend) RemoveEvents(filter RemoveFilter) error {
	b.queue.removeMatching(filter)
	return nil
}

// Subscribe/Unsubscribe/QuerySubscribers have no meaning on a
// single-endpoint serial link; they succeed trivially so callers
// written against the Backend interface don't need a type switch.
func (b *SerialBackend) Subscribe(sender, dest PortHandle) error   { return nil }
func (b *SerialBackend) Unsubscribe(sender, dest PortHandle) error { return nil }
func (b *SerialBackend) QuerySubscribers(port PortHandle) ([]PortHandle, error) {
	return nil, nil
}

// readLoop runs a running-status MIDI byte parser over the serial
// stream, the same shape as cmd/serial-piano's hand-rolled read loop
// but generalised from its 2-byte keypad protocol to real MIDI wire
// bytes, since no MIDI stream parser exists anywhere in the retrieved
// libraries.
func (b *SerialBackend) readLoop() {
	buf := make([]byte, 1)
	var status byte
	var data []byte
	need := 0

	dataLenFor := func(status byte) int {
		switch status & 0xf0 {
		case 0x80, 0x90, 0xA0, 0xB0, 0xE0:
			return 2
		case 0xC0, 0xD0:
			return 1
		default:
			return -1
		}
	}

	for {
		select {
		case <-b.closeCh:
			return
		default:
		}
		n, err := b.port.Read(buf)
		if err != nil || n == 0 {
			if b.log != nil && err != nil {
				b.log.Warn("serial read error", "err", err)
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		by := buf[0]
		if by&0x80 != 0 && by < 0xF0 {
			status = by
			need = dataLenFor(status)
			data = data[:0]
			continue
		}
		if need <= 0 {
			continue
		}
		data = append(data, by)
		if len(data) < need {
			continue
		}
		b.emit(status, data)
		data = data[:0]
	}
}

func (b *SerialBackend) emit(status byte, data []byte) {
	ch := status & 0x0f
	ev := InEvent{Channel: ch, DestPort: 0}
	switch status & 0xf0 {
	case 0x80:
		ev.Kind, ev.Data1, ev.Data2 = midi.NoteOff, data[0], data[1]
	case 0x90:
		if data[1] == 0 {
			ev.Kind = midi.NoteOff
		} else {
			ev.Kind = midi.NoteOn
		}
		ev.Data1, ev.Data2 = data[0], data[1]
	case 0xA0:
		ev.Kind, ev.Data1, ev.Data2 = midi.KeyPressure, data[0], data[1]
	case 0xB0:
		ev.Kind, ev.Data1, ev.Data2 = midi.Controller, data[0], data[1]
	case 0xC0:
		ev.Kind, ev.Data2 = midi.ProgramChange, data[0]
	case 0xD0:
		ev.Kind, ev.Data2 = midi.ChannelPressure, data[0]
	case 0xE0:
		ev.Kind, ev.Data2 = midi.PitchBend, data[1]
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

func (b *SerialBackend) EventInput() (InEvent, error) {
	select {
	case ev := <-b.inbox:
		return ev, nil
	case <-time.After(200 * time.Millisecond):
		return InEvent{}, ErrWouldBlock
	}
}

// AnnounceRecv never fires: a serial link has no hot-plug notion
// beyond the port disappearing outright, which surfaces as a read
// error instead.
func (b *SerialBackend) AnnounceRecv() (HotplugEvent, error) {
	select {
	case ev := <-b.announce:
		return ev, nil
	case <-time.After(200 * time.Millisecond):
		return HotplugEvent{}, ErrWouldBlock
	}
}

func (b *SerialBackend) Close() error {
	close(b.closeCh)
	b.queue.stop_()
	return b.port.Close()
}
