// Package backend abstracts the sequencer backend capability surface:
// the rest of the sequencing core depends only on this interface,
// never directly on a kernel MIDI sequencer. Two concrete
// implementations are provided: rtmidi.go (backed by
// gitlab.com/gomidi/midi/v2/drivers/rtmididrv) and serial.go (backed
// by github.com/albenik/go-serial/v2, for boards that speak
// MIDI-over-serial instead of exposing a kernel sequencer port).
package backend

import (
	"errors"
	"fmt"

	"github.com/xuxin333/qtractor/midi"
)

// ErrWouldBlock is returned by EventInput when no inbound event is
// currently available and the caller should not block further.
var ErrWouldBlock = errors.New("backend: would block")

// ErrorKind classifies backend failures.
type ErrorKind int

const (
	BackendOpen ErrorKind = iota
	BackendTransient
	BackAhead
	DocumentMalformed
	MmcMalformed
	PortSubscribeFailed
)

func (k ErrorKind) String() string {
	switch k {
	case BackendOpen:
		return "BackendOpen"
	case BackendTransient:
		return "BackendTransient"
	case BackAhead:
		return "BackAhead"
	case DocumentMalformed:
		return "DocumentMalformed"
	case MmcMalformed:
		return "MmcMalformed"
	case PortSubscribeFailed:
		return "PortSubscribeFailed"
	default:
		return "Unknown"
	}
}

// Error wraps a backend failure with its op and kind. Only a
// BackendOpen error is fatal to Engine.Init; every other kind is
// logged and swallowed by the caller.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("backend: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// PortCaps mirrors the ALSA sequencer's port capability bitmask.
type PortCaps uint8

const (
	CapWrite PortCaps = 1 << iota
	CapRead
	CapSubsWrite
	CapSubsRead
	CapNoExport
)

func (c PortCaps) Has(f PortCaps) bool { return c&f != 0 }

type (
	ClientID   int32
	QueueID    int32
	PortHandle int32
)

// OutEvent is a single event submitted to EventOutput. Scheduled
// events carry a Tick relative to queue start; Direct events bypass
// the queue and are dispatched immediately by the backend (used for
// UI knobs, patch sends and shutdown).
type OutEvent struct {
	Direct     bool
	Tick       uint32
	Tag        uint8
	Queue      QueueID
	SourcePort PortHandle
	Kind       midi.EventKind
	Channel    uint8
	Data1      uint8
	Data2      uint8
	Duration   uint32
	Sysex      []byte
}

// InEvent is a single event received via EventInput.
type InEvent struct {
	Tick     uint32
	Kind     midi.EventKind
	Channel  uint8
	Data1    uint8
	Data2    uint8
	Sysex    []byte
	DestPort PortHandle
}

// RemoveFilter selects which already-queued events RemoveEvents drops:
// all queued events with tag T and channel C after tick t.
type RemoveFilter struct {
	Queue       QueueID
	AfterTick   uint32
	Tag         uint8
	MatchTag    bool
	Channel     uint8
	SkipNoteOff bool
}

// HotplugEvent is delivered by AnnounceRecv when a port appears or
// disappears on the secondary system-announce subscription client.
type HotplugEvent struct {
	PortConnected bool
	Client        ClientID
	Port          PortHandle
}

// Backend is the capability surface the sequencing core depends on.
// Every method that can fail returns a *Error carrying its ErrorKind;
// callers decide whether that's fatal (only BackendOpen is, and only
// from Init).
type Backend interface {
	OpenClient(name string) (ClientID, error)
	AllocQueue() (QueueID, error)
	CreatePort(name string, caps PortCaps) (PortHandle, error)
	SetPortTimestamping(port PortHandle, queue QueueID, ticks bool) error
	SetQueueTempo(queue QueueID, ppq uint16, microsPerQuarter uint32) error
	StartQueue(queue QueueID) error
	StopQueue(queue QueueID) error
	DropInput() error
	DropOutput() error

	EventOutput(ev OutEvent) error
	DrainOutput() error
	QueueTickNow(queue QueueID) (uint64, error)
	RemoveEvents(filter RemoveFilter) error

	Subscribe(sender, dest PortHandle) error
	Unsubscribe(sender, dest PortHandle) error
	QuerySubscribers(port PortHandle) ([]PortHandle, error)

	// EventInput returns the next inbound event, or ErrWouldBlock if
	// none is pending within the poll timeout the implementation uses
	// internally.
	EventInput() (InEvent, error)

	// AnnounceRecv blocks (with its own internal timeout) for the next
	// hot-plug notification on the secondary announce client.
	AnnounceRecv() (HotplugEvent, error)

	Close() error
}
