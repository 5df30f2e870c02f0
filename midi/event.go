// Package midi holds the sequencing core's data model: events, buses
// and patches. It has no dependency on any particular sequencer
// backend — see package backend for that.
package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// EventKind mirrors the handful of channel-voice and sysex message
// types the core schedules or captures.
type EventKind uint8

const (
	NoteOn EventKind = iota
	NoteOff
	KeyPressure
	Controller
	ProgramChange
	ChannelPressure
	PitchBend
	Sysex
)

func (k EventKind) String() string {
	switch k {
	case NoteOn:
		return "NoteOn"
	case NoteOff:
		return "NoteOff"
	case KeyPressure:
		return "KeyPressure"
	case Controller:
		return "Controller"
	case ProgramChange:
		return "ProgramChange"
	case ChannelPressure:
		return "ChannelPressure"
	case PitchBend:
		return "PitchBend"
	case Sysex:
		return "Sysex"
	default:
		return "Unknown"
	}
}

// Event is a single timestamped MIDI event, either captured from an
// input port or queued for scheduled output.
//
// NoteOn with a zero velocity is normalised to NoteOff at construction
// time: every observer downstream of NewEvent sees NoteOff, never a
// zero-velocity NoteOn.
type Event struct {
	Tick          uint32
	Kind          EventKind
	Channel       uint8 // 0-15
	Data1         uint8
	Data2         uint8
	DurationTicks uint32
	SysexData     []byte
}

// NewEvent builds an Event, applying the velocity-0 NoteOn -> NoteOff
// normalisation.
func NewEvent(tick uint32, kind EventKind, channel, data1, data2 uint8, durationTicks uint32) Event {
	if kind == NoteOn && data2 == 0 {
		kind = NoteOff
	}
	return Event{
		Tick:          tick,
		Kind:          kind,
		Channel:       channel & 0x0f,
		Data1:         data1,
		Data2:         data2,
		DurationTicks: durationTicks,
	}
}

// NewSysex builds a Sysex event, validating the F0..F7 framing.
func NewSysex(tick uint32, data []byte) (Event, error) {
	ev := Event{Tick: tick, Kind: Sysex, SysexData: data}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Validate checks the invariants NewEvent alone cannot enforce (sysex
// framing in particular, since the payload may be built in stages).
func (e Event) Validate() error {
	if e.Kind == Sysex {
		if len(e.SysexData) < 2 || e.SysexData[0] != 0xF0 || e.SysexData[len(e.SysexData)-1] != 0xF7 {
			return fmt.Errorf("midi: malformed sysex frame (want F0..F7, got % X)", e.SysexData)
		}
	}
	if e.Channel > 0x0f {
		return fmt.Errorf("midi: channel %d out of range", e.Channel)
	}
	return nil
}

// Note returns Data1 interpreted as a note number (NoteOn/NoteOff/KeyPressure).
func (e Event) Note() uint8 { return e.Data1 }

// Velocity returns Data2 interpreted as a velocity (NoteOn/NoteOff).
func (e Event) Velocity() uint8 { return e.Data2 }

// ControllerNumber returns Data1 interpreted as a CC number (Controller).
func (e Event) ControllerNumber() uint8 { return e.Data1 }

// Value returns Data2, the generic "value" field used by every kind
// except NoteOn/NoteOff (which use Velocity) and Sysex.
func (e Event) Value() uint8 { return e.Data2 }

// IsPlayable reports whether the event carries a wire-representable
// message (matches smf.Message.IsPlayable in spirit: meta/non-channel
// events are excluded upstream, before an Event is ever constructed).
func (e Event) IsPlayable() bool {
	return true
}

// Message renders the event as a gomidi wire message on the given
// channel. The event's own Channel field is not consulted, so callers
// pass the channel explicitly (track-scoped output passes the owning
// track's channel).
func (e Event) Message(channel uint8) gomidi.Message {
	switch e.Kind {
	case NoteOn:
		return gomidi.NoteOn(channel, e.Data1, e.Data2)
	case NoteOff:
		return gomidi.NoteOff(channel, e.Data1)
	case KeyPressure:
		return gomidi.PolyAfterTouch(channel, e.Data1, e.Data2)
	case Controller:
		return gomidi.ControlChange(channel, e.Data1, e.Data2)
	case ProgramChange:
		return gomidi.ProgramChange(channel, e.Data2)
	case ChannelPressure:
		return gomidi.AfterTouch(channel, e.Data2)
	case PitchBend:
		return gomidi.Pitchbend(channel, int16(e.Data2)-64)
	case Sysex:
		return gomidi.SysEx(e.SysexData)
	default:
		return nil
	}
}
