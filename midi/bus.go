package midi

import (
	"sync"

	"github.com/xuxin333/qtractor/monitor"
)

// BankSelMethod picks which bank-select controllers setPatch emits,
// mirroring qtractorMidiBus::setPatch's iBankSelMethod argument.
type BankSelMethod int

const (
	BankSelMSBLSB BankSelMethod = iota // both MSB and LSB
	BankSelMSB                         // MSB only
	BankSelLSB                         // LSB only
	BankSelNone                        // no bank select, program change only
)

// Patch is one channel's remembered instrument assignment. Bank
// and Program of -1 mean "unset"; a Patch with an empty InstrumentName
// is dropped rather than persisted, matching the original's
// rollback-on-empty-instrument load behaviour.
type Patch struct {
	InstrumentName string
	BankSelMethod  BankSelMethod
	Bank           int
	Program        int
}

// Dispatcher is the minimal capability a Bus needs from a backend
// port to emit direct (unscheduled) messages: Controller, Program
// Change and raw Sysex, exactly the three message shapes
// qtractorMidiBus's direct helpers ever send.
type Dispatcher interface {
	SendController(channel, controller, value uint8) error
	SendProgramChange(channel, program uint8) error
	SendSysex(data []byte) error
}

// Bus is a named, duplex MIDI port together with its per-channel patch
// map, direct-dispatch helpers and volume/panning controls. It has no
// direct sequencer dependency: everything goes through the
// Dispatcher it was built with, so a Bus works identically whichever
// concrete backend created its port.
type Bus struct {
	Name string

	// InMonitor/OutMonitor are non-nil only while the bus is open in a
	// mode that needs them, created/destroyed alongside the bus's mode
	// by its owner.
	InMonitor  *monitor.Monitor
	OutMonitor *monitor.Monitor

	mu      sync.RWMutex
	patches map[uint8]Patch
	out     Dispatcher
}

// NewBus builds a Bus that dispatches through out (nil is allowed for
// buses used purely as monitor/capture sinks with no live output).
func NewBus(name string, out Dispatcher) *Bus {
	return &Bus{Name: name, patches: make(map[uint8]Patch), out: out}
}

// SetPatch remembers the channel's instrument assignment and, if the
// bus has a live dispatcher, immediately sends the corresponding
// bank-select/program-change sequence.
func (b *Bus) SetPatch(channel uint8, p Patch) error {
	channel &= 0x0f
	if p.InstrumentName != "" {
		b.mu.Lock()
		b.patches[channel] = p
		b.mu.Unlock()
	}
	if b.out == nil {
		return nil
	}
	if p.Bank >= 0 && (p.BankSelMethod == BankSelMSBLSB || p.BankSelMethod == BankSelMSB) {
		if err := b.out.SendController(channel, CCBankSelectMSB, uint8((p.Bank&0x3f80)>>7)); err != nil {
			return err
		}
	}
	if p.Bank >= 0 && (p.BankSelMethod == BankSelMSBLSB || p.BankSelMethod == BankSelLSB) {
		if err := b.out.SendController(channel, CCBankSelectLSB, uint8(p.Bank&0x7f)); err != nil {
			return err
		}
	}
	if p.Program < 0 {
		return nil
	}
	return b.out.SendProgramChange(channel, uint8(p.Program))
}

// Patch returns the channel's remembered patch and whether one is set.
func (b *Bus) Patch(channel uint8) (Patch, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.patches[channel&0x0f]
	return p, ok
}

// SetController sends a direct controller message, bypassing the
// scheduling queue entirely, as qtractorMidiBus::setController does.
func (b *Bus) SetController(channel, controller, value uint8) error {
	if b.out == nil {
		return nil
	}
	return b.out.SendController(channel&0x0f, controller, value)
}

// SendSysex sends a raw, already-framed sysex message directly.
func (b *Bus) SendSysex(data []byte) error {
	if b.out == nil {
		return nil
	}
	return b.out.SendSysex(data)
}

// SetVolume sends channel volume (CC7) scaled from a 0..1 float.
func (b *Bus) SetVolume(channel uint8, volume float32) error {
	return b.SetController(channel, CCChannelVolume, scale127(volume))
}

// SetPanning sends channel panning (CC10) scaled from a -1..1 float,
// using the original's off-by-one-safe centre formula.
func (b *Bus) SetPanning(channel uint8, panning float32) error {
	pan := (int(63.0*(1.0+panning)) + 1) & 0x7f
	return b.SetController(channel, CCChannelPanning, uint8(pan))
}

// SetMasterVolume sends the MMA Universal SysEx master volume message
// (device ID 0x7f = "all devices"), scaled from a 0..1 float.
func (b *Bus) SetMasterVolume(volume float32) error {
	vol := scale127(volume)
	sysex := []byte{SysexStart, 0x7f, 0x7f, 0x04, 0x01, 0x00, vol, SysexEnd}
	return b.SendSysex(sysex)
}

func scale127(f float32) uint8 {
	return uint8(int(127.0*f) & 0x7f)
}

// ShutOff sends All Sound Off and All Notes Off to every channel that
// currently has a patch assigned, and additionally All Controllers Off
// when closing the bus for good. Iterating only patched channels
// (rather than all 16) is a deliberate scope decision: see the design
// notes for the tradeoff.
func (b *Bus) ShutOff(closing bool) error {
	b.mu.RLock()
	channels := make([]uint8, 0, len(b.patches))
	for ch := range b.patches {
		channels = append(channels, ch)
	}
	b.mu.RUnlock()

	for _, ch := range channels {
		if err := b.SetController(ch, CCAllSoundOff, 0); err != nil {
			return err
		}
		if err := b.SetController(ch, CCAllNotesOff, 0); err != nil {
			return err
		}
		if closing {
			if err := b.SetController(ch, CCAllControlOff, 0); err != nil {
				return err
			}
		}
	}
	return nil
}
