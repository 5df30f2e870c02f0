package engine

import (
	"github.com/xuxin333/qtractor/backend"
	"github.com/xuxin333/qtractor/midi"
)

// portDispatcher adapts a backend.Backend + PortHandle into a
// midi.Dispatcher, so midi.Bus can send its direct (unscheduled)
// messages without depending on package backend itself.
type portDispatcher struct {
	be   backend.Backend
	port backend.PortHandle
}

// NewPortDispatcher builds the midi.Dispatcher a Bus uses to reach the
// backend port that was opened for it.
func NewPortDispatcher(be backend.Backend, port backend.PortHandle) midi.Dispatcher {
	return &portDispatcher{be: be, port: port}
}

func (d *portDispatcher) SendController(channel, controller, value uint8) error {
	return d.be.EventOutput(backend.OutEvent{
		Direct: true, SourcePort: d.port, Kind: midi.Controller,
		Channel: channel, Data1: controller, Data2: value,
	})
}

func (d *portDispatcher) SendProgramChange(channel, program uint8) error {
	return d.be.EventOutput(backend.OutEvent{
		Direct: true, SourcePort: d.port, Kind: midi.ProgramChange,
		Channel: channel, Data2: program,
	})
}

func (d *portDispatcher) SendSysex(data []byte) error {
	return d.be.EventOutput(backend.OutEvent{
		Direct: true, SourcePort: d.port, Kind: midi.Sysex, Sysex: data,
	})
}
