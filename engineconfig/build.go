package engineconfig

import (
	"fmt"

	charmlog "github.com/charmbracelet/log"

	"github.com/xuxin333/qtractor/backend"
)

// OpenBackend constructs the concrete backend.Backend a Config
// designates. Callers still call Engine.Init afterwards.
func OpenBackend(cfg Config, log *charmlog.Logger) (backend.Backend, error) {
	switch cfg.Backend {
	case BackendRTMidi, "":
		return backend.NewRTMidiBackend(log)
	case BackendSerial:
		if cfg.SerialPort == "" {
			return nil, fmt.Errorf("engineconfig: backend %q requires serial_port", cfg.Backend)
		}
		baud := cfg.SerialBaud
		if baud == 0 {
			baud = 31250 // the MIDI standard baud rate
		}
		return backend.NewSerialBackend(log, cfg.SerialPort, baud)
	default:
		return nil, fmt.Errorf("engineconfig: unknown backend kind %q", cfg.Backend)
	}
}

// PortCaps returns the backend.PortCaps a BusConfig entry requests. A
// control bus is opened duplex regardless of its Read/Write flags,
// since MMC needs to both send and trap.
func (b BusConfig) PortCaps() backend.PortCaps {
	if b.Control {
		return backend.CapRead | backend.CapWrite
	}
	var caps backend.PortCaps
	if b.Read {
		caps |= backend.CapRead
	}
	if b.Write {
		caps |= backend.CapWrite
	}
	return caps
}
