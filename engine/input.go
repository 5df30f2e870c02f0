package engine

import (
	"errors"

	"github.com/xuxin333/qtractor/backend"
	"github.com/xuxin333/qtractor/midi"
)

// inputLoop is the Input Thread: it polls the backend for inbound
// events and routes each one to the MMC trap, record-armed tracks and
// input monitors.
func (e *Engine) inputLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}
		in, err := e.be.EventInput()
		if err != nil {
			if errors.Is(err, backend.ErrWouldBlock) {
				continue
			}
			e.log.Warn("event input", "err", err)
			continue
		}
		e.capture(in)
	}
}

// capture routes one inbound event: sysex is checked against the MMC
// trap first (and, if matched, never reaches a track or monitor);
// everything else is offered to every record-armed track on the
// matching channel and destination port, then to that port's bus input
// monitor.
func (e *Engine) capture(in backend.InEvent) {
	if in.Kind == midi.Sysex {
		if e.controlBusIn != nil && in.DestPort == e.controlBusIn.Port && IsMmc(in.Sysex) {
			if mmc, err := DecodeEnvelope(in.Sysex); err == nil {
				if e.mmcListener != nil {
					e.mmcListener.OnMmc(mmc)
				}
				return
			}
			e.log.Warn("malformed MMC sysex", "port", in.DestPort)
			return
		}
	}

	ev := midi.NewEvent(in.Tick, in.Kind, in.Channel, in.Data1, in.Data2, 0)
	if in.Kind == midi.Sysex {
		ev.SysexData = in.Sysex
	}

	for _, t := range e.tracksSnapshot() {
		if !t.Record || t.InputBus == nil || t.Channel != in.Channel {
			continue
		}
		if t.InputPort != in.DestPort {
			continue
		}
		if t.RecordClip != nil {
			t.RecordClip.Append(ev)
		}
		if t.Monitor != nil {
			t.Monitor.Enqueue(monitorEventType(ev.Kind), ev.Data2, uint64(in.Tick))
		}
	}

	e.busesMu.RLock()
	buses := append([]*BusEndpoint(nil), e.buses...)
	e.busesMu.RUnlock()
	for _, ep := range buses {
		if ep.Port == in.DestPort && ep.Bus.InMonitor != nil {
			ep.Bus.InMonitor.Enqueue(monitorEventType(ev.Kind), ev.Data2, uint64(in.Tick))
		}
	}
}
