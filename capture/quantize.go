package capture

import (
	"bytes"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	"gitlab.com/gomidi/quantizer/lib/quantizer"

	"github.com/xuxin333/qtractor/midi"
)

// Quantize snaps a captured event sequence onto the tick grid implied
// by ticksPerBeat/bpm. It goes through the same SMF-round-trip as the
// bank quantize command: encode to a Standard MIDI File in memory,
// hand it to the quantizer, decode the result back into Events.
func Quantize(events []midi.Event, ticksPerBeat uint16, bpm float64) ([]midi.Event, error) {
	track := smf.Track{}
	track.Add(0, smf.MetaTempo(bpm))

	var last uint32
	for _, ev := range events {
		delta := ev.Tick - last
		last = ev.Tick
		msg := ev.Message(ev.Channel)
		if msg == nil {
			continue
		}
		track.Add(delta, msg)
	}
	track.Close(0)

	file := smf.New()
	file.TimeFormat = smf.MetricTicks(ticksPerBeat)
	if err := file.Add(track); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return nil, err
	}
	if err := quantizer.Quantize(&buf, &buf); err != nil {
		return nil, err
	}

	quantized := smf.ReadTracksFrom(&buf).SMF()
	if quantized.NumTracks() < 1 {
		return nil, nil
	}

	out := make([]midi.Event, 0, len(events))
	var tick uint32
	for _, ev := range quantized.Tracks[0] {
		tick += uint32(ev.Delta)
		if e, ok := fromMessage(tick, gomidi.Message(ev.Message)); ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func fromMessage(tick uint32, msg gomidi.Message) (midi.Event, bool) {
	var ch, d1, d2 uint8
	switch {
	case msg.GetNoteOn(&ch, &d1, &d2):
		return midi.NewEvent(tick, midi.NoteOn, ch, d1, d2, 0), true
	case msg.GetNoteOff(&ch, &d1, &d2):
		return midi.NewEvent(tick, midi.NoteOff, ch, d1, d2, 0), true
	case msg.GetControlChange(&ch, &d1, &d2):
		return midi.NewEvent(tick, midi.Controller, ch, d1, d2, 0), true
	case msg.GetProgramChange(&ch, &d2):
		return midi.NewEvent(tick, midi.ProgramChange, ch, 0, d2, 0), true
	}
	return midi.Event{}, false
}
