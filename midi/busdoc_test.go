package midi

import "testing"

func TestBusXMLRoundTrip(t *testing.T) {
	d := &fakeDispatcher{}
	bus := NewBus("Synth Bus", d)
	if err := bus.SetPatch(0, Patch{
		InstrumentName: "Grand Piano",
		BankSelMethod:  BankSelMSB,
		Bank:           5,
		Program:        12,
	}); err != nil {
		t.Fatalf("SetPatch: %v", err)
	}
	if err := bus.SetPatch(9, Patch{
		InstrumentName: "Drum Kit",
		BankSelMethod:  BankSelNone,
		Bank:           -1,
		Program:        0,
	}); err != nil {
		t.Fatalf("SetPatch: %v", err)
	}

	data, err := bus.MarshalXML()
	if err != nil {
		t.Fatalf("MarshalXML: %v", err)
	}

	loaded, err := UnmarshalBusXML(data, d)
	if err != nil {
		t.Fatalf("UnmarshalBusXML: %v", err)
	}
	if loaded.Name != "Synth Bus" {
		t.Errorf("Name = %q, want %q", loaded.Name, "Synth Bus")
	}

	p0, ok := loaded.Patch(0)
	if !ok {
		t.Fatalf("expected channel 0's patch to round-trip")
	}
	if p0.InstrumentName != "Grand Piano" || p0.BankSelMethod != BankSelMSB || p0.Bank != 5 || p0.Program != 12 {
		t.Errorf("channel 0 patch = %+v", p0)
	}

	p9, ok := loaded.Patch(9)
	if !ok || p9.InstrumentName != "Drum Kit" {
		t.Errorf("channel 9 patch = %+v, %v", p9, ok)
	}
}

func TestUnmarshalBusXMLDropsEmptyInstrumentEntries(t *testing.T) {
	doc := []byte(`<midi-bus name="Broken">
		<midi-patch channel="0">
			<midi-instrument></midi-instrument>
		</midi-patch>
		<midi-patch channel="1">
			<midi-instrument>Real Instrument</midi-instrument>
			<midi-bank-sel-method>0</midi-bank-sel-method>
			<midi-bank>0</midi-bank>
			<midi-program>0</midi-program>
		</midi-patch>
	</midi-bus>`)

	bus, err := UnmarshalBusXML(doc, nil)
	if err != nil {
		t.Fatalf("UnmarshalBusXML: %v", err)
	}
	if _, ok := bus.Patch(0); ok {
		t.Errorf("patch with an empty instrument name should have been dropped")
	}
	if _, ok := bus.Patch(1); !ok {
		t.Errorf("patch with a real instrument name should have loaded")
	}
}
