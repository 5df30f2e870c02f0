package midi

// Controller numbers the core cares about directly.
const (
	CCBankSelectMSB  uint8 = 0x00
	CCChannelVolume  uint8 = 0x07
	CCChannelPanning uint8 = 0x0A
	CCBankSelectLSB  uint8 = 0x20
	CCAllSoundOff    uint8 = 0x78
	CCAllControlOff  uint8 = 0x79
	CCAllNotesOff    uint8 = 0x7B
)

// Sysex framing bytes.
const (
	SysexStart byte = 0xF0
	SysexEnd   byte = 0xF7
)
