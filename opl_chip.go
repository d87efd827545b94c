// opl_chip.go - OPL chip interface and register map

package musdoom

// OPL register base addresses. Operator registers add an operator offset
// from voiceOperators; voice registers add the voice index 0-8. Addresses
// for the second OPL3 register array OR in OPL_REG_ARRAY2.
const (
	OPL_REGS_TREMOLO  = 0x20
	OPL_REGS_LEVEL    = 0x40
	OPL_REGS_ATTACK   = 0x60
	OPL_REGS_SUSTAIN  = 0x80
	OPL_REGS_FREQ_1   = 0xA0
	OPL_REGS_FREQ_2   = 0xB0
	OPL_REGS_FEEDBACK = 0xC0
	OPL_REGS_WAVEFORM = 0xE0

	OPL_REG_WAVEFORM_ENABLE = 0x01
	OPL_REG_TIMER_CTRL      = 0x04
	OPL_REG_DEPTH           = 0xBD
	OPL_REG_NEW             = 0x105

	OPL_REG_ARRAY2 = 0x100

	OPL_KEY_ON = 0x20 // key-on bit of FREQ_2

	OPL_PAN_RIGHT  = 0x10
	OPL_PAN_LEFT   = 0x20
	OPL_PAN_CENTER = 0x30

	OPL_NUM_VOICES  = 9 // per register array
	OPL3_NUM_VOICES = 18

	OPL_NATIVE_RATE = 49716 // Hz, chip DAC rate
)

// OPLChip is the FM synthesis device the driver programs. addr is a 9-bit
// register address with bit 8 selecting the second OPL3 array.
// Implementations resample their native output to the rate given to
// Reset and keep producing samples while no key is down, so release
// tails ring out naturally.
type OPLChip interface {
	Reset(sampleRate int)
	WriteReg(addr uint16, value uint8)
	GenerateResampled() (left, right int16)
}
