// opl3_chip_test.go - Tests for the built-in FM synthesis core.

package musdoom

import "testing"

// writeTestTone programs a sustained sine on channel 0 of the first
// array: silent modulator, instant carrier attack, no decay.
func writeTestTone(c *OPL3Chip, fnum uint16, block uint8) {
	c.WriteReg(0x20, 0x01) // modulator mult 1
	c.WriteReg(0x23, 0x21) // carrier sustained, mult 1
	c.WriteReg(0x40, 0x3f) // modulator fully attenuated
	c.WriteReg(0x43, 0x00) // carrier at full level
	c.WriteReg(0x60, 0x00) // modulator never attacks
	c.WriteReg(0x63, 0xf0) // carrier instant attack, no decay
	c.WriteReg(0x83, 0x0f) // carrier release 15
	c.WriteReg(0xa0, uint8(fnum))
	c.WriteReg(0xb0, uint8(fnum>>8)&0x03|block<<2|OPL_KEY_ON)
}

// risingCrossings counts negative-to-positive transitions of the left
// channel over n frames.
func risingCrossings(c *OPL3Chip, n int) int {
	crossings := 0
	var prev int16
	for i := 0; i < n; i++ {
		l, _ := c.GenerateResampled()
		if prev <= 0 && l > 0 {
			crossings++
		}
		prev = l
	}
	return crossings
}

func TestOPL3ChipSilentAfterReset(t *testing.T) {
	c := NewOPL3Chip()
	for i := 0; i < 1000; i++ {
		l, r := c.GenerateResampled()
		if l != 0 || r != 0 {
			t.Fatalf("sample %d = %d/%d, want silence", i, l, r)
		}
	}
}

func TestOPL3ChipToneFrequency(t *testing.T) {
	c := NewOPL3Chip()
	c.Reset(OPL_NATIVE_RATE)

	// F-number 0x202 at block 4: 514<<4/2^20 cycles a sample, which is
	// 389.9 Hz at the native rate.
	writeTestTone(c, 0x202, 4)

	// Let the attack settle, then count cycles over one second.
	for i := 0; i < 200; i++ {
		c.GenerateResampled()
	}
	crossings := risingCrossings(c, OPL_NATIVE_RATE)
	if crossings < 331 || crossings > 449 {
		t.Errorf("tone frequency = %d Hz, want about 390", crossings)
	}
}

func TestOPL3ChipResampling_KeepsPitch(t *testing.T) {
	// The same register program pitches identically at a different
	// output rate.
	c := NewOPL3Chip()
	c.Reset(48000)
	writeTestTone(c, 0x202, 4)

	for i := 0; i < 200; i++ {
		c.GenerateResampled()
	}
	crossings := risingCrossings(c, 48000)
	if crossings < 331 || crossings > 449 {
		t.Errorf("tone frequency = %d Hz at 48 kHz, want about 390", crossings)
	}
}

func TestOPL3ChipKeyOff_DecaysToSilence(t *testing.T) {
	c := NewOPL3Chip()
	c.Reset(OPL_NATIVE_RATE)
	writeTestTone(c, 0x202, 4)

	sounding := false
	for i := 0; i < 2000; i++ {
		l, _ := c.GenerateResampled()
		if l != 0 {
			sounding = true
		}
	}
	if !sounding {
		t.Fatal("keyed-on channel produced no output")
	}

	// Clear the key-on bit; release rate 15 dies away within a second.
	c.WriteReg(0xb0, 0x02&0x03|4<<2)
	for i := 0; i < OPL_NATIVE_RATE; i++ {
		c.GenerateResampled()
	}

	_, car := channelSlots(0)
	if c.ops[car].envStage != envOff {
		t.Errorf("carrier envelope stage = %d, want off", c.ops[car].envStage)
	}
	for i := 0; i < 100; i++ {
		l, r := c.GenerateResampled()
		if l != 0 || r != 0 {
			t.Fatalf("sample %d after release = %d/%d, want silence", i, l, r)
		}
	}
}

func TestOPL3ChipNewMode_GatesPan(t *testing.T) {
	c := NewOPL3Chip()
	c.Reset(OPL_NATIVE_RATE)
	writeTestTone(c, 0x202, 4)

	// Without the NEW bit the stereo select bits are dead and a voice
	// reaches both outputs, even with both bits clear.
	var maxL, maxR int16
	for i := 0; i < 2000; i++ {
		l, r := c.GenerateResampled()
		if l > maxL {
			maxL = l
		}
		if r > maxR {
			maxR = r
		}
	}
	if maxL == 0 || maxR == 0 {
		t.Fatalf("pre-NEW peaks = %d/%d, want both channels sounding", maxL, maxR)
	}

	// With NEW set, a right-only voice leaves the left output silent.
	c.WriteReg(OPL_REG_NEW, 0x01)
	c.WriteReg(0xc0, OPL_PAN_RIGHT)
	maxL, maxR = 0, 0
	for i := 0; i < 2000; i++ {
		l, r := c.GenerateResampled()
		if l > maxL {
			maxL = l
		}
		if r > maxR {
			maxR = r
		}
	}
	if maxL != 0 {
		t.Errorf("left peak = %d, want silence on a right-only voice", maxL)
	}
	if maxR == 0 {
		t.Error("right output should keep sounding")
	}
}

func TestOPL3ChipWaveformSelectGating(t *testing.T) {
	c := NewOPL3Chip()

	// Plain OPL2 plays sine only.
	if got := c.effectiveWS(6); got != 0 {
		t.Errorf("ws without WSE = %d, want 0", got)
	}

	// OPL2 with waveform select enabled has the first four shapes.
	c.WriteReg(OPL_REG_WAVEFORM_ENABLE, 0x20)
	if got := c.effectiveWS(6); got != 2 {
		t.Errorf("ws with WSE = %d, want 6 masked to 2", got)
	}

	// OPL3 mode has all eight.
	c.WriteReg(OPL_REG_NEW, 0x01)
	if got := c.effectiveWS(6); got != 6 {
		t.Errorf("ws in OPL3 mode = %d, want 6", got)
	}
}

func TestOPL3ChipRegisterDecode(t *testing.T) {
	c := NewOPL3Chip()

	c.WriteReg(0x23, 0xf7)
	op := &c.ops[3] // carrier slot of channel 0
	if !op.am || !op.vib || !op.egt || !op.ksr || op.mult != 7 {
		t.Errorf("0x23=0xF7 decoded as am=%v vib=%v egt=%v ksr=%v mult=%d",
			op.am, op.vib, op.egt, op.ksr, op.mult)
	}

	c.WriteReg(0x43, 0x85)
	if op.ksl != 2 || op.tl != 0x05 {
		t.Errorf("0x43=0x85 decoded as ksl=%d tl=0x%02X, want 2/0x05", op.ksl, op.tl)
	}

	c.WriteReg(0x63, 0xa4)
	if op.ar != 0x0a || op.dr != 0x04 {
		t.Errorf("0x63=0xA4 decoded as ar=%d dr=%d, want 10/4", op.ar, op.dr)
	}

	c.WriteReg(0x83, 0x2b)
	if op.sl != 0x02 || op.rr != 0x0b {
		t.Errorf("0x83=0x2B decoded as sl=%d rr=%d, want 2/11", op.sl, op.rr)
	}

	c.WriteReg(0xe3, 0x05)
	if op.ws != 5 {
		t.Errorf("0xE3=0x05 decoded as ws=%d, want 5", op.ws)
	}

	c.WriteReg(0xa0, 0x41)
	c.WriteReg(0xb0, 0x2e)
	ch := &c.channels[0]
	if ch.fnum != 0x241 || ch.block != 3 || !ch.keyOn {
		t.Errorf("frequency decoded as fnum=0x%03X block=%d keyOn=%v, want 0x241/3/true",
			ch.fnum, ch.block, ch.keyOn)
	}

	c.WriteReg(0xc0, 0x3d)
	if ch.feedback != 6 || ch.algorithm != 1 || !ch.panR || !ch.panL {
		t.Errorf("0xC0=0x3D decoded as feedback=%d algorithm=%d panR=%v panL=%v",
			ch.feedback, ch.algorithm, ch.panR, ch.panL)
	}

	c.WriteReg(OPL_REG_DEPTH, 0xc0)
	if !c.tremoloDeep || !c.vibratoDeep {
		t.Errorf("0xBD=0xC0 decoded as tremolo=%v vibrato=%v, want deep/deep",
			c.tremoloDeep, c.vibratoDeep)
	}
}

func TestOPL3ChipUnmappedWritesIgnored(t *testing.T) {
	c := NewOPL3Chip()

	// Operator offsets 0x06-0x07 and channel indices past 8 are holes
	// in the register map.
	c.WriteReg(0x46, 0xff)
	c.WriteReg(0x4f, 0xff)
	c.WriteReg(0xb9, 0xff)
	c.WriteReg(0xf8, 0xff)

	for i := range c.ops {
		if c.ops[i].tl != 0 {
			t.Fatalf("hole write landed on operator %d", i)
		}
	}
	for i := range c.channels {
		if c.channels[i].keyOn {
			t.Fatalf("hole write keyed channel %d", i)
		}
	}
}

func TestChannelSlots(t *testing.T) {
	cases := map[int][2]int{
		0:  {0, 3},
		1:  {1, 4},
		2:  {2, 5},
		3:  {6, 9},
		5:  {8, 11},
		6:  {12, 15},
		8:  {14, 17},
		9:  {18, 21},
		17: {32, 35},
	}
	for ch, want := range cases {
		mod, car := channelSlots(ch)
		if mod != want[0] || car != want[1] {
			t.Errorf("channelSlots(%d) = %d/%d, want %d/%d", ch, mod, car, want[0], want[1])
		}
	}
}

func TestOPL3ChipSecondArrayVoices(t *testing.T) {
	// The second register array synthesizes regardless of the NEW bit;
	// hardware gates only the stereo select through it.
	c := NewOPL3Chip()
	c.Reset(OPL_NATIVE_RATE)

	c.WriteReg(0x120, 0x01)
	c.WriteReg(0x123, 0x21)
	c.WriteReg(0x140, 0x3f)
	c.WriteReg(0x143, 0x00)
	c.WriteReg(0x160, 0x00)
	c.WriteReg(0x163, 0xf0)
	c.WriteReg(0x183, 0x0f)
	c.WriteReg(0x1a0, 0x02)
	c.WriteReg(0x1b0, 0x02|4<<2|OPL_KEY_ON)

	sounding := false
	for i := 0; i < 2000; i++ {
		l, _ := c.GenerateResampled()
		if l != 0 {
			sounding = true
			break
		}
	}
	if !sounding {
		t.Error("second-array voice produced no output")
	}
}
