// opl3_chip.go - built-in OPL3 FM synthesis core

package musdoom

import "math"

// OPL3Chip is a readable approximation of the YMF262. Register writes land
// exactly where the hardware puts them; the synthesis favours clarity over
// cycle accuracy. It renders at the chip's native 49716 Hz and resamples
// to the output rate with linear interpolation.
type OPL3Chip struct {
	sampleRate int

	newMode     bool // OPL3 NEW bit, gates the stereo select bits
	wse         bool // OPL2 waveform select enable
	tremoloDeep bool
	vibratoDeep bool

	ops      [36]fmOperator
	channels [18]fmChannel

	tremoloPhase float64
	vibratoPhase float64
	tremoloGain  float64
	vibratoMul   float64

	sampleAccum  int
	prevL, prevR float64
	curL, curR   float64
}

type fmOperator struct {
	am, vib, egt, ksr bool
	mult              uint8
	ksl               uint8
	tl                uint8
	ar, dr            uint8
	sl, rr            uint8
	ws                uint8

	phase    float64
	envStage int
	envLevel float64 // 0 silent, 1 full
	kslGain  float64
	out      float64 // feedback history
	prevOut  float64
}

type fmChannel struct {
	fnum      uint16
	block     uint8
	keyOn     bool
	feedback  uint8
	algorithm uint8
	panL      bool
	panR      bool
}

const (
	envAttack = iota
	envDecay
	envSustain
	envRelease
	envOff
)

// Synthesis tuning. The LFO rates and modulation depths approximate the
// YMF262's fixed hardware values.
const (
	oplTremoloHz   = 3.7
	oplVibratoHz   = 6.1
	oplModDepth    = 1.0 // phase swing in cycles at full modulator output
	oplMixGain     = 0.25
	oplOutputScale = 32000
)

// multTable maps the 4-bit frequency multiplier field to its factor.
var multTable = [16]float64{
	0.5, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 10, 12, 12, 15, 15,
}

// feedbackDepth maps the 3-bit feedback field to a phase swing in cycles.
var feedbackDepth = [8]float64{
	0, 1.0 / 128, 1.0 / 64, 1.0 / 32, 1.0 / 16, 1.0 / 8, 1.0 / 4, 1.0 / 2,
}

// tlGain maps the 6-bit total level field to linear gain, 0.75 dB a step.
var tlGain = func() [64]float64 {
	var t [64]float64
	for i := range t {
		t[i] = math.Pow(10, -0.75*float64(i)/20)
	}
	return t
}()

// sustainGain maps the 4-bit sustain level field to linear gain, 3 dB a
// step; 15 means silence.
var sustainGain = func() [16]float64 {
	var t [16]float64
	for i := 0; i < 15; i++ {
		t[i] = math.Pow(10, -3*float64(i)/20)
	}
	return t
}()

// Envelope timing for the sixteen OPL rate values: full swing duration in
// milliseconds. Rate 0 never moves; rate 15 is effectively instant.
var attackMs = [16]float64{
	0, 2826, 1413, 707, 353, 177, 88, 44, 22, 11, 5.5, 2.8, 1.4, 0.7, 0.3, 0,
}

var decayMs = [16]float64{
	0, 39280, 19640, 9821, 4910, 2455, 1228, 614, 307, 153, 77, 38, 19, 10, 5, 2.4,
}

// operatorSlots maps a register operator offset 0x00-0x15 to a slot index
// within one array, or -1 for the gaps in the register map.
var operatorSlots = [0x16]int{
	0, 1, 2, 3, 4, 5, -1, -1,
	6, 7, 8, 9, 10, 11, -1, -1,
	12, 13, 14, 15, 16, 17,
}

func NewOPL3Chip() *OPL3Chip {
	c := &OPL3Chip{}
	c.Reset(44100)
	return c
}

// Reset returns the chip to its power-on state and sets the output rate.
func (c *OPL3Chip) Reset(sampleRate int) {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	*c = OPL3Chip{sampleRate: sampleRate}
	for i := range c.ops {
		c.ops[i].envStage = envOff
		c.ops[i].kslGain = 1
	}
}

// WriteReg stores one register write. addr bit 8 selects the second
// register array; writes to unmapped addresses are ignored, as on
// hardware.
func (c *OPL3Chip) WriteReg(addr uint16, value uint8) {
	array := 0
	if addr&OPL_REG_ARRAY2 != 0 {
		array = 1
	}
	reg := addr & 0xff

	switch reg & 0xf0 {
	case 0x00:
		switch {
		case reg == OPL_REG_WAVEFORM_ENABLE && array == 0:
			c.wse = value&0x20 != 0
		case reg == 0x05 && array == 1:
			c.newMode = value&0x01 != 0
		}

	case 0x20, 0x30:
		if op := c.operatorAt(array, reg-0x20); op != nil {
			op.am = value&0x80 != 0
			op.vib = value&0x40 != 0
			op.egt = value&0x20 != 0
			op.ksr = value&0x10 != 0
			op.mult = value & 0x0f
		}

	case 0x40, 0x50:
		if op := c.operatorAt(array, reg-0x40); op != nil {
			op.ksl = value >> 6
			op.tl = value & 0x3f
			c.updateKSL(array)
		}

	case 0x60, 0x70:
		if op := c.operatorAt(array, reg-0x60); op != nil {
			op.ar = value >> 4
			op.dr = value & 0x0f
		}

	case 0x80, 0x90:
		if op := c.operatorAt(array, reg-0x80); op != nil {
			op.sl = value >> 4
			op.rr = value & 0x0f
		}

	case 0xa0:
		if ch := c.channelAt(array, reg-0xa0); ch != nil {
			ch.fnum = ch.fnum&0x300 | uint16(value)
			c.updateKSL(array)
		}

	case 0xb0:
		if reg == OPL_REG_DEPTH {
			c.tremoloDeep = value&0x80 != 0
			c.vibratoDeep = value&0x40 != 0
			return
		}
		if ch := c.channelAt(array, reg-0xb0); ch != nil {
			ch.fnum = ch.fnum&0xff | uint16(value&0x03)<<8
			ch.block = value >> 2 & 0x07
			c.updateKSL(array)

			keyOn := value&OPL_KEY_ON != 0
			if keyOn && !ch.keyOn {
				c.keyOnChannel(array, int(reg-0xb0))
			} else if !keyOn && ch.keyOn {
				c.keyOffChannel(array, int(reg-0xb0))
			}
			ch.keyOn = keyOn
		}

	case 0xc0:
		if ch := c.channelAt(array, reg-0xc0); ch != nil {
			ch.feedback = value >> 1 & 0x07
			ch.algorithm = value & 0x01
			// Bit 4 routes the voice to the right output and bit 5
			// to the left, the orientation DMX programs.
			ch.panR = value&0x10 != 0
			ch.panL = value&0x20 != 0
		}

	case 0xe0, 0xf0:
		if op := c.operatorAt(array, reg-0xe0); op != nil {
			op.ws = value & 0x07
		}
	}
}

func (c *OPL3Chip) operatorAt(array int, offset uint16) *fmOperator {
	if offset >= uint16(len(operatorSlots)) {
		return nil
	}
	slot := operatorSlots[offset]
	if slot < 0 {
		return nil
	}
	return &c.ops[array*18+slot]
}

func (c *OPL3Chip) channelAt(array int, index uint16) *fmChannel {
	if index >= 9 {
		return nil
	}
	return &c.channels[array*9+int(index)]
}

// channelSlots returns the modulator and carrier slot indices of a
// channel 0-17.
func channelSlots(ch int) (int, int) {
	local := ch % 9
	mod := ch/9*18 + local + local/3*3
	return mod, mod + 3
}

func (c *OPL3Chip) keyOnChannel(array, index int) {
	mod, car := channelSlots(array*9 + index)
	for _, slot := range [2]int{mod, car} {
		op := &c.ops[slot]
		op.phase = 0
		op.envStage = envAttack
	}
}

func (c *OPL3Chip) keyOffChannel(array, index int) {
	mod, car := channelSlots(array*9 + index)
	c.ops[mod].envStage = envRelease
	c.ops[car].envStage = envRelease
}

// updateKSL refreshes the key-scale attenuation of every operator in one
// array. Pitch and level registers change rarely next to the sample rate,
// so the gain is cached here rather than recomputed per sample.
func (c *OPL3Chip) updateKSL(array int) {
	for local := 0; local < 9; local++ {
		ch := &c.channels[array*9+local]
		mod, car := channelSlots(array*9 + local)
		c.ops[mod].kslGain = kslGain(c.ops[mod].ksl, ch.block, ch.fnum)
		c.ops[car].kslGain = kslGain(c.ops[car].ksl, ch.block, ch.fnum)
	}
}

// kslGain approximates OPL key scale level: output falls by 1.5, 3 or
// 6 dB per octave above the reference pitch, selected by the KSL bits.
func kslGain(ksl, block uint8, fnum uint16) float64 {
	if ksl == 0 {
		return 1
	}

	octaves := float64(block) + float64(fnum>>8)/4 - 5
	if octaves <= 0 {
		return 1
	}

	dbPerOctave := [4]float64{0, 3, 1.5, 6}
	return math.Pow(10, -octaves*dbPerOctave[ksl]/20)
}

// phaseIncrement returns oscillator cycles per native sample for an OPL
// F-number and block.
func phaseIncrement(fnum uint16, block uint8) float64 {
	return float64(uint32(fnum)<<block) / (1 << 20)
}

// GenerateResampled produces one stereo frame at the output rate.
func (c *OPL3Chip) GenerateResampled() (int16, int16) {
	c.sampleAccum += OPL_NATIVE_RATE
	for c.sampleAccum >= c.sampleRate {
		c.sampleAccum -= c.sampleRate
		c.prevL, c.prevR = c.curL, c.curR
		c.curL, c.curR = c.generateNative()
	}

	frac := float64(c.sampleAccum) / float64(c.sampleRate)
	l := c.prevL + (c.curL-c.prevL)*frac
	r := c.prevR + (c.curR-c.prevR)*frac
	return int16(l), int16(r)
}

// generateNative renders one frame at the chip rate.
func (c *OPL3Chip) generateNative() (float64, float64) {
	c.tremoloPhase += oplTremoloHz / OPL_NATIVE_RATE
	if c.tremoloPhase >= 1 {
		c.tremoloPhase--
	}
	c.vibratoPhase += oplVibratoHz / OPL_NATIVE_RATE
	if c.vibratoPhase >= 1 {
		c.vibratoPhase--
	}

	tremoloDepth := 1.0 // dB
	if c.tremoloDeep {
		tremoloDepth = 4.8
	}
	trough := (fastSin(TWO_PI*c.tremoloPhase) + 1) / 2
	c.tremoloGain = math.Pow(10, -tremoloDepth*trough/20)

	vibratoCents := 7.0
	if c.vibratoDeep {
		vibratoCents = 14
	}
	c.vibratoMul = math.Pow(2, fastSin(TWO_PI*c.vibratoPhase)*vibratoCents/1200)

	var left, right float64
	for ch := range c.channels {
		out := c.channelOutput(ch)
		if out == 0 {
			continue
		}

		chs := &c.channels[ch]
		// Without the NEW bit the stereo select bits have no effect
		// and every voice reaches both outputs.
		if !c.newMode || chs.panL {
			left += out
		}
		if !c.newMode || chs.panR {
			right += out
		}
	}

	l := fastTanh(left*oplMixGain) * oplOutputScale
	r := fastTanh(right*oplMixGain) * oplOutputScale
	return l, r
}

// channelOutput renders one two-operator channel.
func (c *OPL3Chip) channelOutput(ch int) float64 {
	chs := &c.channels[ch]
	modSlot, carSlot := channelSlots(ch)
	mod := &c.ops[modSlot]
	car := &c.ops[carSlot]

	if mod.envStage == envOff && car.envStage == envOff {
		return 0
	}

	baseInc := phaseIncrement(chs.fnum, chs.block)

	feedback := 0.0
	if chs.feedback > 0 {
		feedback = (mod.out + mod.prevOut) * feedbackDepth[chs.feedback]
	}

	modOut := c.operatorOutput(mod, chs, baseInc, feedback)
	mod.prevOut = mod.out
	mod.out = modOut

	if chs.algorithm != 0 {
		return modOut + c.operatorOutput(car, chs, baseInc, 0)
	}
	return c.operatorOutput(car, chs, baseInc, modOut*oplModDepth)
}

// operatorOutput advances one operator by a native sample and returns its
// output, with phaseMod in cycles added to the oscillator phase.
func (c *OPL3Chip) operatorOutput(op *fmOperator, chs *fmChannel, baseInc, phaseMod float64) float64 {
	inc := baseInc * multTable[op.mult]
	if op.vib {
		inc *= c.vibratoMul
	}
	op.phase += inc
	if op.phase >= 1 {
		op.phase -= math.Floor(op.phase)
	}

	env := c.stepEnvelope(op, chs)
	if env <= 0 {
		return 0
	}

	amp := env * tlGain[op.tl] * op.kslGain
	if op.am {
		amp *= c.tremoloGain
	}

	return oplWave(c.effectiveWS(op.ws), op.phase+phaseMod) * amp
}

// effectiveWS restricts the waveform select the way the chip mode does:
// OPL2 without waveform select plays sine only, OPL2 with it has the
// first four waveforms, OPL3 mode has all eight.
func (c *OPL3Chip) effectiveWS(ws uint8) uint8 {
	if c.newMode {
		return ws
	}
	if !c.wse {
		return 0
	}
	return ws & 0x03
}

// stepEnvelope advances an operator envelope by one native sample and
// returns its level. Rates are scaled by the channel's key code, fully
// when the operator's KSR bit is set.
func (c *OPL3Chip) stepEnvelope(op *fmOperator, chs *fmChannel) float64 {
	if op.envStage == envOff {
		return 0
	}
	if op.envStage == envSustain {
		return op.envLevel
	}

	keycode := int(chs.block)<<1 | int(chs.fnum>>9)
	if !op.ksr {
		keycode >>= 2
	}

	switch op.envStage {
	case envAttack:
		if op.ar == 0 {
			break
		}
		op.envLevel += envStep(attackMs[rateIndex(op.ar, keycode)])
		if op.envLevel >= 1 {
			op.envLevel = 1
			op.envStage = envDecay
		}

	case envDecay:
		if op.dr == 0 {
			break
		}
		sustain := sustainGain[op.sl]
		op.envLevel -= envStep(decayMs[rateIndex(op.dr, keycode)])
		if op.envLevel <= sustain {
			op.envLevel = sustain
			if op.egt {
				op.envStage = envSustain
			} else {
				// Percussive envelopes fall straight through at
				// the release rate.
				op.envStage = envRelease
			}
		}

	case envRelease:
		if op.rr == 0 {
			break
		}
		op.envLevel -= envStep(decayMs[rateIndex(op.rr, keycode)])
		if op.envLevel <= 0 {
			op.envLevel = 0
			op.envStage = envOff
		}
	}

	return op.envLevel
}

// rateIndex folds the key code into a 4-bit envelope rate.
func rateIndex(rate uint8, keycode int) int {
	r := int(rate) + keycode>>2
	if r > 15 {
		r = 15
	}
	return r
}

// envStep converts a full-swing duration in milliseconds to a per-sample
// level delta at the native rate.
func envStep(ms float64) float64 {
	if ms <= 0 {
		return 1
	}
	return 1000 / (ms * OPL_NATIVE_RATE)
}

// oplWave evaluates one of the eight OPL waveforms at a phase given in
// cycles; any real value is accepted.
func oplWave(ws uint8, phase float64) float64 {
	phase -= math.Floor(phase)
	s := fastSin(TWO_PI * phase)

	switch ws {
	case 0:
		return s
	case 1: // half sine
		if s > 0 {
			return s
		}
		return 0
	case 2: // absolute sine
		return math.Abs(s)
	case 3: // pulse sine
		if phase < 0.25 || (phase >= 0.5 && phase < 0.75) {
			return math.Abs(s)
		}
		return 0
	case 4: // alternating sine
		if phase < 0.5 {
			return fastSin(2 * TWO_PI * phase)
		}
		return 0
	case 5: // camel sine
		if phase < 0.5 {
			return math.Abs(fastSin(2 * TWO_PI * phase))
		}
		return 0
	case 6: // square
		if s >= 0 {
			return 1
		}
		return -1
	case 7: // logarithmic sawtooth
		if phase < 0.5 {
			return math.Pow(2, -phase*16)
		}
		return -math.Pow(2, -(1-phase)*16)
	}
	return s
}
