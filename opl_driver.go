// opl_driver.go - DMX-style OPL voice and channel management

package musdoom

// oplChannel mirrors one MUS channel's controller state.
type oplChannel struct {
	instrument int // program number 0-127
	volume     int // channel volume 0-127
	pan        int // feedback-register pan bits
	bend       int // pitch bend in 1/32 semitone units, 0 = center
	velocity   int // last explicit note-on velocity
}

// oplVoice is one hardware voice slot plus the shadow state used to
// suppress redundant register writes.
type oplVoice struct {
	index int    // voice index within its register array, 0-8
	op1   int    // modulator operator offset
	op2   int    // carrier operator offset
	array uint16 // 0 or OPL_REG_ARRAY2

	inUse      bool
	channel    int // owning channel index, -1 when free
	instr      *GENMIDIInstrument
	instrVoice int   // which patch of instr is loaded, 0 or 1
	key        uint8 // score note, matched on release
	note       int   // note used for frequency lookup
	freq       uint  // frequency register shadow
	carVolume  uint8 // carrier LEVEL shadow
	modVolume  uint8 // modulator LEVEL shadow
	noteVolume int   // velocity last applied to this voice
	regPan     int   // pan bits last written
}

// oplDriver owns the voice pool, the 16 channel states and every register
// write reaching the chip. Its programming sequences follow DMX's OPL
// driver, including the redundant-write suppression and the voice steal
// policy, so the register stream matches what Doom produced.
type oplDriver struct {
	chip      OPLChip
	opl3      bool
	numVoices int
	voices    [OPL3_NUM_VOICES]oplVoice
	channels  [16]oplChannel
	bank      *GENMIDIBank
}

func newOPLDriver(chip OPLChip, opl3 bool) *oplDriver {
	d := &oplDriver{chip: chip, opl3: opl3, numVoices: OPL_NUM_VOICES}
	if opl3 {
		d.numVoices = OPL3_NUM_VOICES
	}

	for i := range d.voices {
		v := &d.voices[i]
		v.index = i % OPL_NUM_VOICES
		v.op1 = voiceOperators[0][v.index]
		v.op2 = voiceOperators[1][v.index]
		if i >= OPL_NUM_VOICES {
			v.array = OPL_REG_ARRAY2
		}
		v.channel = -1
		v.regPan = OPL_PAN_CENTER
	}

	d.resetChannels()
	d.initRegisters()
	return d
}

func (d *oplDriver) resetChannels() {
	for i := range d.channels {
		d.channels[i] = oplChannel{
			volume:   100,
			pan:      OPL_PAN_CENTER,
			velocity: 127,
		}
	}
}

// initRegisters puts the chip into the state DMX left it in at startup.
func (d *oplDriver) initRegisters() {
	d.initArray(0)

	// Reset both timers, then mask their interrupts.
	d.writeReg(OPL_REG_TIMER_CTRL, 0x60)
	d.writeReg(OPL_REG_TIMER_CTRL, 0x80)

	// Let instrument data select operator waveforms.
	d.writeReg(OPL_REG_WAVEFORM_ENABLE, 0x20)

	if d.opl3 {
		d.writeReg(OPL_REG_NEW, 0x01)
		d.initArray(OPL_REG_ARRAY2)
	}
}

// initArray silences the level registers and clears everything else in one
// register array. The ranges overshoot the registers that actually exist,
// which is what Doom does.
func (d *oplDriver) initArray(array uint16) {
	for r := OPL_REGS_LEVEL; r <= OPL_REGS_LEVEL+0x15; r++ {
		d.writeReg(uint16(r)|array, 0x3f)
	}
	for r := OPL_REGS_ATTACK; r <= OPL_REGS_WAVEFORM+0x15; r++ {
		d.writeReg(uint16(r)|array, 0x00)
	}
	for r := 0x01; r < OPL_REGS_LEVEL; r++ {
		d.writeReg(uint16(r)|array, 0x00)
	}
}

func (d *oplDriver) writeReg(addr uint16, value uint8) {
	d.chip.WriteReg(addr, value)
}

// loadOperator programs one operator's five registers from an instrument
// patch. With maxLevel set the operator is loaded fully attenuated so the
// later volume write sets the real level. Returns the LEVEL shadow value.
func (d *oplDriver) loadOperator(opOffset uint16, op *GENMIDIOperator, maxLevel bool) uint8 {
	level := op.Scale
	if maxLevel {
		level |= 0x3f
	} else {
		level |= op.Level
	}

	d.writeReg(OPL_REGS_LEVEL+opOffset, level)
	d.writeReg(OPL_REGS_TREMOLO+opOffset, op.Tremolo)
	d.writeReg(OPL_REGS_ATTACK+opOffset, op.Attack)
	d.writeReg(OPL_REGS_SUSTAIN+opOffset, op.Sustain)
	d.writeReg(OPL_REGS_WAVEFORM+opOffset, op.Waveform)
	return level
}

// setVoiceInstrument programs a patch onto a voice. Reloading the patch
// the voice already carries is suppressed.
func (d *oplDriver) setVoiceInstrument(v *oplVoice, instr *GENMIDIInstrument, instrVoice int) {
	if v.instr == instr && v.instrVoice == instrVoice {
		return
	}

	v.instr = instr
	v.instrVoice = instrVoice

	patch := &instr.Voices[instrVoice]

	// Algorithm bit clear means the first operator modulates the second.
	modulating := patch.Feedback&0x01 == 0

	// DMX loads the carrier first, muted until the volume write lands.
	v.carVolume = d.loadOperator(uint16(v.op2)|v.array, &patch.Carrier, true)
	v.modVolume = d.loadOperator(uint16(v.op1)|v.array, &patch.Modulator, !modulating)

	d.writeReg((OPL_REGS_FEEDBACK+uint16(v.index))|v.array, patch.Feedback|uint8(v.regPan))
}

// setVoiceVolume computes the carrier level from the note velocity and the
// channel volume and writes it if it changed. Additive patches scale the
// modulator level as well.
func (d *oplDriver) setVoiceVolume(v *oplVoice, volume int) {
	v.noteVolume = volume

	patch := &v.instr.Voices[v.instrVoice]

	midiVolume := 2 * (volumeMappingTable[d.channels[v.channel].volume] + 1)
	fullVolume := (volumeMappingTable[v.noteVolume] * midiVolume) >> 9
	if fullVolume > 0x3f {
		fullVolume = 0x3f
	}

	carVolume := uint8(0x3f - fullVolume)
	if carVolume == v.carVolume&0x3f {
		return
	}

	v.carVolume = carVolume | v.carVolume&0xc0
	d.writeReg((OPL_REGS_LEVEL+uint16(v.op2))|v.array, v.carVolume)

	if patch.Feedback&0x01 != 0 && patch.Modulator.Level != 0x3f {
		modVolume := patch.Modulator.Level
		if modVolume < carVolume {
			modVolume = carVolume
		}
		modVolume |= v.modVolume & 0xc0
		if modVolume != v.modVolume {
			v.modVolume = modVolume
			d.writeReg((OPL_REGS_LEVEL+uint16(v.op1))|v.array, modVolume|patch.Modulator.Scale&0xc0)
		}
	}
}

// setVoicePan rewrites the feedback register with new pan bits. A voice
// that never received an instrument has nothing to rewrite.
func (d *oplDriver) setVoicePan(v *oplVoice, regPan int) {
	if v.regPan == regPan || v.instr == nil {
		return
	}

	v.regPan = regPan
	patch := &v.instr.Voices[v.instrVoice]
	d.writeReg((OPL_REGS_FEEDBACK+uint16(v.index))|v.array, patch.Feedback|uint8(regPan))
}

// setChannelVolume stores a channel volume and refreshes every voice the
// channel owns at its remembered note velocity.
func (d *oplDriver) setChannelVolume(ch int, volume int) {
	if volume > 127 {
		volume = 127
	}
	d.channels[ch].volume = volume

	for i := 0; i < d.numVoices; i++ {
		v := &d.voices[i]
		if v.inUse && v.channel == ch {
			d.setVoiceVolume(v, v.noteVolume)
		}
	}
}

// setChannelPan maps a MIDI pan value onto the chip's two output-enable
// bits: right above 95, left below 49, both in between. OPL2 has no
// stereo select, so pan is ignored there.
func (d *oplDriver) setChannelPan(ch int, pan int) {
	if !d.opl3 {
		return
	}

	regPan := OPL_PAN_CENTER
	switch {
	case pan >= 96:
		regPan = OPL_PAN_RIGHT
	case pan <= 48:
		regPan = OPL_PAN_LEFT
	}

	if d.channels[ch].pan == regPan {
		return
	}
	d.channels[ch].pan = regPan

	for i := 0; i < d.numVoices; i++ {
		v := &d.voices[i]
		if v.inUse && v.channel == ch {
			d.setVoicePan(v, regPan)
		}
	}
}

// frequencyForVoice resolves a voice's note, its patch offset and the
// channel bend into an OPL frequency register value.
func (d *oplDriver) frequencyForVoice(v *oplVoice) uint {
	note := v.note

	patch := &v.instr.Voices[v.instrVoice]
	if !v.instr.Fixed() {
		note += int(patch.BaseNoteOffset)
	}

	// Fold into the table's note range by octaves.
	for note < 0 {
		note += 12
	}
	for note > 95 {
		note -= 12
	}

	freqIndex := 64 + 32*note + d.channels[v.channel].bend

	// The second patch of a double-voice instrument detunes by the
	// instrument's fine tuning.
	if v.instrVoice != 0 {
		freqIndex += int(v.instr.FineTuning)/2 - 64
	}

	if freqIndex < 0 {
		freqIndex = 0
	}

	return oplFrequencyValue(freqIndex)
}

// updateVoiceFrequency writes both frequency registers, raising the
// key-on bit. The write is suppressed while the value is unchanged.
func (d *oplDriver) updateVoiceFrequency(v *oplVoice) {
	freq := d.frequencyForVoice(v)
	if v.freq == freq {
		return
	}

	d.writeReg((OPL_REGS_FREQ_1+uint16(v.index))|v.array, uint8(freq))
	d.writeReg((OPL_REGS_FREQ_2+uint16(v.index))|v.array, uint8(freq>>8)|OPL_KEY_ON)
	v.freq = freq
}

// voiceKeyOff clears the key-on bit, leaving the frequency bits in place
// so the release tail rings at pitch.
func (d *oplDriver) voiceKeyOff(v *oplVoice) {
	d.writeReg((OPL_REGS_FREQ_2+uint16(v.index))|v.array, uint8(v.freq>>8))
}

// releaseVoice key-offs a voice and returns it to the pool. The level and
// frequency shadows survive for write suppression; the instrument
// reference is cleared so the next owner reprograms the patch.
func (d *oplDriver) releaseVoice(v *oplVoice) {
	if !v.inUse {
		return
	}
	d.voiceKeyOff(v)
	v.inUse = false
	v.channel = -1
	v.instr = nil
}

func (d *oplDriver) allocateVoice() *oplVoice {
	for i := 0; i < d.numVoices; i++ {
		if !d.voices[i].inUse {
			d.voices[i].inUse = true
			return &d.voices[i]
		}
	}
	return nil
}

// replaceVoice releases the most expendable in-use voice: the first
// secondary voice of a double-voice pair if any is sounding, otherwise
// the voice owned by the highest-numbered channel, ties going to the
// later voice.
func (d *oplDriver) replaceVoice() {
	result := 0

	for i := 0; i < d.numVoices; i++ {
		if !d.voices[i].inUse {
			continue
		}

		if d.voices[i].instrVoice != 0 {
			result = i
			break
		}

		if d.voiceChannelIndex(i) >= d.voiceChannelIndex(result) {
			result = i
		}
	}

	if d.voices[result].inUse {
		d.releaseVoice(&d.voices[result])
	}
}

func (d *oplDriver) voiceChannelIndex(i int) int {
	if d.voices[i].channel < 0 {
		return 0
	}
	return d.voices[i].channel
}

// keyOnNote starts a note on a channel, honoring DMX's conventions: zero
// velocity is a note-off, the percussion channel selects patches by note
// number, and nothing sounds until an instrument bank is installed.
func (d *oplDriver) keyOnNote(ch int, note uint8, velocity int) {
	if velocity <= 0 {
		d.keyOffNote(ch, note)
		return
	}
	if d.bank == nil {
		return
	}

	var instr *GENMIDIInstrument
	var freqNote int

	if ch == MUS_PERCUSSION_CHANNEL {
		instr = d.bank.PercussionFor(int(note))
		// Percussion runs at a fixed base note; the patch's own fixed
		// note usually overrides it anyway.
		freqNote = 60
	} else {
		instr = &d.bank.Instruments[d.channels[ch].instrument]
		freqNote = int(note)
	}

	d.voiceKeyOn(ch, instr, freqNote, note, velocity)
}

// keyOffNote releases every voice sounding the given note on the channel,
// which covers both halves of a double-voice note.
func (d *oplDriver) keyOffNote(ch int, note uint8) {
	for i := 0; i < d.numVoices; i++ {
		v := &d.voices[i]
		if v.inUse && v.channel == ch && v.key == note {
			d.releaseVoice(v)
		}
	}
}

// releaseChannelVoices releases every voice the channel owns.
func (d *oplDriver) releaseChannelVoices(ch int) {
	for i := 0; i < d.numVoices; i++ {
		v := &d.voices[i]
		if v.inUse && v.channel == ch {
			d.releaseVoice(v)
		}
	}
}

// voiceKeyOn allocates voices for a note, stealing at most once per
// voice. A double-voice instrument that cannot get a second voice plays
// single-voice rather than not at all.
func (d *oplDriver) voiceKeyOn(ch int, instr *GENMIDIInstrument, note int, key uint8, volume int) {
	voice := d.allocateVoice()
	if voice == nil {
		d.replaceVoice()
		voice = d.allocateVoice()
		if voice == nil {
			return
		}
	}

	var voice2 *oplVoice
	if instr.DoubleVoice() {
		voice2 = d.allocateVoice()
		if voice2 == nil {
			d.replaceVoice()
			voice2 = d.allocateVoice()
		}
	}

	d.startVoice(voice, ch, instr, 0, note, key, volume)
	if voice2 != nil {
		d.startVoice(voice2, ch, instr, 1, note, key, volume)
	}
}

func (d *oplDriver) startVoice(v *oplVoice, ch int, instr *GENMIDIInstrument, instrVoice int, note int, key uint8, volume int) {
	v.channel = ch
	v.key = key

	if instr.Fixed() {
		v.note = int(instr.FixedNote)
	} else {
		v.note = note
	}

	v.regPan = d.channels[ch].pan

	d.setVoiceInstrument(v, instr, instrVoice)
	d.setVoiceVolume(v, volume)

	// Rebuilding the frequency from zero forces both register writes,
	// which is what raises the key-on bit.
	v.freq = 0
	d.updateVoiceFrequency(v)
}

// pitchBend recenters a channel's bend and retunes its sounding voices.
// The MUS bend byte covers 0-255 with 128 as center, giving a range of
// plus or minus two semitones.
func (d *oplDriver) pitchBend(ch int, bend int) {
	d.channels[ch].bend = (bend - 128) / 2

	for i := 0; i < d.numVoices; i++ {
		v := &d.voices[i]
		if v.inUse && v.channel == ch {
			v.freq = 0
			d.updateVoiceFrequency(v)
		}
	}
}

// resetChannelControllers restores a channel's volume, pan and bend to
// their power-on values.
func (d *oplDriver) resetChannelControllers(ch int) {
	d.setChannelVolume(ch, 100)
	d.setChannelPan(ch, 64)
	d.channels[ch].bend = 0
}

// controller applies a MUS controller event. MUS numbers its controllers
// 0-14; only the program, volume, pan and release/reset group affect OPL
// playback.
func (d *oplDriver) controller(ch int, ctrl int, value int) {
	switch ctrl {
	case 0: // instrument change
		d.channels[ch].instrument = value & 0x7f
	case 3: // channel volume
		d.setChannelVolume(ch, value)
	case 4: // pan
		d.setChannelPan(ch, value)
	case 10, 11: // all sounds off, all notes off
		d.releaseChannelVoices(ch)
	case 14: // reset all controllers
		d.resetChannelControllers(ch)
	}
}

// systemEvent applies a MUS system event. Codes mirror the MIDI channel
// mode controllers; mono and poly mode are ignored.
func (d *oplDriver) systemEvent(ch int, code int) {
	switch code {
	case 10, 11:
		d.releaseChannelVoices(ch)
	case 14:
		d.resetChannelControllers(ch)
	}
}
