// genmidi_parser.go - GENMIDI instrument bank parser

package musdoom

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// GENMIDI lump layout. The lump is the 8-byte magic followed by 128
// melodic and 47 percussion entries of 36 bytes each.
const (
	GENMIDI_MAGIC           = "#OPL_II#"
	GENMIDI_NUM_INSTRS      = 128
	GENMIDI_NUM_PERCUSSION  = 47
	GENMIDI_INSTR_SIZE      = 36
	GENMIDI_PERCUSSION_BASE = 35 // MIDI note of the first percussion entry

	GENMIDI_FLAG_FIXED  = 0x0001 // instrument plays a fixed note
	GENMIDI_FLAG_2VOICE = 0x0004 // instrument uses two voices
)

// GENMIDIOperator holds the six register bytes of one FM operator exactly
// as stored in the lump.
type GENMIDIOperator struct {
	Tremolo  uint8 // tremolo / vibrato / sustain / KSR / multiplier
	Attack   uint8 // attack and decay rates
	Sustain  uint8 // sustain level and release rate
	Waveform uint8
	Scale    uint8 // key scale level
	Level    uint8 // output attenuation
}

// GENMIDIVoice is one of an instrument's two FM patches.
type GENMIDIVoice struct {
	Modulator      GENMIDIOperator
	Feedback       uint8 // feedback depth and algorithm select
	Carrier        GENMIDIOperator
	BaseNoteOffset int16 // semitone offset applied to non-fixed notes
}

// GENMIDIInstrument is one 36-byte bank entry.
type GENMIDIInstrument struct {
	Flags      uint16
	FineTuning uint8 // detune for the second voice, 128 = none
	FixedNote  uint8
	Voices     [2]GENMIDIVoice
}

// Fixed reports whether the instrument always plays its fixed note,
// ignoring the note in the score.
func (in *GENMIDIInstrument) Fixed() bool {
	return in.Flags&GENMIDI_FLAG_FIXED != 0
}

// DoubleVoice reports whether the instrument layers both of its patches.
func (in *GENMIDIInstrument) DoubleVoice() bool {
	return in.Flags&GENMIDI_FLAG_2VOICE != 0
}

// GENMIDIBank holds the melodic and percussion instrument definitions
// decoded from one GENMIDI lump.
type GENMIDIBank struct {
	Instruments [GENMIDI_NUM_INSTRS]GENMIDIInstrument
	Percussion  [GENMIDI_NUM_PERCUSSION]GENMIDIInstrument
}

// PercussionFor returns the percussion entry for a MIDI note, or the first
// melodic instrument when the note is outside the mapped range 35-81.
func (b *GENMIDIBank) PercussionFor(note int) *GENMIDIInstrument {
	index := note - GENMIDI_PERCUSSION_BASE
	if index < 0 || index >= GENMIDI_NUM_PERCUSSION {
		return &b.Instruments[0]
	}
	return &b.Percussion[index]
}

// ParseGENMIDI decodes a GENMIDI lump into an instrument bank.
func ParseGENMIDI(data []byte) (*GENMIDIBank, error) {
	if len(data) == 0 {
		return nil, ErrInvalidParam
	}
	if len(data) < len(GENMIDI_MAGIC) || !bytes.Equal(data[:len(GENMIDI_MAGIC)], []byte(GENMIDI_MAGIC)) {
		return nil, fmt.Errorf("genmidi: bad magic: %w", ErrInvalidData)
	}
	need := len(GENMIDI_MAGIC) + (GENMIDI_NUM_INSTRS+GENMIDI_NUM_PERCUSSION)*GENMIDI_INSTR_SIZE
	if len(data) < need {
		return nil, fmt.Errorf("genmidi: %d bytes, need %d: %w", len(data), need, ErrInvalidData)
	}

	bank := &GENMIDIBank{}
	offset := len(GENMIDI_MAGIC)
	for i := range bank.Instruments {
		bank.Instruments[i] = decodeGENMIDIInstrument(data[offset : offset+GENMIDI_INSTR_SIZE])
		offset += GENMIDI_INSTR_SIZE
	}
	for i := range bank.Percussion {
		bank.Percussion[i] = decodeGENMIDIInstrument(data[offset : offset+GENMIDI_INSTR_SIZE])
		offset += GENMIDI_INSTR_SIZE
	}
	return bank, nil
}

func decodeGENMIDIInstrument(rec []byte) GENMIDIInstrument {
	return GENMIDIInstrument{
		Flags:      binary.LittleEndian.Uint16(rec[0:2]),
		FineTuning: rec[2],
		FixedNote:  rec[3],
		Voices: [2]GENMIDIVoice{
			decodeGENMIDIVoice(rec[4:20]),
			decodeGENMIDIVoice(rec[20:36]),
		},
	}
}

func decodeGENMIDIVoice(rec []byte) GENMIDIVoice {
	return GENMIDIVoice{
		Modulator:      decodeGENMIDIOperator(rec[0:6]),
		Feedback:       rec[6],
		Carrier:        decodeGENMIDIOperator(rec[7:13]),
		BaseNoteOffset: int16(binary.LittleEndian.Uint16(rec[14:16])),
	}
}

func decodeGENMIDIOperator(rec []byte) GENMIDIOperator {
	return GENMIDIOperator{
		Tremolo:  rec[0],
		Attack:   rec[1],
		Sustain:  rec[2],
		Waveform: rec[3],
		Scale:    rec[4],
		Level:    rec[5],
	}
}
