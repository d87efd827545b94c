// mus_parser.go - MUS score parser and event reader

package musdoom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MUS format constants. Scores tick at 140 Hz regardless of output rate.
const (
	MUS_HEADER_SIZE = 14
	MUS_TICK_RATE   = 140

	MUS_EVENT_RELEASE_NOTE = 0x00
	MUS_EVENT_PLAY_NOTE    = 0x10
	MUS_EVENT_PITCH_BEND   = 0x20
	MUS_EVENT_SYSTEM       = 0x30
	MUS_EVENT_CONTROLLER   = 0x40
	MUS_EVENT_END_OF_SCORE = 0x60

	MUS_PERCUSSION_CHANNEL = 9
)

var musMagic = []byte{'M', 'U', 'S', 0x1a}

// MUSFile is a validated MUS header plus its score region. The score slice
// references the loaded data; the caller keeps the data alive while the
// file is in use.
type MUSFile struct {
	ScoreLen    uint16
	ScoreStart  uint16
	Channels    uint16
	SecChannels uint16
	InstrCount  uint16
	Score       []byte
}

// ParseMUS validates a MUS header and locates the score region.
func ParseMUS(data []byte) (*MUSFile, error) {
	if len(data) == 0 {
		return nil, ErrInvalidParam
	}
	if len(data) < MUS_HEADER_SIZE {
		return nil, fmt.Errorf("mus: %d byte header, need %d: %w", len(data), MUS_HEADER_SIZE, ErrInvalidData)
	}
	if !bytes.Equal(data[0:4], musMagic) {
		return nil, fmt.Errorf("mus: bad magic: %w", ErrInvalidData)
	}

	f := &MUSFile{
		ScoreLen:    binary.LittleEndian.Uint16(data[4:6]),
		ScoreStart:  binary.LittleEndian.Uint16(data[6:8]),
		Channels:    binary.LittleEndian.Uint16(data[8:10]),
		SecChannels: binary.LittleEndian.Uint16(data[10:12]),
		InstrCount:  binary.LittleEndian.Uint16(data[12:14]),
	}

	start := int(f.ScoreStart)
	if start > len(data) {
		return nil, fmt.Errorf("mus: score starts at %d beyond %d bytes: %w", start, len(data), ErrInvalidData)
	}
	end := start + int(f.ScoreLen)
	if end > len(data) {
		// A short score region plays up to the truncation point.
		end = len(data)
	}
	f.Score = data[start:end]

	return f, nil
}

// DurationTicks walks the score and sums event delays up to the first end
// of score, in 140 Hz ticks. A malformed tail counts as the score end.
func (f *MUSFile) DurationTicks() uint64 {
	r := NewMUSReader(f)
	var ticks uint64
	for {
		ev, err := r.NextEvent()
		if err != nil || ev.Kind == MUS_EVENT_END_OF_SCORE {
			return ticks
		}
		ticks += uint64(ev.Delay)
	}
}

// MUSEvent is one decoded score event. Fields beyond Kind, Channel and
// Delay are meaningful only for the kinds that carry them.
type MUSEvent struct {
	Kind      int
	Channel   int    // remapped channel 0-15, 9 = percussion
	Note      int    // RELEASE_NOTE, PLAY_NOTE
	Velocity  int    // PLAY_NOTE; -1 means reuse the channel's last velocity
	Bend      int    // PITCH_BEND raw byte, 128 = center
	SysCode   int    // SYSTEM
	Ctrl      int    // CONTROLLER
	CtrlValue int    // CONTROLLER
	Delay     uint32 // 140 Hz ticks to wait after applying this event
}

// MUSReader iterates the event stream of a parsed score. It keeps a
// cursor into the score region and never copies the data.
type MUSReader struct {
	score []byte
	pos   int
}

func NewMUSReader(f *MUSFile) *MUSReader {
	return &MUSReader{score: f.Score}
}

// Reset rewinds the cursor to the first event.
func (r *MUSReader) Reset() {
	r.pos = 0
}

// AtEnd reports whether the cursor has passed the last byte of the score.
func (r *MUSReader) AtEnd() bool {
	return r.pos >= len(r.score)
}

// NextEvent decodes the event at the cursor and advances past it. It
// returns io.EOF once the cursor passes the end of the score and
// io.ErrUnexpectedEOF when an event is cut off mid-payload; callers treat
// any error as end of score.
func (r *MUSReader) NextEvent() (MUSEvent, error) {
	status, err := r.readByte()
	if err != nil {
		return MUSEvent{}, io.EOF
	}

	ev := MUSEvent{
		Kind:     int(status & 0x70),
		Channel:  remapMUSChannel(int(status & 0x0f)),
		Velocity: -1,
	}

	switch ev.Kind {
	case MUS_EVENT_RELEASE_NOTE:
		b, err := r.readByte()
		if err != nil {
			return MUSEvent{}, err
		}
		ev.Note = int(b & 0x7f)

	case MUS_EVENT_PLAY_NOTE:
		b, err := r.readByte()
		if err != nil {
			return MUSEvent{}, err
		}
		ev.Note = int(b & 0x7f)
		if b&0x80 != 0 {
			v, err := r.readByte()
			if err != nil {
				return MUSEvent{}, err
			}
			ev.Velocity = int(v & 0x7f)
		}

	case MUS_EVENT_PITCH_BEND:
		b, err := r.readByte()
		if err != nil {
			return MUSEvent{}, err
		}
		ev.Bend = int(b)

	case MUS_EVENT_SYSTEM:
		b, err := r.readByte()
		if err != nil {
			return MUSEvent{}, err
		}
		ev.SysCode = int(b)

	case MUS_EVENT_CONTROLLER:
		ctrl, err := r.readByte()
		if err != nil {
			return MUSEvent{}, err
		}
		value, err := r.readByte()
		if err != nil {
			return MUSEvent{}, err
		}
		ev.Ctrl = int(ctrl)
		ev.CtrlValue = int(value)

	case MUS_EVENT_END_OF_SCORE:
		// No payload and never a delay; the score ends here.
		return ev, nil

	default:
		// 0x50 and 0x70 are unassigned in the MUS format.
		return MUSEvent{}, fmt.Errorf("mus: unknown event type %#02x", ev.Kind)
	}

	if status&0x80 != 0 {
		delay, err := r.readVarLen()
		if err != nil {
			return MUSEvent{}, err
		}
		ev.Delay = delay
	}

	return ev, nil
}

func (r *MUSReader) readByte() (uint8, error) {
	if r.pos >= len(r.score) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.score[r.pos]
	r.pos++
	return b, nil
}

// readVarLen reads a variable-length delay: seven bits per byte, high bit
// set on every byte except the last.
func (r *MUSReader) readVarLen() (uint32, error) {
	var value uint32
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		value = value<<7 | uint32(b&0x7f)
		if b&0x80 == 0 {
			return value, nil
		}
	}
}

// remapMUSChannel renumbers MUS channels for internal use: MUS channel 15
// is the percussion channel and becomes channel 9, and MUS channel 9
// moves to 15 to keep the mapping one-to-one.
func remapMUSChannel(ch int) int {
	switch ch {
	case 15:
		return MUS_PERCUSSION_CHANNEL
	case MUS_PERCUSSION_CHANNEL:
		return 15
	default:
		return ch
	}
}
