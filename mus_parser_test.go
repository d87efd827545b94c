package musdoom

import (
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

// buildMUSData wraps a raw score in a valid MUS header that places the
// score directly after the 14 header bytes.
func buildMUSData(score []byte) []byte {
	data := make([]byte, MUS_HEADER_SIZE, MUS_HEADER_SIZE+len(score))
	copy(data, "MUS\x1a")
	binary.LittleEndian.PutUint16(data[4:6], uint16(len(score)))
	binary.LittleEndian.PutUint16(data[6:8], MUS_HEADER_SIZE)
	binary.LittleEndian.PutUint16(data[8:10], 8)
	return append(data, score...)
}

func TestMUSParse_Header(t *testing.T) {
	score := []byte{0x60}
	f, err := ParseMUS(buildMUSData(score))
	if err != nil {
		t.Fatalf("ParseMUS failed: %v", err)
	}

	if f.ScoreLen != 1 {
		t.Errorf("score length = %d, want 1", f.ScoreLen)
	}
	if f.ScoreStart != MUS_HEADER_SIZE {
		t.Errorf("score start = %d, want %d", f.ScoreStart, MUS_HEADER_SIZE)
	}
	if f.Channels != 8 {
		t.Errorf("channels = %d, want 8", f.Channels)
	}
	if len(f.Score) != 1 || f.Score[0] != 0x60 {
		t.Errorf("score region = % X, want 60", f.Score)
	}
}

func TestMUSParse_Errors(t *testing.T) {
	if _, err := ParseMUS(nil); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("empty data: err = %v, want ErrInvalidParam", err)
	}
	if _, err := ParseMUS([]byte("MUS\x1a\x00")); !errors.Is(err, ErrInvalidData) {
		t.Errorf("short header: err = %v, want ErrInvalidData", err)
	}
	wrongMagic := buildMUSData(nil)
	wrongMagic[3] = 0x00
	if _, err := ParseMUS(wrongMagic); !errors.Is(err, ErrInvalidData) {
		t.Errorf("bad magic: err = %v, want ErrInvalidData", err)
	}

	// A score start pointing past the file is unusable.
	bad := buildMUSData([]byte{0x60})
	binary.LittleEndian.PutUint16(bad[6:8], uint16(len(bad)+1))
	if _, err := ParseMUS(bad); !errors.Is(err, ErrInvalidData) {
		t.Errorf("score start beyond file: err = %v, want ErrInvalidData", err)
	}
}

func TestMUSParse_TruncatedScoreClamped(t *testing.T) {
	// The header claims 100 score bytes but only 3 are present. The
	// region is clamped so playback ends at the truncation point.
	data := buildMUSData([]byte{0x00, 0x3c, 0x60})
	binary.LittleEndian.PutUint16(data[4:6], 100)

	f, err := ParseMUS(data)
	if err != nil {
		t.Fatalf("ParseMUS failed: %v", err)
	}
	if len(f.Score) != 3 {
		t.Errorf("score region = %d bytes, want 3", len(f.Score))
	}
}

func TestMUSReader_PlayNote(t *testing.T) {
	// First event carries a velocity byte and a delay, the second
	// reuses the channel's running velocity.
	score := []byte{
		0x90, 0xbc, 100, 0x05, // play note 60 velocity 100, wait 5
		0x10, 0x40, // play note 64, no velocity byte
		0x60,
	}
	r := NewMUSReader(&MUSFile{Score: score})

	ev, err := r.NextEvent()
	if err != nil {
		t.Fatalf("event 1 failed: %v", err)
	}
	if ev.Kind != MUS_EVENT_PLAY_NOTE || ev.Channel != 0 {
		t.Errorf("event 1 = kind 0x%02X channel %d, want play on channel 0", ev.Kind, ev.Channel)
	}
	if ev.Note != 60 || ev.Velocity != 100 || ev.Delay != 5 {
		t.Errorf("event 1 = note %d vel %d delay %d, want 60/100/5", ev.Note, ev.Velocity, ev.Delay)
	}

	ev, err = r.NextEvent()
	if err != nil {
		t.Fatalf("event 2 failed: %v", err)
	}
	if ev.Note != 64 || ev.Velocity != -1 || ev.Delay != 0 {
		t.Errorf("event 2 = note %d vel %d delay %d, want 64/-1/0", ev.Note, ev.Velocity, ev.Delay)
	}

	ev, err = r.NextEvent()
	if err != nil || ev.Kind != MUS_EVENT_END_OF_SCORE {
		t.Fatalf("event 3 = kind 0x%02X err %v, want end of score", ev.Kind, err)
	}
}

func TestMUSReader_ReleaseBendSystemController(t *testing.T) {
	score := []byte{
		0x00, 0x3c, // release note 60
		0x20, 192, // pitch bend, a semitone up
		0x30, 11, // system: all notes off
		0x40, 3, 100, // controller: channel volume 100
		0x60,
	}
	r := NewMUSReader(&MUSFile{Score: score})

	ev, _ := r.NextEvent()
	if ev.Kind != MUS_EVENT_RELEASE_NOTE || ev.Note != 60 {
		t.Errorf("release = kind 0x%02X note %d, want 0x00/60", ev.Kind, ev.Note)
	}

	ev, _ = r.NextEvent()
	if ev.Kind != MUS_EVENT_PITCH_BEND || ev.Bend != 192 {
		t.Errorf("bend = kind 0x%02X value %d, want 0x20/192", ev.Kind, ev.Bend)
	}

	ev, _ = r.NextEvent()
	if ev.Kind != MUS_EVENT_SYSTEM || ev.SysCode != 11 {
		t.Errorf("system = kind 0x%02X code %d, want 0x30/11", ev.Kind, ev.SysCode)
	}

	ev, _ = r.NextEvent()
	if ev.Kind != MUS_EVENT_CONTROLLER || ev.Ctrl != 3 || ev.CtrlValue != 100 {
		t.Errorf("controller = kind 0x%02X ctrl %d value %d, want 0x40/3/100", ev.Kind, ev.Ctrl, ev.CtrlValue)
	}
}

func TestMUSReader_ChannelRemap(t *testing.T) {
	// MUS channel 15 is percussion and becomes 9; channel 9 moves to 15
	// to keep the mapping one-to-one.
	score := []byte{
		0x1f, 0x23, // play on MUS channel 15
		0x19, 0x23, // play on MUS channel 9
		0x15, 0x23, // play on MUS channel 5
		0x60,
	}
	r := NewMUSReader(&MUSFile{Score: score})

	want := []int{MUS_PERCUSSION_CHANNEL, 15, 5}
	for i, w := range want {
		ev, err := r.NextEvent()
		if err != nil {
			t.Fatalf("event %d failed: %v", i, err)
		}
		if ev.Channel != w {
			t.Errorf("event %d channel = %d, want %d", i, ev.Channel, w)
		}
	}
}

func TestMUSReader_VarLenDelay(t *testing.T) {
	score := []byte{
		0x80, 0x3c, 0x7f, // release, delay 127 in one byte
		0x80, 0x3c, 0x81, 0x00, // delay 1<<7 = 128
		0x80, 0x3c, 0x82, 0x80, 0x00, // delay 2<<14 = 32768
		0x60,
	}
	r := NewMUSReader(&MUSFile{Score: score})

	want := []uint32{127, 128, 32768}
	for i, w := range want {
		ev, err := r.NextEvent()
		if err != nil {
			t.Fatalf("event %d failed: %v", i, err)
		}
		if ev.Delay != w {
			t.Errorf("event %d delay = %d, want %d", i, ev.Delay, w)
		}
	}
}

func TestMUSReader_EndOfData(t *testing.T) {
	r := NewMUSReader(&MUSFile{Score: []byte{0x60}})

	if ev, err := r.NextEvent(); err != nil || ev.Kind != MUS_EVENT_END_OF_SCORE {
		t.Fatalf("expected end of score, got kind 0x%02X err %v", ev.Kind, err)
	}
	if !r.AtEnd() {
		t.Error("reader should be at end after the end-of-score byte")
	}
	if _, err := r.NextEvent(); err != io.EOF {
		t.Errorf("reading past the end: err = %v, want io.EOF", err)
	}
}

func TestMUSReader_TruncatedEvent(t *testing.T) {
	// A play-note status with its velocity byte cut off.
	r := NewMUSReader(&MUSFile{Score: []byte{0x90, 0xbc}})
	if _, err := r.NextEvent(); err != io.ErrUnexpectedEOF {
		t.Errorf("truncated payload: err = %v, want io.ErrUnexpectedEOF", err)
	}

	// A delay continuation byte with nothing after it.
	r = NewMUSReader(&MUSFile{Score: []byte{0x80, 0x3c, 0x81}})
	if _, err := r.NextEvent(); err != io.ErrUnexpectedEOF {
		t.Errorf("truncated delay: err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestMUSReader_UnknownEventType(t *testing.T) {
	r := NewMUSReader(&MUSFile{Score: []byte{0x50, 0x00}})
	_, err := r.NextEvent()
	if err == nil || err == io.EOF {
		t.Errorf("unassigned event type: err = %v, want decode error", err)
	}
}

func TestMUSReader_Reset(t *testing.T) {
	r := NewMUSReader(&MUSFile{Score: []byte{0x20, 192, 0x60}})

	first, err := r.NextEvent()
	if err != nil {
		t.Fatalf("first read failed: %v", err)
	}
	r.Reset()
	again, err := r.NextEvent()
	if err != nil {
		t.Fatalf("read after Reset failed: %v", err)
	}
	if first != again {
		t.Errorf("after Reset got %+v, want %+v", again, first)
	}
}

func TestMUSFile_DurationTicks(t *testing.T) {
	f, err := ParseMUS(buildMUSData([]byte{
		0x80, 0x3c, 0x05, // 5 ticks
		0x80, 0x3c, 0x81, 0x0c, // 140 ticks
		0x60,
	}))
	if err != nil {
		t.Fatalf("ParseMUS failed: %v", err)
	}
	if got := f.DurationTicks(); got != 145 {
		t.Errorf("duration = %d ticks, want 145", got)
	}
}

func TestMUSFile_DurationTicksMalformedTail(t *testing.T) {
	// Decoding stops at the bad status byte; the delays before it still
	// count.
	f, err := ParseMUS(buildMUSData([]byte{0x80, 0x3c, 0x05, 0x50, 0x00}))
	if err != nil {
		t.Fatalf("ParseMUS failed: %v", err)
	}
	if got := f.DurationTicks(); got != 5 {
		t.Errorf("duration = %d ticks, want 5", got)
	}
}
