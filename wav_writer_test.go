package musdoom

import (
	"encoding/binary"
	"io"
	"testing"
)

// seekBuffer is an in-memory io.WriteSeeker, enough of a file for the
// header rewrite on Close.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if need := b.pos + len(p); need > len(b.data) {
		b.data = append(b.data, make([]byte, need-len(b.data))...)
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.pos = int(offset)
	case io.SeekCurrent:
		b.pos += int(offset)
	case io.SeekEnd:
		b.pos = len(b.data) + int(offset)
	}
	return int64(b.pos), nil
}

func TestWAVWriter_Header(t *testing.T) {
	buf := &seekBuffer{}
	ww, err := NewWAVWriter(buf, 44100)
	if err != nil {
		t.Fatalf("NewWAVWriter failed: %v", err)
	}
	if err := ww.WriteFrames([]int16{1000, -1000, 0, 32767, -32768, 1}); err != nil {
		t.Fatalf("WriteFrames failed: %v", err)
	}
	if err := ww.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	h := buf.data
	if len(h) != 56 {
		t.Fatalf("file is %d bytes, want 56", len(h))
	}

	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" {
		t.Errorf("container tags = %q %q", h[0:4], h[8:12])
	}
	if got := binary.LittleEndian.Uint32(h[4:8]); got != 48 {
		t.Errorf("RIFF size = %d, want 48", got)
	}
	if string(h[12:16]) != "fmt " || binary.LittleEndian.Uint32(h[16:20]) != 16 {
		t.Error("fmt chunk header wrong")
	}
	if got := binary.LittleEndian.Uint16(h[20:22]); got != 1 {
		t.Errorf("format = %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(h[22:24]); got != 2 {
		t.Errorf("channels = %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(h[24:28]); got != 44100 {
		t.Errorf("sample rate = %d, want 44100", got)
	}
	if got := binary.LittleEndian.Uint32(h[28:32]); got != 176400 {
		t.Errorf("byte rate = %d, want 176400", got)
	}
	if got := binary.LittleEndian.Uint16(h[32:34]); got != 4 {
		t.Errorf("frame size = %d, want 4", got)
	}
	if got := binary.LittleEndian.Uint16(h[34:36]); got != 16 {
		t.Errorf("bit depth = %d, want 16", got)
	}
	if string(h[36:40]) != "data" || binary.LittleEndian.Uint32(h[40:44]) != 12 {
		t.Errorf("data chunk = %q size %d, want 12", h[36:40], binary.LittleEndian.Uint32(h[40:44]))
	}

	if got := int16(binary.LittleEndian.Uint16(h[44:46])); got != 1000 {
		t.Errorf("first sample = %d, want 1000", got)
	}
	if got := int16(binary.LittleEndian.Uint16(h[46:48])); got != -1000 {
		t.Errorf("second sample = %d, want -1000", got)
	}
}

func TestWAVWriter_EmptyClose(t *testing.T) {
	buf := &seekBuffer{}
	ww, err := NewWAVWriter(buf, 11025)
	if err != nil {
		t.Fatalf("NewWAVWriter failed: %v", err)
	}
	if err := ww.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if len(buf.data) != 44 {
		t.Fatalf("file is %d bytes, want a bare header", len(buf.data))
	}
	if got := binary.LittleEndian.Uint32(buf.data[4:8]); got != 36 {
		t.Errorf("RIFF size = %d, want 36", got)
	}
	if got := binary.LittleEndian.Uint32(buf.data[40:44]); got != 0 {
		t.Errorf("data size = %d, want 0", got)
	}
}
