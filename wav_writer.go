// wav_writer.go - RIFF/WAVE writer for rendered scores

package musdoom

import (
	"encoding/binary"
	"io"
)

// WAVWriter emits a 16-bit stereo PCM WAVE stream, patching the RIFF
// sizes into the header on Close.
type WAVWriter struct {
	w          io.WriteSeeker
	sampleRate int
	dataBytes  int
}

// NewWAVWriter writes a provisional 44-byte header and returns a writer
// ready for sample data.
func NewWAVWriter(w io.WriteSeeker, sampleRate int) (*WAVWriter, error) {
	ww := &WAVWriter{w: w, sampleRate: sampleRate}
	if err := ww.writeHeader(); err != nil {
		return nil, err
	}
	return ww, nil
}

func (ww *WAVWriter) writeHeader() error {
	var h [44]byte
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+ww.dataBytes))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], 2) // stereo
	binary.LittleEndian.PutUint32(h[24:28], uint32(ww.sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(ww.sampleRate*4))
	binary.LittleEndian.PutUint16(h[32:34], 4)  // bytes per frame
	binary.LittleEndian.PutUint16(h[34:36], 16) // bits per sample
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(ww.dataBytes))

	_, err := ww.w.Write(h[:])
	return err
}

// WriteFrames appends interleaved stereo samples.
func (ww *WAVWriter) WriteFrames(samples []int16) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	n, err := ww.w.Write(buf)
	ww.dataBytes += n
	return err
}

// Close seeks back to the start and rewrites the header with the final
// chunk sizes. The underlying stream stays open.
func (ww *WAVWriter) Close() error {
	if _, err := ww.w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return ww.writeHeader()
}
