// opl3_benchmark_test.go - Performance benchmarks for the synthesis path

package musdoom

import "testing"

func BenchmarkOPL3Chip_GenerateResampled(b *testing.B) {
	c := NewOPL3Chip()
	c.Reset(44100)
	writeTestTone(c, 0x202, 4)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = c.GenerateResampled()
	}
}

// BenchmarkOPL3Chip_NineVoices is the worst case for an OPL2 score:
// every first-array channel keyed and sounding.
func BenchmarkOPL3Chip_NineVoices(b *testing.B) {
	c := NewOPL3Chip()
	c.Reset(44100)

	modOffsets := [9]uint16{0x00, 0x01, 0x02, 0x08, 0x09, 0x0a, 0x10, 0x11, 0x12}
	for ch, mod := range modOffsets {
		c.WriteReg(0x20+mod, 0x01)
		c.WriteReg(0x23+mod, 0x21)
		c.WriteReg(0x40+mod, 0x3f)
		c.WriteReg(0x43+mod, 0x00)
		c.WriteReg(0x60+mod, 0x00)
		c.WriteReg(0x63+mod, 0xf0)
		c.WriteReg(0x83+mod, 0x0f)
		c.WriteReg(0xa0+uint16(ch), uint8(0x41+ch*8))
		c.WriteReg(0xb0+uint16(ch), 0x02|4<<2|OPL_KEY_ON)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = c.GenerateResampled()
	}
}

// BenchmarkMUSPlayer_Generate renders a looping score through the driver
// and the built-in chip in 512-frame blocks, the shape of a playback
// callback.
func BenchmarkMUSPlayer_Generate(b *testing.B) {
	chip := NewOPL3Chip()
	chip.Reset(44100)
	p := NewMUSPlayer(chip, 44100, false)

	if err := p.LoadInstruments(buildGENMIDIData()); err != nil {
		b.Fatalf("LoadInstruments failed: %v", err)
	}
	score := buildMUSData([]byte{
		0x90, 0xbc, 100, 5,
		0x92, 0xc0, 90, 5,
		0x80, 0x3c, 5,
		0x82, 0x40, 5,
		0x60,
	})
	if err := p.Load(score); err != nil {
		b.Fatalf("Load failed: %v", err)
	}
	if err := p.Start(true); err != nil {
		b.Fatalf("Start failed: %v", err)
	}

	buf := make([]int16, 512*2)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		p.Generate(buf)
	}
}
