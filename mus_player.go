// mus_player.go - MUS score playback against an OPL chip

package musdoom

import (
	"fmt"
	"os"
)

// MUSPlayer sequences a MUS score against an OPL chip. It owns the event
// clock, the register driver and the loaded score, and renders interleaved
// stereo PCM. A player is confined to one goroutine.
type MUSPlayer struct {
	chip   OPLChip
	driver *oplDriver

	file   *MUSFile
	reader *MUSReader

	playing bool
	looping bool

	currentSample   uint64
	nextEventSample uint64
	timingRemainder uint64

	sampleRate  int
	lengthTicks uint64

	debug bool
}

// NewMUSPlayer resets the chip to the output rate and programs the DMX
// startup register state.
func NewMUSPlayer(chip OPLChip, sampleRate int, opl3 bool) *MUSPlayer {
	chip.Reset(sampleRate)
	return &MUSPlayer{
		chip:       chip,
		driver:     newOPLDriver(chip, opl3),
		sampleRate: sampleRate,
		debug:      musDebugEnabled(),
	}
}

// Load parses MUS data and rewinds the clock. The bytes are borrowed for
// the lifetime of the loaded score. A failed parse keeps the previous
// score; a successful one stops playback.
func (p *MUSPlayer) Load(data []byte) error {
	file, err := ParseMUS(data)
	if err != nil {
		return err
	}

	p.file = file
	p.reader = NewMUSReader(file)
	p.playing = false
	p.currentSample = 0
	p.nextEventSample = 0
	p.timingRemainder = 0
	p.lengthTicks = file.DurationTicks()

	if p.debug {
		fmt.Printf("mus: score %d bytes at +%d, %d channels, %d ticks (%.1fs)\n",
			file.ScoreLen, file.ScoreStart, file.Channels, p.lengthTicks,
			float64(p.lengthTicks)/MUS_TICK_RATE)
	}
	return nil
}

// LoadInstruments parses a GENMIDI lump and installs it as the active
// bank. Voices already sounding keep their old patches until released.
func (p *MUSPlayer) LoadInstruments(data []byte) error {
	bank, err := ParseGENMIDI(data)
	if err != nil {
		return err
	}
	p.driver.bank = bank
	return nil
}

// Unload drops the loaded score and stops playback. The instrument bank
// stays installed.
func (p *MUSPlayer) Unload() {
	p.playing = false
	p.file = nil
	p.reader = nil
	p.currentSample = 0
	p.nextEventSample = 0
	p.timingRemainder = 0
	p.lengthTicks = 0
}

// Start rewinds to the top of the score and begins playback.
func (p *MUSPlayer) Start(looping bool) error {
	if p.file == nil {
		return ErrNotInitialized
	}

	p.looping = looping
	p.playing = true
	p.reader.Reset()
	p.currentSample = 0
	p.nextEventSample = 0
	p.timingRemainder = 0
	return nil
}

// Stop halts the event clock. The chip keeps running, so release tails
// ring out through subsequent Generate calls.
func (p *MUSPlayer) Stop() {
	p.playing = false
}

func (p *MUSPlayer) IsPlaying() bool {
	return p.playing
}

// Generate renders len(buf)/2 stereo frames, dispatching due score events
// between samples. The chip runs for every frame whether or not the score
// is playing.
func (p *MUSPlayer) Generate(buf []int16) int {
	frames := len(buf) / 2

	for frame := 0; frame < frames; frame++ {
		for p.playing && p.currentSample >= p.nextEventSample {
			p.processEvent()
		}

		l, r := p.chip.GenerateResampled()
		buf[frame*2] = l
		buf[frame*2+1] = r

		if p.playing {
			p.currentSample++
		}
	}

	return frames
}

// processEvent applies the event at the cursor. End of score, truncation
// and malformed bytes all finish the score: back to the top when looping,
// stopped otherwise.
func (p *MUSPlayer) processEvent() {
	ev, err := p.reader.NextEvent()
	if err != nil || ev.Kind == MUS_EVENT_END_OF_SCORE {
		p.finishScore()
		return
	}

	switch ev.Kind {
	case MUS_EVENT_RELEASE_NOTE:
		p.driver.keyOffNote(ev.Channel, uint8(ev.Note))

	case MUS_EVENT_PLAY_NOTE:
		velocity := ev.Velocity
		if velocity < 0 {
			velocity = p.driver.channels[ev.Channel].velocity
		} else {
			p.driver.channels[ev.Channel].velocity = velocity
		}
		p.driver.keyOnNote(ev.Channel, uint8(ev.Note), velocity)

	case MUS_EVENT_PITCH_BEND:
		p.driver.pitchBend(ev.Channel, ev.Bend)

	case MUS_EVENT_SYSTEM:
		p.driver.systemEvent(ev.Channel, ev.SysCode)

	case MUS_EVENT_CONTROLLER:
		p.driver.controller(ev.Channel, ev.Ctrl, ev.CtrlValue)
	}

	if ev.Delay > 0 {
		p.advanceEventTime(ev.Delay)
	}
}

func (p *MUSPlayer) finishScore() {
	// A score that never advances time cannot loop.
	if p.looping && p.lengthTicks > 0 {
		p.reader.Reset()
		p.currentSample = 0
		p.nextEventSample = 0
		p.timingRemainder = 0
		return
	}
	p.playing = false
}

// advanceEventTime converts a delay in 140 Hz ticks to output samples.
// The remainder carries across events so rounding never accumulates.
func (p *MUSPlayer) advanceEventTime(delayTicks uint32) {
	accum := p.timingRemainder + uint64(delayTicks)*uint64(p.sampleRate)
	p.nextEventSample += accum / MUS_TICK_RATE
	p.timingRemainder = accum % MUS_TICK_RATE
}

// PositionMS returns the playback clock in milliseconds.
func (p *MUSPlayer) PositionMS() uint64 {
	if p.sampleRate <= 0 {
		return 0
	}
	return p.currentSample * 1000 / uint64(p.sampleRate)
}

// LengthMS returns the pre-scanned score length in milliseconds.
func (p *MUSPlayer) LengthMS() uint64 {
	return p.lengthTicks * 1000 / MUS_TICK_RATE
}

// SeekMS restarts the score and replays events up to the target position
// without rendering audio. Envelope state is not reconstructed, which is
// what keeps the seek cheap and approximate.
func (p *MUSPlayer) SeekMS(positionMS uint64) error {
	if p.file == nil {
		return ErrNotInitialized
	}

	target := positionMS * uint64(p.sampleRate) / 1000
	length := p.lengthTicks * uint64(p.sampleRate) / MUS_TICK_RATE
	if length == 0 {
		target = 0
	} else if p.looping {
		target %= length
	} else if target > length {
		target = length
	}

	if err := p.Start(p.looping); err != nil {
		return err
	}

	for p.playing && p.nextEventSample <= target {
		p.processEvent()
	}
	p.currentSample = target
	return nil
}

// musDebugEnabled reports whether MUSDOOM_DEBUG is set to anything but
// "0".
func musDebugEnabled() bool {
	v := os.Getenv("MUSDOOM_DEBUG")
	return v != "" && v != "0"
}
