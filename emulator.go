// emulator.go - public emulator surface

package musdoom

import (
	"fmt"
	"time"
)

const VERSION = "1.0.0"

// Version returns the library version string.
func Version() string {
	return VERSION
}

// OPLType selects the chip generation the driver programs.
type OPLType int

const (
	OPL_TYPE_OPL2 OPLType = iota // 9 voices, mono register programming
	OPL_TYPE_OPL3                // 18 voices across two register arrays
)

// DoomVersion identifies the DMX revision being reproduced. The shipped
// revisions differ only in details the synthesizer does not model; the
// value is kept for configuration compatibility.
type DoomVersion int

const (
	DOOM1_1_666 DoomVersion = iota
	DOOM2_1_666
	DOOM_1_9
)

// Config controls emulator creation. Pass nil to NewEmulator for the
// defaults.
type Config struct {
	SampleRate    int         // output rate in Hz
	OPLType       OPLType     // chip generation
	DoomVersion   DoomVersion // DMX revision
	InitialVolume int         // master volume 0-127
	Chip          OPLChip     // nil selects the built-in OPL3Chip
}

// DefaultConfig returns the configuration matching Doom 1.9: 44100 Hz
// output, OPL3 programming and master volume 100.
func DefaultConfig() Config {
	return Config{
		SampleRate:    44100,
		OPLType:       OPL_TYPE_OPL3,
		DoomVersion:   DOOM_1_9,
		InitialVolume: 100,
	}
}

// Emulator is the public handle around a player: configuration, pause
// state and master volume. A handle is confined to one goroutine; wrap it
// in an OtoOutput to share it with an audio pull thread.
type Emulator struct {
	cfg    Config
	player *MUSPlayer

	playing bool
	paused  bool
	volume  int
}

// NewEmulator builds an emulator from cfg, or from DefaultConfig when cfg
// is nil. The sample rate must be positive and the enum fields in range;
// InitialVolume is clamped like SetVolume.
func NewEmulator(cfg *Config) (*Emulator, error) {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}

	if c.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate %d: %w", c.SampleRate, ErrInvalidParam)
	}
	if c.OPLType != OPL_TYPE_OPL2 && c.OPLType != OPL_TYPE_OPL3 {
		return nil, fmt.Errorf("opl type %d: %w", int(c.OPLType), ErrInvalidParam)
	}
	switch c.DoomVersion {
	case DOOM1_1_666, DOOM2_1_666, DOOM_1_9:
	default:
		return nil, fmt.Errorf("doom version %d: %w", int(c.DoomVersion), ErrInvalidParam)
	}

	chip := c.Chip
	if chip == nil {
		chip = NewOPL3Chip()
	}

	e := &Emulator{cfg: c}
	e.player = NewMUSPlayer(chip, c.SampleRate, c.OPLType == OPL_TYPE_OPL3)
	e.SetVolume(c.InitialVolume)
	return e, nil
}

// Close stops playback and releases the player. Every later call on the
// handle is a no-op or returns ErrInvalidParam.
func (e *Emulator) Close() {
	if e.player == nil {
		return
	}
	e.Stop()
	e.player = nil
}

// SampleRate returns the configured output rate in Hz.
func (e *Emulator) SampleRate() int {
	return e.cfg.SampleRate
}

// LoadMUS installs a MUS score and stops playback. The bytes are borrowed
// until Unload, Close or the next successful LoadMUS. A failed load keeps
// the previous score usable.
func (e *Emulator) LoadMUS(data []byte) error {
	if e.player == nil || len(data) == 0 {
		return ErrInvalidParam
	}
	if err := e.player.Load(data); err != nil {
		return fmt.Errorf("load mus: %w", err)
	}
	e.playing = false
	e.paused = false
	return nil
}

// LoadGENMIDI installs an instrument bank. Swapping banks mid-playback is
// allowed; sounding voices finish on their old patches.
func (e *Emulator) LoadGENMIDI(data []byte) error {
	if e.player == nil || len(data) == 0 {
		return ErrInvalidParam
	}
	if err := e.player.LoadInstruments(data); err != nil {
		return fmt.Errorf("load genmidi: %w", err)
	}
	return nil
}

// Start begins playback from the top of the score.
func (e *Emulator) Start(looping bool) error {
	if e.player == nil {
		return ErrInvalidParam
	}
	if err := e.player.Start(looping); err != nil {
		return err
	}
	e.playing = true
	e.paused = false
	return nil
}

// Stop halts playback. Stopping twice is harmless.
func (e *Emulator) Stop() {
	if e.player == nil {
		return
	}
	e.player.Stop()
	e.playing = false
	e.paused = false
}

// Pause freezes the clock; GenerateSamples emits silence until Resume.
func (e *Emulator) Pause() {
	if e.playing {
		e.paused = true
	}
}

// Resume lifts a pause. Resuming while not paused is harmless.
func (e *Emulator) Resume() {
	e.paused = false
}

// IsPlaying reports whether samples are advancing: started, not paused
// and not yet at the end of a non-looping score.
func (e *Emulator) IsPlaying() bool {
	if e.player == nil {
		return false
	}
	e.syncPlaying()
	return e.playing && !e.paused
}

func (e *Emulator) syncPlaying() {
	if e.playing && !e.player.IsPlaying() {
		e.playing = false
	}
}

// SetVolume sets the master volume, clamped to 0-127. It scales the PCM
// output; the register stream the chip sees is unaffected.
func (e *Emulator) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 127 {
		volume = 127
	}
	e.volume = volume
}

// Volume returns the master volume.
func (e *Emulator) Volume() int {
	return e.volume
}

// GenerateSamples fills buf with len(buf)/2 interleaved stereo frames and
// returns the frame count. While stopped or paused it writes silence
// without advancing the clock.
func (e *Emulator) GenerateSamples(buf []int16) int {
	if e.player == nil {
		return 0
	}
	frames := len(buf) / 2
	out := buf[:frames*2]

	if !e.playing || e.paused {
		for i := range out {
			out[i] = 0
		}
		return frames
	}

	n := e.player.Generate(out)
	e.syncPlaying()

	if e.volume < 127 {
		gain := int32(e.volume)
		for i, s := range out {
			out[i] = int16(int32(s) * gain / 127)
		}
	}

	return n
}

// Position returns how far the clock has advanced into the score.
func (e *Emulator) Position() time.Duration {
	if e.player == nil {
		return 0
	}
	return time.Duration(e.player.PositionMS()) * time.Millisecond
}

// Length returns the pre-scanned score duration, zero when nothing is
// loaded.
func (e *Emulator) Length() time.Duration {
	if e.player == nil {
		return 0
	}
	return time.Duration(e.player.LengthMS()) * time.Millisecond
}

// Seek restarts the score and replays events up to pos without rendering
// audio. Seeking starts playback and lifts any pause.
func (e *Emulator) Seek(pos time.Duration) error {
	if e.player == nil {
		return ErrInvalidParam
	}
	if pos < 0 {
		return fmt.Errorf("seek %v: %w", pos, ErrInvalidParam)
	}
	if err := e.player.SeekMS(uint64(pos / time.Millisecond)); err != nil {
		return err
	}
	e.playing = e.player.IsPlaying()
	e.paused = false
	return nil
}

// Unload drops the score, keeping the instrument bank and configuration.
func (e *Emulator) Unload() {
	if e.player == nil {
		return
	}
	e.player.Unload()
	e.playing = false
	e.paused = false
}
