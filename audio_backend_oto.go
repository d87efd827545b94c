// audio_backend_oto.go - oto v3 speaker output for an emulator

package musdoom

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/oto/v3"
)

// OtoOutput plays an emulator through the system mixer. oto pulls samples
// through Read from its own playback goroutine, so the emulator handle is
// confined behind the output's mutex; callers touch it through Control.
type OtoOutput struct {
	ctx       *oto.Context
	player    *oto.Player
	emu       *Emulator
	sampleBuf []int16
	started   bool
	mutex     sync.Mutex
}

// NewOtoOutput opens the default audio device at the emulator's sample
// rate and prepares a stereo 16-bit player pulling from it.
func NewOtoOutput(emu *Emulator) (*OtoOutput, error) {
	op := &oto.NewContextOptions{
		SampleRate:   emu.SampleRate(),
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	o := &OtoOutput{
		ctx:       ctx,
		emu:       emu,
		sampleBuf: make([]int16, 4096),
	}
	o.player = ctx.NewPlayer(o)
	return o, nil
}

// Read renders PCM from the emulator. Four bytes per stereo frame.
func (o *OtoOutput) Read(p []byte) (int, error) {
	numSamples := len(p) / 2

	o.mutex.Lock()
	if len(o.sampleBuf) < numSamples {
		o.sampleBuf = make([]int16, numSamples)
	}
	samples := o.sampleBuf[:numSamples]
	o.emu.GenerateSamples(samples)
	o.mutex.Unlock()

	if numSamples == 0 {
		return 0, nil
	}
	copy(p, (*[1 << 30]byte)(unsafe.Pointer(&samples[0]))[:numSamples*2])
	return numSamples * 2, nil
}

// Control runs fn with exclusive access to the emulator, serialized
// against the playback goroutine.
func (o *OtoOutput) Control(fn func(*Emulator)) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	fn(o.emu)
}

func (o *OtoOutput) Start() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if !o.started && o.player != nil {
		o.player.Play()
		o.started = true
	}
}

func (o *OtoOutput) Close() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if o.player != nil {
		o.player.Close()
		o.player = nil
		o.started = false
	}
}

func (o *OtoOutput) IsStarted() bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.started
}
