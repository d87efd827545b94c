// main.go - MUS score player and WAV renderer

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/musdoom/musdoom"
)

func banner() {
	fmt.Printf("musplay v%s - Doom MUS synthesizer\n", musdoom.Version())
}

func main() {
	var (
		genmidiPath string
		wadPath     string
		wavPath     string
		sampleRate  int
		volume      int
		looping     bool
		seconds     int
		opl2        bool
	)

	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&genmidiPath, "genmidi", "", "GENMIDI lump file (default: the GENMIDI lump of -wad)")
	flagSet.StringVar(&wadPath, "wad", "", "WAD file holding the instruments and the song")
	flagSet.StringVar(&wavPath, "wav", "", "render to a WAV file instead of playing")
	flagSet.IntVar(&sampleRate, "rate", 44100, "output sample rate in Hz")
	flagSet.IntVar(&volume, "volume", 100, "master volume 0-127")
	flagSet.BoolVar(&looping, "loop", false, "loop the score")
	flagSet.IntVar(&seconds, "seconds", 0, "limit the rendered duration (0 = score length)")
	flagSet.BoolVar(&opl2, "opl2", false, "program a single OPL2 register array (9 voices)")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		banner()
		fmt.Println("Usage: musplay [options] song.mus")
		fmt.Println("       musplay [options] -wad doom.wad D_E1M1")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	song := flagSet.Arg(0)
	if song == "" {
		flagSet.Usage()
		os.Exit(1)
	}

	musData, genmidiData, err := loadInputs(wadPath, genmidiPath, song)
	if err != nil {
		fmt.Fprintf(os.Stderr, "musplay: %v\n", err)
		os.Exit(1)
	}

	cfg := musdoom.DefaultConfig()
	cfg.SampleRate = sampleRate
	cfg.InitialVolume = volume
	if opl2 {
		cfg.OPLType = musdoom.OPL_TYPE_OPL2
	}

	emu, err := musdoom.NewEmulator(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "musplay: %v\n", err)
		os.Exit(1)
	}
	defer emu.Close()

	if err := emu.LoadGENMIDI(genmidiData); err != nil {
		fmt.Fprintf(os.Stderr, "musplay: %v\n", err)
		os.Exit(1)
	}
	if err := emu.LoadMUS(musData); err != nil {
		fmt.Fprintf(os.Stderr, "musplay: %v\n", err)
		os.Exit(1)
	}

	banner()
	fmt.Printf("Song: %s (%s)\n", song, formatDuration(emu.Length()))

	if wavPath != "" {
		err = renderWAV(emu, wavPath, seconds, looping)
	} else {
		err = playLive(emu, looping)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "musplay: %v\n", err)
		os.Exit(1)
	}
}

// loadInputs resolves the song and instrument bank bytes from files or
// from WAD lumps. With -wad the song argument names a lump, D_E1M1 style.
func loadInputs(wadPath, genmidiPath, song string) ([]byte, []byte, error) {
	var wad *musdoom.WADFile
	if wadPath != "" {
		raw, err := os.ReadFile(wadPath)
		if err != nil {
			return nil, nil, err
		}
		parsed, err := musdoom.ParseWAD(raw)
		if err != nil {
			return nil, nil, err
		}
		wad = parsed
	}

	var genmidiData []byte
	switch {
	case genmidiPath != "":
		data, err := os.ReadFile(genmidiPath)
		if err != nil {
			return nil, nil, err
		}
		genmidiData = data
	case wad != nil:
		data, ok := wad.Lump("GENMIDI")
		if !ok {
			return nil, nil, fmt.Errorf("no GENMIDI lump in %s", wadPath)
		}
		genmidiData = data
	default:
		return nil, nil, fmt.Errorf("need -genmidi or -wad for the instrument bank")
	}

	var musData []byte
	if wad != nil {
		data, ok := wad.Lump(song)
		if !ok {
			return nil, nil, fmt.Errorf("no lump %q in %s", song, wadPath)
		}
		musData = data
	} else {
		data, err := os.ReadFile(song)
		if err != nil {
			return nil, nil, err
		}
		musData = data
	}

	return musData, genmidiData, nil
}

// renderWAV renders the score offline. Non-looping renders run a second
// past the score so release tails ring out.
func renderWAV(emu *musdoom.Emulator, path string, seconds int, looping bool) error {
	if looping && seconds <= 0 {
		return fmt.Errorf("a looping render needs -seconds")
	}

	total := emu.Length() + time.Second
	if seconds > 0 {
		total = time.Duration(seconds) * time.Second
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := musdoom.NewWAVWriter(f, emu.SampleRate())
	if err != nil {
		return err
	}

	if err := emu.Start(looping); err != nil {
		return err
	}

	rate := int64(emu.SampleRate())
	totalFrames := int64(total) * rate / int64(time.Second)
	buf := make([]int16, 2048*2)
	var progress int64

	for done := int64(0); done < totalFrames; {
		want := int64(len(buf) / 2)
		if done+want > totalFrames {
			want = totalFrames - done
		}
		n := emu.GenerateSamples(buf[:want*2])
		if err := w.WriteFrames(buf[:n*2]); err != nil {
			return err
		}
		done += int64(n)

		if done/(rate*5) > progress {
			progress = done / (rate * 5)
			fmt.Printf("  %ds rendered...\n", done/rate)
		}
	}

	if err := w.Close(); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%s)\n", path, formatDuration(total))
	return nil
}

// playLive plays through the system mixer with single-key transport
// controls on a raw terminal.
func playLive(emu *musdoom.Emulator, looping bool) error {
	out, err := musdoom.NewOtoOutput(emu)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := emu.Start(looping); err != nil {
		return err
	}
	out.Start()

	fmt.Println("[space] pause  [-/+] volume  [,/.] seek 10s  [q] quit")

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		// Not a terminal; play until the score ends.
		return waitForEnd(out)
	}
	defer term.Restore(fd, oldState)

	if err := syscall.SetNonblock(fd, true); err != nil {
		return err
	}
	defer syscall.SetNonblock(fd, false)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	paused := false
	buf := make([]byte, 1)
	for range ticker.C {
		for {
			n, err := syscall.Read(fd, buf)
			if n <= 0 {
				if err != nil && err != syscall.EAGAIN && err != syscall.EWOULDBLOCK {
					return err
				}
				break
			}

			switch buf[0] {
			case 'q', 'Q', 3, 27: // q, Ctrl-C, Esc
				fmt.Print("\r\n")
				return nil
			case ' ':
				paused = !paused
				out.Control(func(e *musdoom.Emulator) {
					if paused {
						e.Pause()
					} else {
						e.Resume()
					}
				})
			case '+', '=':
				out.Control(func(e *musdoom.Emulator) { e.SetVolume(e.Volume() + 8) })
			case '-':
				out.Control(func(e *musdoom.Emulator) { e.SetVolume(e.Volume() - 8) })
			case '.':
				out.Control(func(e *musdoom.Emulator) { _ = e.Seek(e.Position() + 10*time.Second) })
				paused = false
			case ',':
				out.Control(func(e *musdoom.Emulator) {
					pos := e.Position() - 10*time.Second
					if pos < 0 {
						pos = 0
					}
					_ = e.Seek(pos)
				})
				paused = false
			}
		}

		var pos, length time.Duration
		var vol int
		var playing bool
		out.Control(func(e *musdoom.Emulator) {
			pos = e.Position()
			length = e.Length()
			vol = e.Volume()
			playing = e.IsPlaying()
		})

		if !paused && !playing {
			fmt.Print("\r\n")
			return nil
		}

		state := "playing"
		if paused {
			state = "paused "
		}
		fmt.Printf("\r%s %s / %s  vol %3d ", state, formatDuration(pos), formatDuration(length), vol)
	}
	return nil
}

// waitForEnd polls for the end of a non-interactive session.
func waitForEnd(out *musdoom.OtoOutput) error {
	for {
		time.Sleep(200 * time.Millisecond)
		playing := false
		out.Control(func(e *musdoom.Emulator) { playing = e.IsPlaying() })
		if !playing {
			return nil
		}
	}
}

func formatDuration(d time.Duration) string {
	s := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
