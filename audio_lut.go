// audio_lut.go - lookup tables for the FM synthesis core

package musdoom

import "math"

// Lookup table sizes
const (
	sinLUTSize  = 8192 // ~0.00077 radian resolution
	sinLUTMask  = sinLUTSize - 1
	tanhLUTSize = 4096
	tanhLUTMin  = -4.0
	tanhLUTMax  = 4.0
)

const (
	TWO_PI = 2 * math.Pi

	sinLUTScale  = sinLUTSize / TWO_PI
	tanhLUTScale = (tanhLUTSize - 1) / (tanhLUTMax - tanhLUTMin)
)

// sinLUT holds one sine cycle for phase [0, 2π).
var sinLUT [sinLUTSize]float64

// tanhLUT holds tanh over [-4, 4]; the function saturates to ±1 outside.
var tanhLUT [tanhLUTSize]float64

func init() {
	for i := range sinLUT {
		sinLUT[i] = math.Sin(float64(i) * TWO_PI / sinLUTSize)
	}
	for i := range tanhLUT {
		x := tanhLUTMin + float64(i)*(tanhLUTMax-tanhLUTMin)/(tanhLUTSize-1)
		tanhLUT[i] = math.Tanh(x)
	}
}

// fastSin returns sin(phase) using the lookup table with linear
// interpolation. Phase is in radians; any real value is wrapped.
//
//go:nosplit
func fastSin(phase float64) float64 {
	phase -= TWO_PI * math.Floor(phase/TWO_PI)

	indexF := phase * sinLUTScale
	index := int(indexF)
	frac := indexF - float64(index)

	index &= sinLUTMask
	next := (index + 1) & sinLUTMask

	return sinLUT[index] + frac*(sinLUT[next]-sinLUT[index])
}

// fastTanh returns tanh(x) using the lookup table with linear
// interpolation, clamped outside [-4, 4].
//
//go:nosplit
func fastTanh(x float64) float64 {
	if x <= tanhLUTMin {
		return -1
	}
	if x >= tanhLUTMax {
		return 1
	}

	indexF := (x - tanhLUTMin) * tanhLUTScale
	index := int(indexF)
	frac := indexF - float64(index)

	if index >= tanhLUTSize-1 {
		return tanhLUT[tanhLUTSize-1]
	}

	return tanhLUT[index] + frac*(tanhLUT[index+1]-tanhLUT[index])
}
