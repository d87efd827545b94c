// errors.go - error kinds shared by the public surface

package musdoom

import "errors"

// Error kinds returned by the public entry points. Runtime anomalies during
// playback (voice exhaustion, truncated scores) are recovered internally
// and never surface as errors.
var (
	ErrInvalidParam       = errors.New("musdoom: invalid parameter")
	ErrOutOfMemory        = errors.New("musdoom: out of memory")
	ErrInvalidData        = errors.New("musdoom: invalid data")
	ErrNotInitialized     = errors.New("musdoom: not initialized")
	ErrAlreadyInitialized = errors.New("musdoom: already initialized")
)
