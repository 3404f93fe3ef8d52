package voice

import (
	"context"
	"errors"
	"time"

	"github.com/satriahrh/peacepal/server/internal/audio"
)

// ErrPermissionDenied is returned by a Microphone when capture access is refused
var ErrPermissionDenied = errors.New("microphone permission denied")

// Capture is an open microphone stream
type Capture interface {
	// Stop stops the capture tracks and detaches the frame callback
	Stop()
	// Close releases the capture context
	Close() error
}

// Microphone opens a capture stream delivering fixed-size float frames to onFrame
type Microphone interface {
	OpenCapture(ctx context.Context, sampleRate, frameSize int, onFrame func([]float32)) (Capture, error)
}

// Source is one scheduled clip
type Source interface {
	Stop()
}

// Output is a playback context with its own clock
type Output interface {
	// CurrentTime is the playback clock, starting at zero when the output opens
	CurrentTime() time.Duration
	// Start schedules clip to begin at the given clock time. onEnded must be invoked
	// asynchronously once the clip finishes or is stopped.
	Start(clip audio.Clip, at time.Duration, onEnded func()) (Source, error)
	Close() error
}

// Speaker opens playback outputs
type Speaker interface {
	OpenOutput(sampleRate int) (Output, error)
}

// Device is a client endpoint able to both capture and play audio
type Device interface {
	Microphone
	Speaker
}

// StateObserver is implemented by devices that want voice state notifications
type StateObserver interface {
	VoiceStateChanged(state State)
}
