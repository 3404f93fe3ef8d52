// Package audio converts between capture buffers and the wire sample format.
//
// Capture buffers are float32 samples in [-1, 1]. The wire format is 16-bit signed
// little-endian PCM, base64 encoded when it travels inside JSON.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// CaptureSampleRate is the microphone rate expected by the live model
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate of audio produced by the live model
	PlaybackSampleRate = 24000
	// FrameSize is the number of samples per captured frame
	FrameSize = 4096
)

var ErrOddLength = errors.New("pcm data length is not a whole number of samples")

// PCMMIMEType returns the MIME type for raw PCM at the given rate
func PCMMIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// FloatToPCM16 converts float samples to 16-bit little-endian PCM.
// Samples outside [-1, 1] are clamped instead of wrapping around.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s) * 32768
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// PCM16ToFloat converts interleaved 16-bit little-endian PCM into one float slice per channel
func PCM16ToFloat(pcm []byte, channels int) ([][]float32, error) {
	if channels <= 0 {
		channels = 1
	}
	if len(pcm)%2 != 0 {
		return nil, ErrOddLength
	}
	total := len(pcm) / 2
	frames := total / channels

	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx:]))
			out[ch][i] = float32(sample) / 32768
		}
	}
	return out, nil
}

// Encode produces the binary-safe wire encoding of raw bytes
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode reverses Encode
func Decode(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio payload: %w", err)
	}
	return data, nil
}

// Clip is a decoded block of mono audio ready for playback
type Clip struct {
	Samples    []float32
	SampleRate int
}

// NewClip decodes mono PCM16 at the given rate
func NewClip(pcm []byte, sampleRate int) (Clip, error) {
	if sampleRate <= 0 {
		return Clip{}, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	channels, err := PCM16ToFloat(pcm, 1)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Samples: channels[0], SampleRate: sampleRate}, nil
}

// Duration returns how long the clip plays
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// PCM16 re-encodes the clip for transmission to a playback device
func (c Clip) PCM16() []byte {
	return FloatToPCM16(c.Samples)
}

// DecodeFloat32Frame parses a little-endian float32 frame as sent by capture devices
func DecodeFloat32Frame(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("float32 frame length %d is not a multiple of 4", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

// EncodeFloat32Frame is the inverse of DecodeFloat32Frame
func EncodeFloat32Frame(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}
