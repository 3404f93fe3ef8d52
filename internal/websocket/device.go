package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/peacepal/server/internal/audio"
	"github.com/satriahrh/peacepal/server/internal/voice"
)

const captureReadyTimeout = 30 * time.Second

var (
	errDeviceGone     = errors.New("device disconnected")
	errCaptureOpen    = errors.New("microphone is already open")
	errOutputOpen     = errors.New("playback output is already open")
	errOutputClosed   = errors.New("playback output is closed")
	errCaptureTimeout = errors.New("timed out waiting for microphone")
)

var (
	_ voice.Device        = (*Client)(nil)
	_ voice.StateObserver = (*Client)(nil)
)

// deviceCapture is the microphone of a connected device
type deviceCapture struct {
	client  *Client
	onFrame func([]float32)
	ready   chan error

	mu      sync.Mutex
	live    bool
	stopped bool
}

func (dc *deviceCapture) deliver(samples []float32) {
	dc.mu.Lock()
	live := dc.live && !dc.stopped
	dc.mu.Unlock()
	if live {
		dc.onFrame(samples)
	}
}

// Stop implements voice.Capture
func (dc *deviceCapture) Stop() {
	dc.mu.Lock()
	if dc.stopped {
		dc.mu.Unlock()
		return
	}
	dc.stopped = true
	dc.mu.Unlock()
	dc.client.sendJSON(&BaseMessage{Type: MessageTypeCaptureStop, Timestamp: now()})
}

// Close implements voice.Capture
func (dc *deviceCapture) Close() error {
	dc.client.mu.Lock()
	defer dc.client.mu.Unlock()
	if dc.client.capture == dc {
		dc.client.capture = nil
	}
	return nil
}

// OpenCapture implements voice.Microphone. It asks the device to open its microphone and
// waits for the device to confirm or deny.
func (c *Client) OpenCapture(ctx context.Context, sampleRate, frameSize int, onFrame func([]float32)) (voice.Capture, error) {
	capture := &deviceCapture{client: c, onFrame: onFrame, ready: make(chan error, 1)}

	c.mu.Lock()
	if c.capture != nil {
		c.mu.Unlock()
		return nil, errCaptureOpen
	}
	c.capture = capture
	c.mu.Unlock()

	c.sendJSON(&CaptureStartMessage{
		BaseMessage: base(MessageTypeCaptureStart),
		SampleRate:  sampleRate,
		FrameSize:   frameSize,
	})

	timer := time.NewTimer(captureReadyTimeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-capture.ready:
	case <-ctx.Done():
		err = ctx.Err()
	case <-c.done:
		err = errDeviceGone
	case <-timer.C:
		err = errCaptureTimeout
	}
	if err != nil {
		capture.Close()
		return nil, err
	}

	capture.mu.Lock()
	capture.live = true
	capture.mu.Unlock()
	return capture, nil
}

func (c *Client) captureResult(err error) {
	c.mu.Lock()
	capture := c.capture
	c.mu.Unlock()
	if capture == nil {
		return
	}
	select {
	case capture.ready <- err:
	default:
	}
}

// deviceOutput mirrors the device playback clock. Time zero is when the output was opened.
type deviceOutput struct {
	client     *Client
	sampleRate int
	opened     time.Time

	mu     sync.Mutex
	closed bool
	clips  map[string]*deviceSource
}

type deviceSource struct {
	output  *deviceOutput
	id      string
	timer   *time.Timer
	onEnded func()
}

// OpenOutput implements voice.Speaker
func (c *Client) OpenOutput(sampleRate int) (voice.Output, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.output != nil {
		return nil, errOutputOpen
	}
	select {
	case <-c.done:
		return nil, errDeviceGone
	default:
	}

	c.output = &deviceOutput{
		client:     c,
		sampleRate: sampleRate,
		opened:     time.Now(),
		clips:      make(map[string]*deviceSource),
	}
	return c.output, nil
}

// CurrentTime implements voice.Output
func (o *deviceOutput) CurrentTime() time.Duration {
	return time.Since(o.opened)
}

// Start implements voice.Output. onEnded fires from a timer goroutine once the clip's
// scheduled end has passed, or earlier when the device reports it finished.
func (o *deviceOutput) Start(clip audio.Clip, at time.Duration, onEnded func()) (voice.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, errOutputClosed
	}

	src := &deviceSource{output: o, id: uuid.NewString(), onEnded: onEnded}
	delay := at + clip.Duration() - o.CurrentTime()
	src.timer = time.AfterFunc(delay, func() { o.ended(src.id) })
	sent := o.client.sendJSON(&PlayMessage{
		BaseMessage: base(MessageTypePlay),
		ClipID:      src.id,
		SampleRate:  clip.SampleRate,
		StartMs:     at.Milliseconds(),
		Audio:       audio.Encode(clip.PCM16()),
	})
	if !sent {
		src.timer.Stop()
		return nil, errDeviceGone
	}
	o.clips[src.id] = src
	return src, nil
}

func (o *deviceOutput) ended(id string) {
	o.mu.Lock()
	src, ok := o.clips[id]
	if ok {
		delete(o.clips, id)
		src.timer.Stop()
	}
	o.mu.Unlock()
	if ok {
		src.onEnded()
	}
}

// Close implements voice.Output
func (o *deviceOutput) Close() error {
	o.mu.Lock()
	o.closed = true
	for id, src := range o.clips {
		src.timer.Stop()
		delete(o.clips, id)
	}
	o.mu.Unlock()

	o.client.mu.Lock()
	if o.client.output == o {
		o.client.output = nil
	}
	o.client.mu.Unlock()
	return nil
}

// Stop implements voice.Source
func (s *deviceSource) Stop() {
	o := s.output
	o.mu.Lock()
	_, ok := o.clips[s.id]
	if ok {
		delete(o.clips, s.id)
		s.timer.Stop()
	}
	o.mu.Unlock()
	if ok {
		o.client.sendJSON(&StopMessage{BaseMessage: base(MessageTypeStop), ClipID: s.id})
	}
}

func (c *Client) playbackEnded(clipID string) {
	c.mu.Lock()
	output := c.output
	c.mu.Unlock()
	if output != nil {
		output.ended(clipID)
	}
}

// VoiceStateChanged implements voice.StateObserver
func (c *Client) VoiceStateChanged(state voice.State) {
	c.sendJSON(CreateStateMessage(string(state)))
}
