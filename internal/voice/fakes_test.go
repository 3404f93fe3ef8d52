package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/domain/repositories"
	"github.com/satriahrh/peacepal/server/internal/audio"
)

type fakeSource struct {
	mu      sync.Mutex
	stopped bool
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *fakeSource) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type scheduledClip struct {
	at       time.Duration
	duration time.Duration
	source   *fakeSource
	onEnded  func()
}

type fakeOutput struct {
	mu      sync.Mutex
	now     time.Duration
	clips   []scheduledClip
	closed  int
	startFn func() error
}

func (o *fakeOutput) CurrentTime() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) SetTime(now time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = now
}

func (o *fakeOutput) Start(clip audio.Clip, at time.Duration, onEnded func()) (Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.startFn != nil {
		if err := o.startFn(); err != nil {
			return nil, err
		}
	}
	src := &fakeSource{}
	o.clips = append(o.clips, scheduledClip{at: at, duration: clip.Duration(), source: src, onEnded: onEnded})
	return src, nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

func (o *fakeOutput) Clips() []scheduledClip {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]scheduledClip(nil), o.clips...)
}

func (o *fakeOutput) Closed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

type fakeCapture struct {
	mu      sync.Mutex
	stopped int
	closed  int
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped++
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeCapture) Counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped, c.closed
}

type fakeDevice struct {
	mu          sync.Mutex
	captureErr  error
	holdCapture bool
	waiting     bool
	capture     *fakeCapture
	output      *fakeOutput
	onFrame     func([]float32)
	outputs     int
	states      []State
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{capture: &fakeCapture{}, output: &fakeOutput{}}
}

// OpenCapture waits for ctx when holdCapture is set, like a device that never answers
func (d *fakeDevice) OpenCapture(ctx context.Context, sampleRate, frameSize int, onFrame func([]float32)) (Capture, error) {
	d.mu.Lock()
	if d.holdCapture {
		d.waiting = true
		d.mu.Unlock()
		<-ctx.Done()
		d.mu.Lock()
		d.waiting = false
		d.mu.Unlock()
		return nil, ctx.Err()
	}
	defer d.mu.Unlock()
	if d.captureErr != nil {
		return nil, d.captureErr
	}
	d.onFrame = onFrame
	return d.capture, nil
}

func (d *fakeDevice) SetHoldCapture(hold bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.holdCapture = hold
}

func (d *fakeDevice) Waiting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waiting
}

func (d *fakeDevice) OpenOutput(sampleRate int) (Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputs++
	return d.output, nil
}

func (d *fakeDevice) VoiceStateChanged(state State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = append(d.states, state)
}

func (d *fakeDevice) Emit(samples []float32) {
	d.mu.Lock()
	fn := d.onFrame
	d.mu.Unlock()
	fn(samples)
}

func (d *fakeDevice) Outputs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outputs
}

func (d *fakeDevice) States() []State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]State(nil), d.states...)
}

type fakeConn struct {
	mu     sync.Mutex
	frames []repositories.AudioFrame
	closed int
}

func (c *fakeConn) SendRealtimeAudio(frame repositories.AudioFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConn) Frames() []repositories.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]repositories.AudioFrame(nil), c.frames...)
}

func (c *fakeConn) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeTransport struct {
	mu        sync.Mutex
	conn      *fakeConn
	callbacks repositories.LiveCallbacks
	err       error
	gate      chan struct{}
}

func (t *fakeTransport) Connect(ctx context.Context, callbacks repositories.LiveCallbacks) (repositories.LiveConnection, error) {
	if t.gate != nil {
		<-t.gate
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	t.callbacks = callbacks
	return t.conn, nil
}

func (t *fakeTransport) Callbacks() repositories.LiveCallbacks {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.callbacks
}

type sinkCall struct {
	kind   string
	sender entities.Sender
	text   string
}

type fakeSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (s *fakeSink) ShowPartial(sender entities.Sender, text string) {
	s.record(sinkCall{kind: "partial", sender: sender, text: text})
}

func (s *fakeSink) CommitPartial(sender entities.Sender, text string) {
	s.record(sinkCall{kind: "commit", sender: sender, text: text})
}

func (s *fakeSink) DiscardPartials() {
	s.record(sinkCall{kind: "discard"})
}

func (s *fakeSink) record(call sinkCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeSink) Calls() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkCall(nil), s.calls...)
}

func (s *fakeSink) Count(kind string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.kind == kind {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")
