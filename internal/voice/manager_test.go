package voice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/domain/repositories"
	"github.com/satriahrh/peacepal/server/internal/audio"
)

const eventually = time.Second

func newTestManager(t *testing.T, transport *fakeTransport) (*Manager, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	return NewManager(transport, sink, Config{}, zaptest.NewLogger(t)), sink
}

func startActive(t *testing.T) (*Manager, *fakeDevice, *fakeTransport, *fakeSink) {
	t.Helper()
	transport := &fakeTransport{conn: &fakeConn{}}
	m, sink := newTestManager(t, transport)
	device := newFakeDevice()
	require.NoError(t, m.Start(context.Background(), device))
	require.Equal(t, StateActive, m.State())
	return m, device, transport, sink
}

func TestManagerStartStop(t *testing.T) {
	m, device, transport, sink := startActive(t)

	device.Emit([]float32{0, 0.5})
	device.Emit([]float32{-0.5})

	require.Eventually(t, func() bool { return len(transport.conn.Frames()) == 2 }, eventually, 5*time.Millisecond)
	frames := transport.conn.Frames()
	assert.Equal(t, "audio/pcm;rate=16000", frames[0].MIMEType)
	assert.Equal(t, audio.FloatToPCM16([]float32{0, 0.5}), frames[0].Data)
	assert.Equal(t, audio.FloatToPCM16([]float32{-0.5}), frames[1].Data)

	m.Stop()
	m.Stop()

	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, 1, transport.conn.Closed())
	stopped, closed := device.capture.Counts()
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, device.output.Closed())
	assert.Equal(t, 1, sink.Count("discard"))
	assert.Equal(t, []State{StateConnecting, StateActive, StateIdle}, device.States())
}

func TestManagerFramesBeforeConnectAreQueued(t *testing.T) {
	transport := &fakeTransport{conn: &fakeConn{}, gate: make(chan struct{})}
	m, _ := newTestManager(t, transport)
	device := newFakeDevice()

	done := make(chan error, 1)
	go func() { done <- m.Start(context.Background(), device) }()

	require.Eventually(t, func() bool {
		device.mu.Lock()
		defer device.mu.Unlock()
		return device.onFrame != nil
	}, eventually, 5*time.Millisecond)
	device.Emit([]float32{0.25})

	close(transport.gate)
	require.NoError(t, <-done)

	require.Eventually(t, func() bool { return len(transport.conn.Frames()) == 1 }, eventually, 5*time.Millisecond)
	m.Stop()
}

func TestManagerRejectsConcurrentStart(t *testing.T) {
	transport := &fakeTransport{conn: &fakeConn{}, gate: make(chan struct{})}
	m, _ := newTestManager(t, transport)

	done := make(chan error, 1)
	go func() { done <- m.Start(context.Background(), newFakeDevice()) }()

	require.Eventually(t, func() bool { return m.State() == StateConnecting }, eventually, 5*time.Millisecond)
	assert.ErrorIs(t, m.Start(context.Background(), newFakeDevice()), ErrSessionBusy)

	close(transport.gate)
	require.NoError(t, <-done)
	assert.ErrorIs(t, m.Start(context.Background(), newFakeDevice()), ErrSessionBusy)
	m.Stop()
}

func TestManagerStopWhileConnecting(t *testing.T) {
	transport := &fakeTransport{conn: &fakeConn{}, gate: make(chan struct{})}
	m, _ := newTestManager(t, transport)
	device := newFakeDevice()

	done := make(chan error, 1)
	go func() { done <- m.Start(context.Background(), device) }()

	require.Eventually(t, func() bool { return m.State() == StateConnecting && device.Outputs() == 1 }, eventually, 5*time.Millisecond)
	m.Stop()
	close(transport.gate)

	assert.ErrorIs(t, <-done, ErrSessionClosed)
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, 1, transport.conn.Closed(), "late connection must be closed")
}

func TestManagerStopWhileWaitingForMicrophone(t *testing.T) {
	transport := &fakeTransport{conn: &fakeConn{}}
	m, _ := newTestManager(t, transport)
	device := newFakeDevice()
	device.SetHoldCapture(true)

	done := make(chan error, 1)
	go func() { done <- m.Start(context.Background(), device) }()

	require.Eventually(t, device.Waiting, eventually, 5*time.Millisecond)
	m.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(eventually):
		t.Fatal("Expected Start to return once the session was stopped")
	}
	assert.Equal(t, StateIdle, m.State())
	assert.False(t, device.Waiting())
	assert.Equal(t, 0, device.Outputs(), "no playback output for a stopped start")
	assert.Nil(t, transport.Callbacks().OnMessage, "transport never connected")

	device.SetHoldCapture(false)
	require.NoError(t, m.Start(context.Background(), device))
	assert.Equal(t, StateActive, m.State())
	m.Stop()
}

func TestManagerStartCancelledByCaller(t *testing.T) {
	transport := &fakeTransport{conn: &fakeConn{}}
	m, sink := newTestManager(t, transport)
	device := newFakeDevice()
	device.SetHoldCapture(true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx, device) }()

	require.Eventually(t, device.Waiting, eventually, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(eventually):
		t.Fatal("Expected Start to return once its context was cancelled")
	}
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, 1, sink.Count("discard"))
}

func TestManagerPermissionDenied(t *testing.T) {
	transport := &fakeTransport{conn: &fakeConn{}}
	m, sink := newTestManager(t, transport)
	device := newFakeDevice()
	device.captureErr = ErrPermissionDenied

	err := m.Start(context.Background(), device)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, 0, device.Outputs(), "no playback output after denial")
	assert.Nil(t, transport.Callbacks().OnMessage, "transport never connected")
	assert.Equal(t, 1, sink.Count("discard"))
}

func TestManagerConnectFailure(t *testing.T) {
	transport := &fakeTransport{err: errBoom}
	m, _ := newTestManager(t, transport)
	device := newFakeDevice()

	err := m.Start(context.Background(), device)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateIdle, m.State())
	stopped, closed := device.capture.Counts()
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, device.output.Closed())

	// the user can explicitly restart
	transport.mu.Lock()
	transport.err = nil
	transport.conn = &fakeConn{}
	transport.mu.Unlock()
	require.NoError(t, m.Start(context.Background(), newFakeDevice()))
	m.Stop()
}

func TestManagerTransportErrorTearsDownOnce(t *testing.T) {
	m, device, transport, sink := startActive(t)
	callbacks := transport.Callbacks()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); callbacks.OnError(errBoom) }()
		go func() { defer wg.Done(); callbacks.OnClose() }()
		go func() { defer wg.Done(); m.Stop() }()
	}
	wg.Wait()

	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, 1, transport.conn.Closed())
	assert.Equal(t, 1, device.output.Closed())
	assert.Equal(t, 1, sink.Count("discard"))
}

func TestManagerTranscriptReconciliation(t *testing.T) {
	m, _, transport, sink := startActive(t)
	send := transport.Callbacks().OnMessage

	send(repositories.ServerEvent{Kind: repositories.ServerEventInputTranscript, Text: "I feel"})
	send(repositories.ServerEvent{Kind: repositories.ServerEventInputTranscript, Text: " low"})
	send(repositories.ServerEvent{Kind: repositories.ServerEventOutputTranscript, Text: "I'm sorry"})
	send(repositories.ServerEvent{Kind: repositories.ServerEventOutputTranscript, Text: " to hear that."})
	send(repositories.ServerEvent{Kind: repositories.ServerEventTurnComplete})

	require.Eventually(t, func() bool { return sink.Count("commit") == 2 }, eventually, 5*time.Millisecond)

	assert.Equal(t, []sinkCall{
		{kind: "partial", sender: entities.SenderUser, text: "I feel"},
		{kind: "partial", sender: entities.SenderUser, text: "I feel low"},
		{kind: "partial", sender: entities.SenderBot, text: "I'm sorry"},
		{kind: "partial", sender: entities.SenderBot, text: "I'm sorry to hear that."},
		{kind: "commit", sender: entities.SenderUser, text: "I feel low"},
		{kind: "commit", sender: entities.SenderBot, text: "I'm sorry to hear that."},
	}, sink.Calls())

	// the next turn starts with fresh buffers
	send(repositories.ServerEvent{Kind: repositories.ServerEventInputTranscript, Text: "Thanks"})
	require.Eventually(t, func() bool { return sink.Count("partial") == 5 }, eventually, 5*time.Millisecond)
	calls := sink.Calls()
	assert.Equal(t, "Thanks", calls[len(calls)-1].text)

	m.Stop()
}

func TestManagerPlaybackAndInterrupt(t *testing.T) {
	m, device, transport, _ := startActive(t)
	send := transport.Callbacks().OnMessage

	second := make([]byte, audio.PlaybackSampleRate*2)
	send(repositories.ServerEvent{Kind: repositories.ServerEventAudio, Audio: second, SampleRate: audio.PlaybackSampleRate})
	send(repositories.ServerEvent{Kind: repositories.ServerEventAudio, Audio: second})

	require.Eventually(t, func() bool { return len(device.output.Clips()) == 2 }, eventually, 5*time.Millisecond)
	clips := device.output.Clips()
	assert.Equal(t, time.Duration(0), clips[0].at)
	assert.Equal(t, time.Second, clips[1].at)

	send(repositories.ServerEvent{Kind: repositories.ServerEventInterrupted})
	require.Eventually(t, func() bool {
		for _, c := range device.output.Clips() {
			if !c.source.Stopped() {
				return false
			}
		}
		return true
	}, eventually, 5*time.Millisecond)

	device.output.SetTime(300 * time.Millisecond)
	send(repositories.ServerEvent{Kind: repositories.ServerEventAudio, Audio: second})
	require.Eventually(t, func() bool { return len(device.output.Clips()) == 3 }, eventually, 5*time.Millisecond)
	assert.Equal(t, 300*time.Millisecond, device.output.Clips()[2].at)

	m.Stop()
}

func TestManagerIgnoresEventsAfterTeardown(t *testing.T) {
	m, _, transport, sink := startActive(t)
	send := transport.Callbacks().OnMessage

	m.Stop()
	send(repositories.ServerEvent{Kind: repositories.ServerEventInputTranscript, Text: "late"})
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, sink.Count("partial"))
}

func TestManagerStopDeviceIgnoresOtherDevices(t *testing.T) {
	m, device, _, _ := startActive(t)

	m.StopDevice(newFakeDevice())
	assert.Equal(t, StateActive, m.State())

	m.StopDevice(device)
	assert.Equal(t, StateIdle, m.State())
}
