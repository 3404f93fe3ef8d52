// Package voice manages a single real-time voice conversation: microphone capture streamed
// to the live model, model audio scheduled back onto the device, and transcripts reconciled
// into the conversation history.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/peacepal/server/domain/entities"
	"github.com/satriahrh/peacepal/server/domain/repositories"
	"github.com/satriahrh/peacepal/server/internal/audio"
)

var (
	ErrSessionBusy   = errors.New("a voice session is already connecting or active")
	ErrSessionClosed = errors.New("voice session was stopped before it became active")
)

// State is the lifecycle state of the manager
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
)

// Config holds audio parameters for voice sessions
type Config struct {
	CaptureSampleRate  int
	PlaybackSampleRate int
	FrameSize          int
	SendQueueSize      int
	EventQueueSize     int
}

// ValidateConfig fills defaults for unset values
func ValidateConfig(config *Config, logger *zap.Logger) {
	if config.CaptureSampleRate <= 0 {
		config.CaptureSampleRate = audio.CaptureSampleRate
		logger.Info("Using default capture sample rate", zap.Int("sampleRate", config.CaptureSampleRate))
	}
	if config.PlaybackSampleRate <= 0 {
		config.PlaybackSampleRate = audio.PlaybackSampleRate
		logger.Info("Using default playback sample rate", zap.Int("sampleRate", config.PlaybackSampleRate))
	}
	if config.FrameSize <= 0 {
		config.FrameSize = audio.FrameSize
		logger.Info("Using default frame size", zap.Int("frameSize", config.FrameSize))
	}
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = 64
	}
	if config.EventQueueSize <= 0 {
		config.EventQueueSize = 256
	}
}

// session holds every resource of one voice session
type session struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	device Device

	frames  chan repositories.AudioFrame
	events  chan repositories.ServerEvent
	ready   chan struct{}
	started chan struct{}

	// mu guards the handles below and serializes event handling against teardown
	mu         sync.Mutex
	closed     bool
	conn       repositories.LiveConnection
	capture    Capture
	output     Output
	scheduler  *Scheduler
	transcript Transcript

	once sync.Once
}

func (s *session) connection() repositories.LiveConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Manager owns at most one voice session at a time
type Manager struct {
	transport repositories.LiveTransport
	sink      TranscriptSink
	config    Config
	logger    *zap.Logger

	mu      sync.Mutex
	state   State
	gen     uint64
	current *session
	last    *session
}

// NewManager creates a voice manager
func NewManager(transport repositories.LiveTransport, sink TranscriptSink, config Config, logger *zap.Logger) *Manager {
	ValidateConfig(&config, logger)
	return &Manager{
		transport: transport,
		sink:      sink,
		config:    config,
		logger:    logger,
		state:     StateIdle,
	}
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Busy reports whether a session is connecting or active
func (m *Manager) Busy() bool {
	return m.State() != StateIdle
}

// Start opens capture and playback on device and connects the live transport. It blocks
// until the session is active or has been torn down.
func (m *Manager) Start(ctx context.Context, device Device) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		sessionsStarted.WithLabelValues("busy").Inc()
		return ErrSessionBusy
	}
	m.gen++
	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		gen:     m.gen,
		ctx:     sctx,
		cancel:  cancel,
		device:  device,
		frames:  make(chan repositories.AudioFrame, m.config.SendQueueSize),
		events:  make(chan repositories.ServerEvent, m.config.EventQueueSize),
		ready:   make(chan struct{}),
		started: make(chan struct{}),
	}
	defer close(s.started)
	prev := m.last
	m.current = s
	m.last = s
	m.state = StateConnecting
	m.mu.Unlock()

	sessionsActive.Inc()
	m.notify(device, StateConnecting)
	logger := m.logger.With(zap.Uint64("generation", s.gen))
	logger.Info("Starting voice session")

	// startCtx ends with the caller or with the session, whichever goes first. Every exit
	// path tears the session down, which releases it.
	startCtx, cancelStart := context.WithCancel(ctx)
	context.AfterFunc(sctx, cancelStart)

	// A stopped start may still be releasing the device
	if prev != nil {
		select {
		case <-prev.started:
		case <-startCtx.Done():
			if sctx.Err() != nil {
				return ErrSessionClosed
			}
			m.teardown(s, "cancelled")
			return startCtx.Err()
		}
	}

	capture, err := device.OpenCapture(startCtx, m.config.CaptureSampleRate, m.config.FrameSize, func(samples []float32) {
		m.enqueueFrame(s, samples)
	})
	if err != nil {
		if sctx.Err() != nil {
			return ErrSessionClosed
		}
		m.teardown(s, "capture")
		sessionsStarted.WithLabelValues("capture_failed").Inc()
		return fmt.Errorf("failed to open microphone: %w", err)
	}
	if !s.attach(func() { s.capture = capture }) {
		capture.Stop()
		_ = capture.Close()
		return ErrSessionClosed
	}

	output, err := device.OpenOutput(m.config.PlaybackSampleRate)
	if err != nil {
		m.teardown(s, "output")
		sessionsStarted.WithLabelValues("output_failed").Inc()
		return fmt.Errorf("failed to open playback output: %w", err)
	}
	if !s.attach(func() {
		s.output = output
		s.scheduler = NewScheduler(output)
	}) {
		_ = output.Close()
		return ErrSessionClosed
	}

	go m.writeFrames(s)
	go m.handleEvents(s)

	conn, err := m.transport.Connect(startCtx, repositories.LiveCallbacks{
		OnMessage: func(event repositories.ServerEvent) {
			select {
			case s.events <- event:
			case <-s.ctx.Done():
			}
		},
		OnError: func(err error) {
			logger.Error("Live transport error", zap.Error(err))
			m.teardown(s, "transport_error")
		},
		OnClose: func() {
			logger.Info("Live transport closed")
			m.teardown(s, "transport_closed")
		},
	})
	if err != nil {
		if sctx.Err() != nil {
			return ErrSessionClosed
		}
		m.teardown(s, "connect")
		sessionsStarted.WithLabelValues("connect_failed").Inc()
		return fmt.Errorf("failed to connect live transport: %w", err)
	}
	if !s.attach(func() { s.conn = conn }) {
		_ = conn.Close()
		return ErrSessionClosed
	}

	m.mu.Lock()
	if m.current != s {
		m.mu.Unlock()
		return ErrSessionClosed
	}
	m.state = StateActive
	m.mu.Unlock()
	close(s.ready)

	sessionsStarted.WithLabelValues("ok").Inc()
	m.notify(device, StateActive)
	logger.Info("Voice session active")
	return nil
}

// Stop tears down the current session. Calling it while idle or more than once is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil {
		return
	}
	m.teardown(s, "stop")
}

// StopDevice tears down the current session only when it runs on device
func (m *Manager) StopDevice(device Device) {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()
	if s == nil || s.device != device {
		return
	}
	m.teardown(s, "device_gone")
}

// attach stores a handle unless the session was already torn down
func (s *session) attach(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn()
	return true
}

// teardown is the single exit path of a session. Connection first, then capture before
// any audio context is closed.
func (m *Manager) teardown(s *session, cause string) {
	s.once.Do(func() {
		s.cancel()

		s.mu.Lock()
		s.closed = true
		conn, capture, output, scheduler := s.conn, s.capture, s.output, s.scheduler
		s.conn, s.capture, s.output, s.scheduler = nil, nil, nil, nil
		s.transcript.Reset()
		s.mu.Unlock()

		if conn != nil {
			if err := conn.Close(); err != nil {
				m.logger.Warn("Failed to close live connection", zap.Error(err))
			}
		}
		if capture != nil {
			capture.Stop()
			if err := capture.Close(); err != nil {
				m.logger.Warn("Failed to close capture", zap.Error(err))
			}
		}
		if scheduler != nil {
			scheduler.Interrupt()
		}
		if output != nil {
			if err := output.Close(); err != nil {
				m.logger.Warn("Failed to close playback output", zap.Error(err))
			}
		}
		m.sink.DiscardPartials()

		m.mu.Lock()
		if m.current != nil && m.current.gen == s.gen {
			m.current = nil
			m.state = StateIdle
		}
		m.mu.Unlock()

		sessionsActive.Dec()
		teardowns.WithLabelValues(cause).Inc()
		m.notify(s.device, StateIdle)
		m.logger.Info("Voice session torn down", zap.Uint64("generation", s.gen), zap.String("cause", cause))
	})
}

func (m *Manager) enqueueFrame(s *session, samples []float32) {
	if s.ctx.Err() != nil {
		return
	}
	frame := repositories.AudioFrame{
		Data:     audio.FloatToPCM16(samples),
		MIMEType: audio.PCMMIMEType(m.config.CaptureSampleRate),
	}
	select {
	case s.frames <- frame:
	default:
		framesDropped.WithLabelValues("queue_full").Inc()
	}
}

// writeFrames is the only goroutine that sends on the connection
func (m *Manager) writeFrames(s *session) {
	select {
	case <-s.ready:
	case <-s.ctx.Done():
		return
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.frames:
			conn := s.connection()
			if conn == nil {
				return
			}
			if err := conn.SendRealtimeAudio(frame); err != nil {
				framesDropped.WithLabelValues("send_failed").Inc()
				m.logger.Debug("Failed to send audio frame", zap.Error(err))
				continue
			}
			framesSent.Inc()
		}
	}
}

// handleEvents processes inbound events in arrival order
func (m *Manager) handleEvents(s *session) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.events:
			m.handle(s, event)
		}
	}
}

func (m *Manager) handle(s *session, event repositories.ServerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	switch event.Kind {
	case repositories.ServerEventInputTranscript:
		if event.Text == "" {
			return
		}
		m.sink.ShowPartial(entities.SenderUser, s.transcript.Add(entities.SenderUser, event.Text))

	case repositories.ServerEventOutputTranscript:
		if event.Text == "" {
			return
		}
		m.sink.ShowPartial(entities.SenderBot, s.transcript.Add(entities.SenderBot, event.Text))

	case repositories.ServerEventAudio:
		rate := event.SampleRate
		if rate <= 0 {
			rate = m.config.PlaybackSampleRate
		}
		clip, err := audio.NewClip(event.Audio, rate)
		if err != nil {
			m.logger.Warn("Dropping undecodable audio", zap.Error(err))
			return
		}
		if _, err := s.scheduler.Schedule(clip); err != nil {
			m.logger.Warn("Failed to schedule audio", zap.Error(err))
		}

	case repositories.ServerEventInterrupted:
		stopped := s.scheduler.Interrupt()
		interruptions.Inc()
		m.logger.Debug("Playback interrupted", zap.Int("stopped", stopped))

	case repositories.ServerEventTurnComplete:
		for _, line := range s.transcript.Flush() {
			m.sink.CommitPartial(line.Sender, line.Text)
		}

	default:
		m.logger.Warn("Unknown server event", zap.String("kind", string(event.Kind)))
	}
}

func (m *Manager) notify(device Device, state State) {
	if observer, ok := device.(StateObserver); ok {
		observer.VoiceStateChanged(state)
	}
}
