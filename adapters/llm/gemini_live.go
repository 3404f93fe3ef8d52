package llm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/peacepal/server/domain/repositories"
)

const (
	defaultLiveModel = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultVoice     = "Zephyr"
	defaultLiveRate  = 24000
)

// LiveConfig holds live voice settings
type LiveConfig struct {
	Model        string
	Voice        string
	SystemPrompt string
}

// ValidateLiveConfig applies defaults
func ValidateLiveConfig(config *LiveConfig, logger *zap.Logger) {
	if config.Model == "" {
		config.Model = defaultLiveModel
		logger.Info("Using default live model", zap.String("model", config.Model))
	}
	if config.Voice == "" {
		config.Voice = defaultVoice
		logger.Info("Using default voice", zap.String("voice", config.Voice))
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = SystemPrompt
	}
}

// GeminiLive implements repositories.LiveTransport with the Gemini Live API
type GeminiLive struct {
	client *genai.Client
	config LiveConfig
	logger *zap.Logger
}

var _ repositories.LiveTransport = (*GeminiLive)(nil)

// NewGeminiLive creates a live transport. A nil client makes every Connect fail.
func NewGeminiLive(client *genai.Client, config LiveConfig, logger *zap.Logger) *GeminiLive {
	ValidateLiveConfig(&config, logger)
	return &GeminiLive{
		client: client,
		config: config,
		logger: logger,
	}
}

// Connect implements repositories.LiveTransport
func (g *GeminiLive) Connect(ctx context.Context, callbacks repositories.LiveCallbacks) (repositories.LiveConnection, error) {
	if g.client == nil {
		return nil, ErrMissingAPIKey
	}

	session, err := g.client.Live.Connect(ctx, g.config.Model, &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.config.Voice},
			},
		},
		SystemInstruction:        genai.NewContentFromText(g.config.SystemPrompt, genai.RoleUser),
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to live model: %w", err)
	}

	conn := &geminiLiveConnection{
		session:   session,
		callbacks: callbacks,
		logger:    g.logger,
	}
	go conn.receiveLoop()

	g.logger.Info("Live session connected", zap.String("model", g.config.Model))
	return conn, nil
}

// geminiLiveConnection adapts a genai live session. Callbacks stop once Close is called so
// a locally initiated close never reports back into the caller.
type geminiLiveConnection struct {
	session   *genai.Session
	callbacks repositories.LiveCallbacks
	logger    *zap.Logger

	sendMu sync.Mutex
	closed atomic.Bool
}

// SendRealtimeAudio implements repositories.LiveConnection
func (c *geminiLiveConnection) SendRealtimeAudio(frame repositories.AudioFrame) error {
	if c.closed.Load() {
		return errors.New("live connection closed")
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: frame.Data, MIMEType: frame.MIMEType},
	})
}

// Close implements repositories.LiveConnection
func (c *geminiLiveConnection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.session.Close()
}

func (c *geminiLiveConnection) receiveLoop() {
	for {
		msg, err := c.session.Receive()
		if c.closed.Load() {
			return
		}
		if err != nil {
			c.closed.Store(true)
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				if c.callbacks.OnClose != nil {
					c.callbacks.OnClose()
				}
				return
			}
			if c.callbacks.OnError != nil {
				c.callbacks.OnError(err)
			}
			return
		}

		for _, event := range eventsFromMessage(msg) {
			if c.callbacks.OnMessage != nil {
				c.callbacks.OnMessage(event)
			}
		}
	}
}

// eventsFromMessage splits one server message into tagged events in a fixed order:
// transcripts, then audio, then interruption, then turn completion
func eventsFromMessage(msg *genai.LiveServerMessage) []repositories.ServerEvent {
	if msg == nil || msg.ServerContent == nil {
		return nil
	}
	content := msg.ServerContent

	var events []repositories.ServerEvent
	if content.InputTranscription != nil && content.InputTranscription.Text != "" {
		events = append(events, repositories.ServerEvent{
			Kind: repositories.ServerEventInputTranscript,
			Text: content.InputTranscription.Text,
		})
	}
	if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
		events = append(events, repositories.ServerEvent{
			Kind: repositories.ServerEventOutputTranscript,
			Text: content.OutputTranscription.Text,
		})
	}
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			events = append(events, repositories.ServerEvent{
				Kind:       repositories.ServerEventAudio,
				Audio:      part.InlineData.Data,
				SampleRate: sampleRateFromMIME(part.InlineData.MIMEType),
			})
		}
	}
	if content.Interrupted {
		events = append(events, repositories.ServerEvent{Kind: repositories.ServerEventInterrupted})
	}
	if content.TurnComplete {
		events = append(events, repositories.ServerEvent{Kind: repositories.ServerEventTurnComplete})
	}
	return events
}

// sampleRateFromMIME reads the rate parameter of an audio/pcm MIME type
func sampleRateFromMIME(mime string) int {
	for _, param := range strings.Split(mime, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || strings.ToLower(key) != "rate" {
			continue
		}
		if rate, err := strconv.Atoi(value); err == nil && rate > 0 {
			return rate
		}
	}
	return defaultLiveRate
}
