package repositories

import "context"

// ServerEventKind tags the variant carried by a ServerEvent
type ServerEventKind string

const (
	ServerEventInputTranscript  ServerEventKind = "input_transcript"
	ServerEventOutputTranscript ServerEventKind = "output_transcript"
	ServerEventAudio            ServerEventKind = "audio"
	ServerEventTurnComplete     ServerEventKind = "turn_complete"
	ServerEventInterrupted      ServerEventKind = "interrupted"
)

// ServerEvent is one inbound event from the live voice transport
type ServerEvent struct {
	Kind ServerEventKind
	// Text is set for transcript fragments
	Text string
	// Audio is 16-bit little-endian mono PCM at SampleRate, set for audio events
	Audio      []byte
	SampleRate int
}

// AudioFrame is an encoded microphone frame ready for the wire
type AudioFrame struct {
	Data     []byte
	MIMEType string
}

// LiveCallbacks receives everything the transport reports about a connection
type LiveCallbacks struct {
	OnMessage func(ServerEvent)
	OnError   func(error)
	OnClose   func()
}

// LiveConnection is an open duplex voice connection
type LiveConnection interface {
	SendRealtimeAudio(frame AudioFrame) error
	Close() error
}

// LiveTransport opens duplex voice connections to the model
type LiveTransport interface {
	Connect(ctx context.Context, callbacks LiveCallbacks) (LiveConnection, error)
}
