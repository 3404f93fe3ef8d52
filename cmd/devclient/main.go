// Command devclient is a development device: it signs a token with the server's JWT
// secret, optionally sends a text message, and can stream a raw PCM16 file as microphone
// input while saving the clips the server plays.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/satriahrh/peacepal/server/internal/audio"
	"github.com/satriahrh/peacepal/server/internal/auth"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	userID := flag.String("user", "dev-user", "user id to sign the token for")
	text := flag.String("text", "", "text message to send before connecting")
	audioPath := flag.String("audio", "", "raw 16kHz mono PCM16 file to stream as microphone input")
	outDir := flag.String("out", "audio_responses", "directory for received clips")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	_ = godotenv.Load()
	issuer, err := auth.NewJWT(os.Getenv("JWT_SECRET"), time.Hour)
	if err != nil {
		logger.Fatal("Failed to create token issuer", zap.Error(err))
	}
	token, err := issuer.GenerateUserToken(*userID)
	if err != nil {
		logger.Fatal("Failed to sign token", zap.Error(err))
	}

	if *text != "" {
		if err := sendText(*addr, token, *text, logger); err != nil {
			logger.Fatal("Failed to send message", zap.Error(err))
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+token)

	logger.Info("Connecting", zap.String("url", u.String()))
	c, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		logger.Fatal("Failed to dial", zap.Error(err))
	}
	defer c.Close()

	d := &device{conn: c, audioPath: *audioPath, outDir: *outDir, logger: logger}
	done := make(chan struct{})
	go d.readLoop(done)

	if *audioPath != "" {
		if err := d.sendJSON(map[string]string{"type": "voice_start"}); err != nil {
			logger.Fatal("Failed to start voice", zap.Error(err))
		}
	}

	select {
	case <-done:
	case <-interrupt:
		logger.Info("Interrupted")
		d.sendJSON(map[string]string{"type": "voice_stop"})
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			logger.Warn("Failed to write close", zap.Error(err))
			return
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

func sendText(addr, token, text string, logger *zap.Logger) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, "http://"+addr+"/api/v1/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, data)
	}
	logger.Info("Message sent", zap.ByteString("conversation", data))
	return nil
}

// device plays the role of a browser client on the WebSocket protocol
type device struct {
	conn      *websocket.Conn
	audioPath string
	outDir    string
	logger    *zap.Logger
}

func (d *device) sendJSON(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return d.conn.WriteMessage(websocket.TextMessage, data)
}

func (d *device) readLoop(done chan struct{}) {
	defer close(done)

	for {
		messageType, message, err := d.conn.ReadMessage()
		if err != nil {
			d.logger.Info("Connection closed", zap.Error(err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(message, &msg); err != nil {
			d.logger.Warn("Failed to parse message", zap.Error(err))
			continue
		}

		switch msg["type"] {
		case "capture_start":
			frameSize := 4096
			if v, ok := msg["frame_size"].(float64); ok && v > 0 {
				frameSize = int(v)
			}
			if err := d.sendJSON(map[string]string{"type": "capture_ready"}); err != nil {
				d.logger.Error("Failed to confirm capture", zap.Error(err))
				return
			}
			go d.streamMicrophone(frameSize)
		case "play":
			d.savePlay(msg)
		case "messages":
			d.logger.Info("Conversation updated",
				zap.Any("mode", msg["mode"]),
				zap.Any("prompt", msg["prompt"]),
				zap.Any("messages", msg["messages"]))
		default:
			d.logger.Info("Received message", zap.ByteString("message", message))
		}
	}
}

// streamMicrophone sends the audio file as float32 frames at real-time pace
func (d *device) streamMicrophone(frameSize int) {
	data, err := os.ReadFile(d.audioPath)
	if err != nil {
		d.logger.Error("Failed to read audio file", zap.String("path", d.audioPath), zap.Error(err))
		return
	}
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	channels, err := audio.PCM16ToFloat(data, 1)
	if err != nil {
		d.logger.Error("Failed to decode audio file", zap.Error(err))
		return
	}
	samples := channels[0]

	frameDuration := time.Duration(frameSize) * time.Second / audio.CaptureSampleRate
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for start := 0; start < len(samples); start += frameSize {
		end := start + frameSize
		if end > len(samples) {
			end = len(samples)
		}
		if err := d.conn.WriteMessage(websocket.BinaryMessage, audio.EncodeFloat32Frame(samples[start:end])); err != nil {
			d.logger.Error("Failed to send frame", zap.Error(err))
			return
		}
		<-ticker.C
	}
	d.logger.Info("Finished streaming audio", zap.Int("samples", len(samples)))
}

func (d *device) savePlay(msg map[string]interface{}) {
	clipID, _ := msg["clip_id"].(string)
	encoded, _ := msg["audio"].(string)
	pcm, err := audio.Decode(encoded)
	if err != nil {
		d.logger.Warn("Failed to decode clip", zap.Error(err))
		return
	}

	if err := os.MkdirAll(d.outDir, 0755); err != nil {
		d.logger.Error("Failed to create output directory", zap.Error(err))
		return
	}
	path := filepath.Join(d.outDir, clipID+".pcm")
	if err := os.WriteFile(path, pcm, 0644); err != nil {
		d.logger.Error("Failed to write clip", zap.Error(err))
		return
	}
	d.logger.Info("Saved clip",
		zap.String("path", path),
		zap.Any("startMs", msg["start_ms"]),
		zap.Any("sampleRate", msg["sample_rate"]))
}
