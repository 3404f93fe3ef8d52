package audio

import (
	"testing"
	"time"
)

func TestFloatToPCM16(t *testing.T) {
	tests := []struct {
		name   string
		sample float32
		want   int16
	}{
		{"silence", 0, 0},
		{"half positive", 0.5, 16384},
		{"half negative", -0.5, -16384},
		{"full negative", -1, -32768},
		{"full positive clamps", 1, 32767},
		{"overdriven clamps", 1.7, 32767},
		{"overdriven negative clamps", -3, -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm := FloatToPCM16([]float32{tt.sample})
			if len(pcm) != 2 {
				t.Fatalf("Expected 2 bytes, got %d", len(pcm))
			}
			got := int16(uint16(pcm[0]) | uint16(pcm[1])<<8)
			if got != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestPCM16ToFloat(t *testing.T) {
	pcm := FloatToPCM16([]float32{0.25, -0.25, 0.5, -0.5})

	mono, err := PCM16ToFloat(pcm, 1)
	if err != nil {
		t.Fatalf("PCM16ToFloat() error = %v", err)
	}
	if len(mono) != 1 || len(mono[0]) != 4 {
		t.Fatalf("Unexpected shape %d x %d", len(mono), len(mono[0]))
	}
	if mono[0][2] != 0.5 {
		t.Errorf("Expected 0.5, got %f", mono[0][2])
	}

	stereo, err := PCM16ToFloat(pcm, 2)
	if err != nil {
		t.Fatalf("PCM16ToFloat() error = %v", err)
	}
	if len(stereo) != 2 || len(stereo[0]) != 2 {
		t.Fatalf("Unexpected stereo shape")
	}
	if stereo[0][0] != 0.25 || stereo[1][0] != -0.25 {
		t.Errorf("Channels not de-interleaved: %v", stereo)
	}

	if _, err := PCM16ToFloat([]byte{1, 2, 3}, 1); err != ErrOddLength {
		t.Errorf("Expected ErrOddLength, got %v", err)
	}
}

func TestClipDuration(t *testing.T) {
	clip, err := NewClip(make([]byte, PlaybackSampleRate*2), PlaybackSampleRate)
	if err != nil {
		t.Fatalf("NewClip() error = %v", err)
	}
	if clip.Duration() != time.Second {
		t.Errorf("Expected 1s, got %v", clip.Duration())
	}

	half, _ := NewClip(make([]byte, PlaybackSampleRate), PlaybackSampleRate)
	if half.Duration() != 500*time.Millisecond {
		t.Errorf("Expected 500ms, got %v", half.Duration())
	}

	if _, err := NewClip(nil, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestEncodeDecode(t *testing.T) {
	data := []byte{0x00, 0xff, 0x10, 0x80}
	got, err := Decode(Encode(data))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Expected %v, got %v", data, got)
	}

	if _, err := Decode("not base64!"); err == nil {
		t.Error("Expected error for invalid payload")
	}
}

func TestFloat32Frame(t *testing.T) {
	samples := []float32{0, 0.5, -1}
	got, err := DecodeFloat32Frame(EncodeFloat32Frame(samples))
	if err != nil {
		t.Fatalf("DecodeFloat32Frame() error = %v", err)
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, samples[i], got[i])
		}
	}

	if _, err := DecodeFloat32Frame([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for truncated frame")
	}
}

func TestPCMMIMEType(t *testing.T) {
	if got := PCMMIMEType(CaptureSampleRate); got != "audio/pcm;rate=16000" {
		t.Errorf("Unexpected MIME type %s", got)
	}
}
