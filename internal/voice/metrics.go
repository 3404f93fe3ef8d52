package voice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// sessionsStarted counts voice session start attempts by result
	sessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peacepal_voice_sessions_started_total",
		Help: "Voice session start attempts by result",
	}, []string{"result"})

	// sessionsActive tracks sessions that are connecting or active
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peacepal_voice_sessions_active",
		Help: "Voice sessions currently connecting or active",
	})

	// teardowns counts session teardowns by cause
	teardowns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peacepal_voice_teardowns_total",
		Help: "Voice session teardowns by cause",
	}, []string{"cause"})

	// framesSent counts microphone frames handed to the transport
	framesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peacepal_voice_frames_sent_total",
		Help: "Microphone frames sent to the live transport",
	})

	// framesDropped counts microphone frames lost to a full queue or a failed send
	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peacepal_voice_frames_dropped_total",
		Help: "Microphone frames dropped by reason",
	}, []string{"reason"})

	// clipsScheduled counts clips placed on a playback output
	clipsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peacepal_voice_clips_scheduled_total",
		Help: "Audio clips scheduled for playback",
	})

	// interruptions counts barge-in signals
	interruptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peacepal_voice_interruptions_total",
		Help: "Playback interruptions received from the live transport",
	})
)
