package voice

import (
	"fmt"
	"sync"
	"time"

	"github.com/satriahrh/peacepal/server/internal/audio"
)

// Scheduler queues clips back to back on an Output. The cursor and the active set share one
// mutex so an interruption can never miss a clip that is being scheduled.
type Scheduler struct {
	mu        sync.Mutex
	output    Output
	nextStart time.Duration
	active    map[uint64]Source
	seq       uint64
}

// NewScheduler creates a scheduler for output
func NewScheduler(output Output) *Scheduler {
	return &Scheduler{
		output: output,
		active: make(map[uint64]Source),
	}
}

// Schedule starts clip at max(now, nextStart) and advances the cursor by its duration.
// It returns the start time.
func (s *Scheduler) Schedule(clip audio.Clip) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.output.CurrentTime()
	if s.nextStart > start {
		start = s.nextStart
	}

	s.seq++
	id := s.seq
	src, err := s.output.Start(clip, start, func() { s.finished(id) })
	if err != nil {
		return 0, fmt.Errorf("failed to start clip: %w", err)
	}

	s.active[id] = src
	s.nextStart = start + clip.Duration()
	clipsScheduled.Inc()
	return start, nil
}

// Interrupt stops every active clip and resets the cursor to zero
func (s *Scheduler) Interrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopped := len(s.active)
	for id, src := range s.active {
		src.Stop()
		delete(s.active, id)
	}
	s.nextStart = 0
	return stopped
}

// Active returns the number of clips still playing or queued
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the playback cursor
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

func (s *Scheduler) finished(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}
