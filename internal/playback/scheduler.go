package playback

import (
	"sync"
	"time"

	"github.com/careerpal/interview-gateway/internal/audio"
)

// Clock provides a monotonic playback clock. Start times handed to the
// Output are offsets on this clock.
type Clock interface {
	Now() time.Duration
}

// Handle represents a single scheduled buffer that can be force-stopped.
type Handle interface {
	Stop()
}

// Output is the audio sink the scheduler plays into. Start schedules buf to
// begin playing at the given clock offset and must invoke done exactly once
// when playback finishes naturally (not when stopped via the Handle).
// done must be invoked from the output's playback goroutine, never
// synchronously from inside Start.
type Output interface {
	Start(buf *audio.Buffer, at time.Duration, done func()) (Handle, error)
}

// Scheduler serializes decoded remote-audio buffers onto a single output
// without gaps or overlaps, independent of when each buffer arrives from
// the network. Buffers play in enqueue order: each start time is the greater
// of the current clock time and the previous buffer's scheduled end time.
type Scheduler struct {
	clock  Clock
	output Output

	mu        sync.Mutex
	nextStart time.Duration
	active    map[Handle]struct{}
}

// NewScheduler creates a scheduler over the given clock and output. A nil
// clock defaults to a WallClock starting at zero now.
func NewScheduler(clock Clock, output Output) *Scheduler {
	if clock == nil {
		clock = NewWallClock()
	}
	return &Scheduler{
		clock:  clock,
		output: output,
		active: make(map[Handle]struct{}),
	}
}

// Enqueue schedules buf for gapless playback after everything already
// enqueued. Returns the computed start time.
func (s *Scheduler) Enqueue(buf *audio.Buffer) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock.Now()
	if s.nextStart > start {
		start = s.nextStart
	}

	var handle Handle
	handle, err := s.output.Start(buf, start, func() {
		s.mu.Lock()
		delete(s.active, handle)
		s.mu.Unlock()
	})
	if err != nil {
		return 0, err
	}

	s.active[handle] = struct{}{}
	s.nextStart = start + buf.Duration()
	return start, nil
}

// StopAll forcibly stops every scheduled buffer and clears the active set.
// Used on session teardown or error; idempotent.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	handles := make([]Handle, 0, len(s.active))
	for h := range s.active {
		handles = append(handles, h)
	}
	s.active = make(map[Handle]struct{})
	s.mu.Unlock()

	// Stop outside the lock: Handle.Stop may call back into the output,
	// which may race with a natural-completion callback taking the lock.
	for _, h := range handles {
		h.Stop()
	}
}

// Pending returns the number of buffers scheduled but not yet finished.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the clock offset at which the next enqueued buffer
// would begin playing.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// WallClock is a Clock backed by the process monotonic clock.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a clock whose zero offset is now.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// Now returns the elapsed time since the clock was created.
func (c *WallClock) Now() time.Duration {
	return time.Since(c.start)
}
