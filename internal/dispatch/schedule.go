package dispatch

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// schedule - фиксированная последовательность пауз между попытками
type schedule struct {
	delays []time.Duration
	next   int
}

func newSchedule(delays []time.Duration) *schedule {
	return &schedule{delays: delays}
}

func (s *schedule) NextBackOff() time.Duration {
	if s.next >= len(s.delays) {
		return backoff.Stop
	}
	d := s.delays[s.next]
	s.next++
	return d
}

func (s *schedule) Reset() {
	s.next = 0
}
