package fanout

import (
	"sync"

	"github.com/shenikar/safesteps/internal/models"
)

// Subscription - подписка на набор ячеек. Канал Events закрывается при отписке
// или при переполнении очереди.
type Subscription struct {
	ID string

	cells []models.CellID
	ch    chan Event
	hub   *Hub
	limit int

	mu      sync.Mutex
	ready   bool
	pending []models.CellDelta
	last    map[models.CellID]int64
	closed  bool
	dropped bool
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Cells() []models.CellID {
	return s.cells
}

// Dropped сообщает, что подписка закрыта из-за медленного потребителя
func (s *Subscription) Dropped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) Close() {
	s.hub.Unsubscribe(s.ID)
}

func (s *Subscription) offer(d models.CellDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if !s.ready {
		if len(s.pending) >= s.limit {
			s.dropLocked()
			return
		}
		s.pending = append(s.pending, d)
		return
	}
	s.sendLocked(d)
}

// activate отправляет дельты, пришедшие во время построения начальных событий
func (s *Subscription) activate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ready = true
	for _, d := range s.pending {
		if s.closed {
			break
		}
		s.sendLocked(d)
	}
	s.pending = nil
}

func (s *Subscription) sendLocked(d models.CellDelta) {
	if d.Version <= s.last[d.CellID] {
		return
	}
	select {
	case s.ch <- Event{Type: EventDelta, CellDelta: d}:
		s.last[d.CellID] = d.Version
	default:
		s.dropLocked()
	}
}

func (s *Subscription) dropLocked() {
	s.dropped = true
	s.closed = true
	close(s.ch)
	// снятие с учета хаба идет вне блокировок издателя
	go s.hub.Unsubscribe(s.ID)
}

// close закрывает канал, если он еще открыт, и сообщает, был ли подписчик отключен за медлительность
func (s *Subscription) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return s.dropped
}
