// Package fanout рассылает дельты ячеек подписчикам регионов с догоном после переподключения.
package fanout

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/metrics"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultLogSize = 64
	DefaultBuffer  = 256
	DefaultLogTTL  = time.Hour
)

var ErrSubscriptionClosed = errors.New("subscription closed")

// SurfaceReader отдает текущее состояние ячеек и эпоху их версий
type SurfaceReader interface {
	Surface(ids []models.CellID) map[models.CellID]models.RiskCell
	Epoch() string
}

type Config struct {
	LogSize int           // сколько последних дельт на ячейку хранится для догона
	Buffer  int           // емкость очереди подписчика; переполнение отключает подписчика
	LogTTL  time.Duration // журнал ячейки без подписчиков удаляется, если последняя дельта старше
}

type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventDelta    EventType = "delta"
)

// Event - сообщение подписчику
type Event struct {
	Type EventType `json:"type"`
	models.CellDelta
}

// SubscribeRequest - набор ячеек и версии, которые клиент уже видел
type SubscribeRequest struct {
	Cells    []models.CellID
	Epoch    string
	LastSeen map[models.CellID]int64
}

type Hub struct {
	cfg     Config
	surface SurfaceReader
	logger  *logrus.Logger
	metrics *metrics.Metrics
	seq     atomic.Uint64

	mu     sync.RWMutex
	subs   map[string]*Subscription
	byCell map[models.CellID]map[string]*Subscription
	logs   map[models.CellID]*ring
}

func NewHub(cfg Config, surface SurfaceReader, logger *logrus.Logger, m *metrics.Metrics) *Hub {
	if cfg.LogSize <= 0 {
		cfg.LogSize = DefaultLogSize
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.LogTTL <= 0 {
		cfg.LogTTL = DefaultLogTTL
	}
	return &Hub{
		cfg:     cfg,
		surface: surface,
		logger:  logger,
		metrics: m,
		subs:    make(map[string]*Subscription),
		byCell:  make(map[models.CellID]map[string]*Subscription),
		logs:    make(map[models.CellID]*ring),
	}
}

// Publish записывает дельту в журнал ячейки и раздает ее подписчикам без блокировки.
// Для одной ячейки вызывается последовательно, поэтому порядок версий сохраняется.
func (h *Hub) Publish(delta models.CellDelta) {
	h.mu.Lock()
	log, ok := h.logs[delta.CellID]
	if !ok {
		log = newRing(h.cfg.LogSize)
		h.logs[delta.CellID] = log
	}
	log.push(delta)

	targets := make([]*Subscription, 0, len(h.byCell[delta.CellID]))
	for _, s := range h.byCell[delta.CellID] {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.offer(delta)
	}
}

// Subscribe регистрирует подписчика и возвращает начальные события: догон из журнала,
// если клиент пришел с версиями той же эпохи и журнал их покрывает, иначе снимок ячейки.
// Начальные события нужно отправить клиенту до чтения Events().
func (h *Hub) Subscribe(req SubscribeRequest) (*Subscription, []Event, error) {
	cells := dedupCells(req.Cells)
	if len(cells) == 0 {
		return nil, nil, apperr.InvalidInput("subscription region is empty")
	}

	sub := &Subscription{
		ID:    "sub-" + strconv.FormatUint(h.seq.Add(1), 10),
		cells: cells,
		ch:    make(chan Event, h.cfg.Buffer),
		last:  make(map[models.CellID]int64, len(cells)),
		hub:   h,
		limit: h.cfg.Buffer,
	}

	// регистрируем до чтения состояния: все более поздние дельты попадут в pending
	h.mu.Lock()
	h.subs[sub.ID] = sub
	history := make(map[models.CellID][]models.CellDelta, len(cells))
	for _, id := range cells {
		set, ok := h.byCell[id]
		if !ok {
			set = make(map[string]*Subscription)
			h.byCell[id] = set
		}
		set[sub.ID] = sub
		if log, ok := h.logs[id]; ok {
			history[id] = log.items()
		}
	}
	h.mu.Unlock()
	h.metrics.SubscriberAdded()

	epoch := h.surface.Epoch()
	current := h.surface.Surface(cells)
	sameEpoch := req.Epoch != "" && req.Epoch == epoch

	var initial []Event
	replayed, snapshots := 0, 0
	for _, id := range cells {
		seen, hasSeen := req.LastSeen[id]
		if sameEpoch && hasSeen {
			if events, last, ok := replay(history[id], current[id], seen); ok {
				initial = append(initial, events...)
				sub.last[id] = last
				replayed += len(events)
				continue
			}
		}

		cell, known := current[id]
		if !known && !hasSeen {
			continue
		}
		if !known {
			cell = models.RiskCell{CellID: id, State: models.CellCold}
		}
		initial = append(initial, snapshotEvent(epoch, cell))
		sub.last[id] = cell.Version
		snapshots++
	}

	sub.activate()

	h.logger.WithFields(logrus.Fields{
		"component":    "fanout",
		"subscription": sub.ID,
		"cells":        len(cells),
		"replayed":     replayed,
		"snapshots":    snapshots,
	}).Debug("Subscriber registered")

	return sub, initial, nil
}

// Unsubscribe снимает подписку и закрывает ее канал; повторный вызов безопасен
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		for _, cell := range sub.cells {
			if set, ok := h.byCell[cell]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(h.byCell, cell)
				}
			}
		}
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	dropped := sub.close()
	h.metrics.SubscriberRemoved(dropped)
	if dropped {
		h.logger.WithFields(logrus.Fields{
			"component":    "fanout",
			"subscription": id,
		}).Warn("Slow subscriber disconnected")
	}
}

// Prune удаляет журналы ячеек без подписчиков, последняя дельта которых старше before.
// Клиент, вернувшийся к такой ячейке, получит снимок вместо догона.
func (h *Hub) Prune(before time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for id, log := range h.logs {
		if len(h.byCell[id]) > 0 {
			continue
		}
		if last, ok := log.last(); ok && !last.UpdatedAt.Before(before) {
			continue
		}
		delete(h.logs, id)
		removed++
	}
	return removed
}

// Run периодически чистит журналы дельт до отмены ctx
func (h *Hub) Run(ctx context.Context) {
	log := h.logger.WithField("component", "fanout")
	ticker := time.NewTicker(h.cfg.LogTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := h.Prune(now.Add(-h.cfg.LogTTL)); removed > 0 {
				log.WithField("removed", removed).Debug("Idle delta logs pruned")
			}
		}
	}
}

// Subscribers - число активных подписок
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// replay отбирает из журнала дельты новее seen. Догон невозможен, если журнал
// начинается позже seen+1 или клиент видел версию новее текущей.
func replay(history []models.CellDelta, cur models.RiskCell, seen int64) ([]Event, int64, bool) {
	latest := cur.Version
	if n := len(history); n > 0 && history[n-1].Version > latest {
		latest = history[n-1].Version
	}
	if seen > latest || seen < 0 {
		return nil, 0, false
	}
	if seen == latest {
		return nil, seen, true
	}
	if len(history) == 0 || history[0].Version > seen+1 {
		return nil, 0, false
	}

	last := seen
	var events []Event
	for _, d := range history {
		if d.Version <= seen {
			continue
		}
		events = append(events, Event{Type: EventDelta, CellDelta: d})
		last = d.Version
	}
	return events, last, true
}

func snapshotEvent(epoch string, cell models.RiskCell) Event {
	return Event{
		Type: EventSnapshot,
		CellDelta: models.CellDelta{
			Epoch:       epoch,
			CellID:      cell.CellID,
			Score:       cell.Score,
			Version:     cell.Version,
			State:       cell.State,
			ReportCount: cell.ReportCount,
			UpdatedAt:   cell.UpdatedAt,
		},
	}
}

func dedupCells(cells []models.CellID) []models.CellID {
	seen := make(map[models.CellID]struct{}, len(cells))
	out := make([]models.CellID, 0, len(cells))
	for _, c := range cells {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
