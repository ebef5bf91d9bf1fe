package dispatch

import (
	"sync"
	"time"

	"github.com/shenikar/safesteps/internal/models"
)

// tracker хранит состояние доставок одной тревоги
type tracker struct {
	mu        sync.Mutex
	alert     models.SOSAlert
	finalized bool

	// упорядочивает записи в хранилище: поздний результат не может быть перезаписан финализацией
	persistMu sync.Mutex
}

func newTracker(alert *models.SOSAlert) *tracker {
	return &tracker{alert: copyAlert(alert)}
}

// pending возвращает индексы контактов, по которым еще нет результата
func (t *tracker) pending() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var idx []int
	for i, d := range t.alert.Deliveries {
		if !d.Status.Terminal() {
			idx = append(idx, i)
		}
	}
	return idx
}

func (t *tracker) contact(i int) models.DeliveryRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alert.Deliveries[i]
}

// complete фиксирует результат доставки. После финализации возвращенный вызывающему
// результат не меняется, а запись помечается как поздняя.
func (t *tracker) complete(i int, status models.DeliveryStatus, attempts int, errMsg string, at time.Time) (models.DeliveryRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.alert.Deliveries[i]
	rec.Status = status
	rec.Attempts = attempts
	rec.Error = errMsg
	rec.UpdatedAt = at

	if t.finalized {
		rec.Late = true
		return rec, true
	}
	t.alert.Deliveries[i] = rec
	return rec, false
}

// finalize переводит незавершенные доставки в failed и возвращает итоговую копию тревоги
func (t *tracker) finalize(at time.Time, reason string) *models.SOSAlert {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.finalized {
		for i := range t.alert.Deliveries {
			d := &t.alert.Deliveries[i]
			if !d.Status.Terminal() {
				d.Status = models.DeliveryFailed
				d.Error = reason
				d.UpdatedAt = at
			}
		}
		t.alert.FinalizedAt = &at
		t.finalized = true
	}
	out := copyAlert(&t.alert)
	return &out
}

func copyAlert(a *models.SOSAlert) models.SOSAlert {
	out := *a
	out.Deliveries = append([]models.DeliveryRecord(nil), a.Deliveries...)
	if a.Coordinate != nil {
		c := *a.Coordinate
		out.Coordinate = &c
	}
	if a.FinalizedAt != nil {
		f := *a.FinalizedAt
		out.FinalizedAt = &f
	}
	return out
}
