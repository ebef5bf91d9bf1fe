package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/models"
)

const watchBuffer = 256

// Memory - хранилище в памяти процесса для локального запуска и тестов
type Memory struct {
	mu       sync.RWMutex
	reports  map[string]*models.IncidentReport
	alerts   map[string]*models.SOSAlert
	contacts map[string][]models.TrustedContact
	watchers map[chan *models.IncidentReport]struct{}
	now      func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		reports:  make(map[string]*models.IncidentReport),
		alerts:   make(map[string]*models.SOSAlert),
		contacts: make(map[string][]models.TrustedContact),
		watchers: make(map[chan *models.IncidentReport]struct{}),
		now:      time.Now,
	}
}

// AppendReport сохраняет отчет; повторная запись того же id ничего не меняет
func (m *Memory) AppendReport(_ context.Context, report *models.IncidentReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[report.ID]; ok {
		return nil
	}
	stored := cloneReport(report)
	m.reports[report.ID] = stored
	m.notifyLocked(stored)
	return nil
}

func (m *Memory) GetReport(_ context.Context, id string) (*models.IncidentReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, apperr.NotFound("report %s not found", id)
	}
	return cloneReport(r), nil
}

func (m *Memory) QueryByCell(_ context.Context, cell models.CellID, since time.Time) ([]*models.IncidentReport, error) {
	return m.filter(func(r *models.IncidentReport) bool {
		return r.CellID != nil && *r.CellID == cell && !r.CreatedAt.Before(since)
	}), nil
}

func (m *Memory) QuerySince(_ context.Context, since time.Time) ([]*models.IncidentReport, error) {
	return m.filter(func(r *models.IncidentReport) bool {
		return !r.CreatedAt.Before(since)
	}), nil
}

func (m *Memory) SetVerification(_ context.Context, id string, v models.Verification) (*models.IncidentReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, apperr.NotFound("report %s not found", id)
	}
	if r.Verification == v {
		return cloneReport(r), nil
	}
	r.Verification = v
	r.Version++
	r.UpdatedAt = m.now()
	m.notifyLocked(r)
	return cloneReport(r), nil
}

// WatchReports сначала отдает отчеты с UpdatedAt >= since, затем каждое добавление или изменение до отмены ctx.
// Наблюдатель регистрируется до выборки, поэтому изменение на стыке может прийти дважды, но не потеряется.
func (m *Memory) WatchReports(ctx context.Context, since time.Time, fn func(*models.IncidentReport)) error {
	ch := make(chan *models.IncidentReport, watchBuffer)
	m.mu.Lock()
	m.watchers[ch] = struct{}{}
	var backlog []*models.IncidentReport
	for _, r := range m.reports {
		if !r.UpdatedAt.Before(since) {
			backlog = append(backlog, cloneReport(r))
		}
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.watchers, ch)
		m.mu.Unlock()
	}()

	sort.Slice(backlog, func(i, j int) bool {
		if backlog[i].UpdatedAt.Equal(backlog[j].UpdatedAt) {
			return backlog[i].ID < backlog[j].ID
		}
		return backlog[i].UpdatedAt.Before(backlog[j].UpdatedAt)
	})
	for _, r := range backlog {
		if ctx.Err() != nil {
			return nil
		}
		fn(r)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-ch:
			fn(r)
		}
	}
}

func (m *Memory) CreateAlert(_ context.Context, alert *models.SOSAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

func (m *Memory) GetAlert(_ context.Context, id string) (*models.SOSAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, apperr.NotFound("alert %s not found", id)
	}
	return cloneAlert(a), nil
}

func (m *Memory) UpdateDelivery(_ context.Context, alertID string, index int, rec models.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertID]
	if !ok {
		return apperr.NotFound("alert %s not found", alertID)
	}
	if index < 0 || index >= len(a.Deliveries) {
		return apperr.InvalidInput("delivery index %d out of range", index)
	}
	a.Deliveries[index] = rec
	return nil
}

func (m *Memory) FinalizeAlert(_ context.Context, alert *models.SOSAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[alert.ID]; !ok {
		return apperr.NotFound("alert %s not found", alert.ID)
	}
	m.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

func (m *Memory) ListOpenAlerts(context.Context) ([]*models.SOSAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.SOSAlert
	for _, a := range m.alerts {
		if a.FinalizedAt == nil {
			out = append(out, cloneAlert(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListTrustedContacts(_ context.Context, ownerID string) ([]models.TrustedContact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.TrustedContact(nil), m.contacts[ownerID]...), nil
}

func (m *Memory) ReplaceTrustedContacts(_ context.Context, ownerID string, contacts []models.TrustedContact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[ownerID] = append([]models.TrustedContact(nil), contacts...)
	return nil
}

func (m *Memory) filter(keep func(*models.IncidentReport) bool) []*models.IncidentReport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.IncidentReport
	for _, r := range m.reports {
		if keep(r) {
			out = append(out, cloneReport(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// notifyLocked не блокирует запись: переполненный наблюдатель пропускает событие,
// агрегатор догоняет его при следующем изменении отчета
func (m *Memory) notifyLocked(r *models.IncidentReport) {
	for ch := range m.watchers {
		select {
		case ch <- cloneReport(r):
		default:
		}
	}
}
