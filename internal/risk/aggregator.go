// Package risk поддерживает затухающий счет риска по ячейкам сетки и рассылает изменения.
package risk

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/geogrid"
	"github.com/shenikar/safesteps/internal/metrics"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/sirupsen/logrus"
)

// Config - параметры агрегатора
type Config struct {
	HalfLife       time.Duration
	ColdFloor      float64 // ниже этого счета ячейка переходит в состояние cold
	TickInterval   time.Duration
	DeltaThreshold float64       // относительное изменение счета, после которого тик рассылает дельту
	Retention      time.Duration // вклады старше удаляются из ячейки; 0 - 32 периода полураспада
}

// retentionHalfLives - через столько периодов полураспада вклад меньше 1e-9 от исходного веса
const retentionHalfLives = 32

func DefaultConfig() Config {
	return Config{
		HalfLife:       24 * time.Hour,
		ColdFloor:      0.05,
		TickInterval:   time.Minute,
		DeltaThreshold: 0.01,
	}
}

// Sink получает дельты ячеек. Publish вызывается под блокировкой ячейки и не должен блокироваться.
type Sink interface {
	Publish(delta models.CellDelta)
}

type entry struct {
	version int64
	weight  float64
	at      time.Time
}

// cell хранит вклады отчетов и последнее разосланное состояние. Счет для чтения
// считается на момент запроса, score и state относятся к дельте с номером version.
type cell struct {
	mu      sync.Mutex
	id      models.CellID
	entries map[string]entry // индекс дедупликации: reportID -> последняя примененная версия
	score   float64
	count   int
	version int64
	state   models.CellState
	updated time.Time
}

type Aggregator struct {
	cfg     Config
	grid    *geogrid.Grid
	sink    Sink
	epoch   string
	now     func() time.Time
	logger  *logrus.Logger
	metrics *metrics.Metrics

	mu    sync.RWMutex
	cells map[models.CellID]*cell
}

type Option func(*Aggregator)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithEpoch задает эпоху версий; по умолчанию генерируется при старте процесса
func WithEpoch(epoch string) Option {
	return func(a *Aggregator) { a.epoch = epoch }
}

func New(cfg Config, grid *geogrid.Grid, logger *logrus.Logger, opts ...Option) *Aggregator {
	def := DefaultConfig()
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = def.HalfLife
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.ColdFloor < 0 {
		cfg.ColdFloor = 0
	}
	if cfg.DeltaThreshold < 0 {
		cfg.DeltaThreshold = 0
	}
	if cfg.Retention <= 0 {
		cfg.Retention = retentionHalfLives * cfg.HalfLife
	}
	a := &Aggregator{
		cfg:    cfg,
		grid:   grid,
		sink:   nopSink{},
		epoch:  uuid.NewString(),
		now:    time.Now,
		logger: logger,
		cells:  make(map[models.CellID]*cell),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetSink подключает получателя дельт. Вызывать до начала приема отчетов.
func (a *Aggregator) SetSink(sink Sink) {
	if sink == nil {
		sink = nopSink{}
	}
	a.sink = sink
}

// Epoch - эпоха версий текущего процесса
func (a *Aggregator) Epoch() string {
	return a.epoch
}

// OnReportChanged пересчитывает ячейку отчета и рассылает дельту с новой версией ячейки.
// Повтор той же или более старой версии отчета ничего не меняет и возвращает false.
func (a *Aggregator) OnReportChanged(report *models.IncidentReport) (models.CellDelta, bool, error) {
	if report == nil || report.ID == "" {
		return models.CellDelta{}, false, apperr.InvalidInput("report id is required")
	}
	if report.Coordinate == nil {
		return models.CellDelta{}, false, nil
	}
	id, err := a.grid.CellOf(*report.Coordinate)
	if err != nil {
		return models.CellDelta{}, false, err
	}
	version := report.Version
	if version < 1 {
		version = 1
	}
	now := a.now()
	if report.CreatedAt.Before(now.Add(-a.cfg.Retention)) {
		// вклад пренебрежимо мал, а запись о нем уже могла быть удалена тиком
		return models.CellDelta{}, false, nil
	}

	c := a.cellFor(id)
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries[report.ID]; ok && prev.version >= version {
		a.logger.WithFields(logrus.Fields{
			"component": "risk",
			"report_id": report.ID,
			"version":   version,
			"applied":   prev.version,
		}).Debug("Duplicate report change ignored")
		return models.CellDelta{}, false, nil
	}

	c.entries[report.ID] = entry{
		version: version,
		weight:  report.Severity.Weight() * report.Verification.Factor(),
		at:      report.CreatedAt,
	}
	c.score, c.count = c.compute(now, a.cfg.HalfLife)
	c.state = a.stateFor(c.score)
	c.updated = now
	c.version++

	delta := c.delta(a.epoch)
	delta.Report = report.Notice()
	a.sink.Publish(delta)
	a.metrics.IncDelta("report")
	return delta, true, nil
}

// Tick удаляет вклады старше Retention и рассылает затухание теплых ячеек: дельта уходит
// при смене состояния или когда счет отошел от разосланного больше чем на DeltaThreshold.
// Чтение считает счет на текущий момент, поэтому пропущенная ячейка отстает только в рассылке.
func (a *Aggregator) Tick(ctx context.Context) (recomputed, skipped int) {
	cells := a.snapshotCells()
	now := a.now()
	cutoff := now.Add(-a.cfg.Retention)

	for i, c := range cells {
		if ctx.Err() != nil {
			skipped += len(cells) - i
			break
		}
		if !c.mu.TryLock() {
			skipped++
			continue
		}
		c.prune(cutoff)
		if c.state != models.CellWarm {
			// холодная ячейка не рассылается: теплой ее делает только новый отчет
			c.mu.Unlock()
			continue
		}

		score, count := c.compute(now, a.cfg.HalfLife)
		state := a.stateFor(score)
		recomputed++
		if state != c.state || count != c.count || changed(c.score, score, a.cfg.DeltaThreshold) {
			c.score, c.count, c.state, c.updated = score, count, state, now
			c.version++
			a.sink.Publish(c.delta(a.epoch))
			a.metrics.IncDelta("decay")
		}
		c.mu.Unlock()
	}
	return recomputed, skipped
}

// Run запускает периодический тик затухания до отмены ctx
func (a *Aggregator) Run(ctx context.Context) {
	log := a.logger.WithField("component", "risk")
	log.WithField("interval", a.cfg.TickInterval).Info("Starting risk decay ticker")

	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping risk decay ticker")
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, a.cfg.TickInterval)
			recomputed, skipped := a.Tick(tickCtx)
			cancel()
			a.metrics.IncTickSkipped(skipped)
			if skipped > 0 {
				log.WithFields(logrus.Fields{
					"recomputed": recomputed,
					"skipped":    skipped,
				}).Warn("Decay tick left cells at their last value")
			}
		}
	}
}

// Surface возвращает текущее состояние запрошенных ячеек; ячейки без отчетов не включаются
func (a *Aggregator) Surface(ids []models.CellID) map[models.CellID]models.RiskCell {
	out := make(map[models.CellID]models.RiskCell)
	for _, id := range ids {
		if rc, ok := a.Cell(id); ok {
			out[id] = rc
		}
	}
	return out
}

// Cell возвращает состояние одной ячейки: счет и состояние на текущий момент,
// версию и время последней разосланной дельты
func (a *Aggregator) Cell(id models.CellID) (models.RiskCell, bool) {
	a.mu.RLock()
	c, ok := a.cells[id]
	a.mu.RUnlock()
	if !ok {
		return models.RiskCell{}, false
	}
	now := a.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	rc := c.riskCell()
	rc.Score, rc.ReportCount = c.compute(now, a.cfg.HalfLife)
	rc.State = a.stateFor(rc.Score)
	return rc, true
}

// CellAt возвращает риск ячейки, содержащей координату; неизвестная ячейка холодная с нулевым счетом
func (a *Aggregator) CellAt(coord models.Coordinate) (models.RiskCell, error) {
	id, err := a.grid.CellOf(coord)
	if err != nil {
		return models.RiskCell{}, err
	}
	if rc, ok := a.Cell(id); ok {
		return rc, nil
	}
	return models.RiskCell{CellID: id, State: models.CellCold}, nil
}

func (a *Aggregator) cellFor(id models.CellID) *cell {
	a.mu.RLock()
	c, ok := a.cells[id]
	a.mu.RUnlock()
	if ok {
		return c
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.cells[id]; ok {
		return c
	}
	c = &cell{id: id, entries: make(map[string]entry), state: models.CellCold}
	a.cells[id] = c
	return c
}

func (a *Aggregator) snapshotCells() []*cell {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cells := make([]*cell, 0, len(a.cells))
	for _, c := range a.cells {
		cells = append(cells, c)
	}
	return cells
}

func (a *Aggregator) stateFor(score float64) models.CellState {
	if score > 0 && score >= a.cfg.ColdFloor {
		return models.CellWarm
	}
	return models.CellCold
}

// compute суммирует вклады в порядке reportID, чтобы результат не зависел от порядка поступления
func (c *cell) compute(now time.Time, halfLife time.Duration) (float64, int) {
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	contribs := make([]Contribution, 0, len(ids))
	count := 0
	for _, id := range ids {
		e := c.entries[id]
		if e.weight > 0 {
			count++
		}
		contribs = append(contribs, Contribution{Weight: e.weight, At: e.at})
	}
	return Score(contribs, now, halfLife), count
}

// prune удаляет вклады, созданные раньше cutoff
func (c *cell) prune(cutoff time.Time) {
	for id, e := range c.entries {
		if e.at.Before(cutoff) {
			delete(c.entries, id)
		}
	}
}

func (c *cell) riskCell() models.RiskCell {
	return models.RiskCell{
		CellID:      c.id,
		Score:       c.score,
		ReportCount: c.count,
		Version:     c.version,
		State:       c.state,
		UpdatedAt:   c.updated,
	}
}

func (c *cell) delta(epoch string) models.CellDelta {
	return models.CellDelta{
		Epoch:       epoch,
		CellID:      c.id,
		Score:       c.score,
		Version:     c.version,
		State:       c.state,
		ReportCount: c.count,
		UpdatedAt:   c.updated,
	}
}

func changed(prev, next, threshold float64) bool {
	if prev == next {
		return false
	}
	if prev == 0 {
		return true
	}
	return math.Abs(next-prev)/prev >= threshold
}

type nopSink struct{}

func (nopSink) Publish(models.CellDelta) {}
