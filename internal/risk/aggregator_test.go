package risk

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/geogrid"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	deltas []models.CellDelta
}

func (s *recordingSink) Publish(d models.CellDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, d)
}

func (s *recordingSink) all() []models.CellDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CellDelta(nil), s.deltas...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestAggregator(t *testing.T, cfg Config) (*Aggregator, *recordingSink, *fakeClock) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	clock := &fakeClock{now: t0}
	sink := &recordingSink{}
	a := New(cfg, geogrid.Default(), logger, WithClock(clock.Now), WithEpoch("test-epoch"))
	a.SetSink(sink)
	return a, sink, clock
}

func newReport(id string, sev models.Severity, v models.Verification, version int64, lat, lon float64) *models.IncidentReport {
	return &models.IncidentReport{
		ID:           id,
		Category:     models.CategoryHarassment,
		Severity:     sev,
		Verification: v,
		Version:      version,
		Coordinate:   &models.Coordinate{Latitude: lat, Longitude: lon},
		CreatedAt:    t0,
	}
}

func TestOnReportChanged_AppliesPendingWithHalfWeight(t *testing.T) {
	a, sink, _ := newTestAggregator(t, DefaultConfig())

	delta, applied, err := a.OnReportChanged(newReport("r1", models.SeverityMedium, models.VerificationPending, 1, 55.75, 37.61))

	require.NoError(t, err)
	assert.True(t, applied)
	assert.InDelta(t, 1.0, delta.Score, 1e-12)
	assert.Equal(t, int64(1), delta.Version)
	assert.Equal(t, models.CellWarm, delta.State)
	assert.Equal(t, 1, delta.ReportCount)
	assert.Equal(t, "test-epoch", delta.Epoch)
	require.NotNil(t, delta.Report)
	assert.Equal(t, "r1", delta.Report.ReportID)
	assert.Len(t, sink.all(), 1)
}

func TestOnReportChanged_Idempotent(t *testing.T) {
	a, sink, _ := newTestAggregator(t, DefaultConfig())
	r := newReport("r1", models.SeverityHigh, models.VerificationVerified, 1, 55.75, 37.61)

	first, applied, err := a.OnReportChanged(r)
	require.NoError(t, err)
	require.True(t, applied)

	_, applied, err = a.OnReportChanged(r)
	require.NoError(t, err)
	assert.False(t, applied)

	cell, ok := a.Cell(first.CellID)
	require.True(t, ok)
	assert.Equal(t, first.Score, cell.Score)
	assert.Equal(t, int64(1), cell.Version)
	assert.Len(t, sink.all(), 1)
}

func TestOnReportChanged_OlderVersionIgnored(t *testing.T) {
	a, _, _ := newTestAggregator(t, DefaultConfig())

	_, applied, err := a.OnReportChanged(newReport("r1", models.SeverityMedium, models.VerificationVerified, 2, 1, 1))
	require.NoError(t, err)
	require.True(t, applied)

	delta, applied, err := a.OnReportChanged(newReport("r1", models.SeverityMedium, models.VerificationPending, 1, 1, 1))
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Zero(t, delta.Version)
}

func TestOnReportChanged_VerificationTransitions(t *testing.T) {
	a, sink, _ := newTestAggregator(t, DefaultConfig())

	_, _, err := a.OnReportChanged(newReport("r1", models.SeverityMedium, models.VerificationPending, 1, 10, 10))
	require.NoError(t, err)

	verified, applied, err := a.OnReportChanged(newReport("r1", models.SeverityMedium, models.VerificationVerified, 2, 10, 10))
	require.NoError(t, err)
	require.True(t, applied)
	assert.InDelta(t, 2.0, verified.Score, 1e-12)

	rejected, applied, err := a.OnReportChanged(newReport("r1", models.SeverityMedium, models.VerificationRejected, 3, 10, 10))
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, 0.0, rejected.Score)
	assert.Equal(t, 0, rejected.ReportCount)
	assert.Equal(t, models.CellCold, rejected.State)
	assert.Equal(t, int64(3), rejected.Version)

	versions := []int64{}
	for _, d := range sink.all() {
		versions = append(versions, d.Version)
	}
	assert.Equal(t, []int64{1, 2, 3}, versions)
}

func TestOnReportChanged_InvalidInput(t *testing.T) {
	a, _, _ := newTestAggregator(t, DefaultConfig())

	_, _, err := a.OnReportChanged(newReport("r1", models.SeverityLow, models.VerificationPending, 1, 91, 0))
	assert.True(t, apperr.IsInvalidInput(err))

	_, _, err = a.OnReportChanged(&models.IncidentReport{})
	assert.True(t, apperr.IsInvalidInput(err))
}

func TestOnReportChanged_WithoutCoordinateIsNoop(t *testing.T) {
	a, sink, _ := newTestAggregator(t, DefaultConfig())
	r := newReport("r1", models.SeverityLow, models.VerificationPending, 1, 0, 0)
	r.Coordinate = nil

	_, applied, err := a.OnReportChanged(r)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, sink.all())
}

func TestScore_DecaysMonotonicallyAndNeverReachesZero(t *testing.T) {
	halfLife := 24 * time.Hour
	contribs := []Contribution{{Weight: 4, At: t0}, {Weight: 1, At: t0.Add(-time.Hour)}}

	prev := Score(contribs, t0, halfLife)
	for i := 1; i <= 100; i++ {
		cur := Score(contribs, t0.Add(time.Duration(i)*halfLife), halfLife)
		assert.Less(t, cur, prev)
		assert.Greater(t, cur, 0.0)
		prev = cur
	}
}

func TestScore_HalfLife(t *testing.T) {
	halfLife := 24 * time.Hour
	contribs := []Contribution{{Weight: 8, At: t0}}

	assert.InDelta(t, 4.0, Score(contribs, t0.Add(halfLife), halfLife), 1e-9)
	// отчет "из будущего" не увеличивает вес
	assert.InDelta(t, 8.0, Score(contribs, t0.Add(-time.Hour), halfLife), 1e-12)
}

func TestSurface_DeterministicRegardlessOfArrivalOrder(t *testing.T) {
	reports := make([]*models.IncidentReport, 0, 20)
	for i := 0; i < 20; i++ {
		r := newReport(fmt.Sprintf("r%02d", i), models.SeverityLow, models.VerificationVerified, 1, 40, 40)
		r.CreatedAt = t0.Add(-time.Duration(i*37) * time.Minute)
		reports = append(reports, r)
	}

	forward, _, _ := newTestAggregator(t, DefaultConfig())
	backward, _, _ := newTestAggregator(t, DefaultConfig())
	for i := range reports {
		_, _, err := forward.OnReportChanged(reports[i])
		require.NoError(t, err)
		_, _, err = backward.OnReportChanged(reports[len(reports)-1-i])
		require.NoError(t, err)
	}

	id, err := geogrid.Default().CellOf(models.Coordinate{Latitude: 40, Longitude: 40})
	require.NoError(t, err)

	f := forward.Surface([]models.CellID{id})
	b := backward.Surface([]models.CellID{id})
	require.Contains(t, f, id)
	assert.Equal(t, f[id].Score, b[id].Score)
	assert.Equal(t, 20, f[id].ReportCount)
}

func TestSurface_OnlyKnownCells(t *testing.T) {
	a, _, _ := newTestAggregator(t, DefaultConfig())
	delta, _, err := a.OnReportChanged(newReport("r1", models.SeverityLow, models.VerificationPending, 1, 0, 0))
	require.NoError(t, err)

	unknown := models.CellID{Row: 1, Col: 1}
	surface := a.Surface([]models.CellID{delta.CellID, unknown})

	assert.Len(t, surface, 1)
	assert.Equal(t, delta.Version, surface[delta.CellID].Version)
}

func TestCellAt_UnknownCellIsCold(t *testing.T) {
	a, _, _ := newTestAggregator(t, DefaultConfig())

	cell, err := a.CellAt(models.Coordinate{Latitude: 1, Longitude: 2})
	require.NoError(t, err)
	assert.Equal(t, models.CellCold, cell.State)
	assert.Zero(t, cell.Score)
}

func TestTick_EmitsDecayAndColdTransition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HalfLife = time.Hour
	cfg.ColdFloor = 0.1
	a, sink, clock := newTestAggregator(t, cfg)

	first, _, err := a.OnReportChanged(newReport("r1", models.SeverityLow, models.VerificationVerified, 1, 5, 5))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	recomputed, skipped := a.Tick(context.Background())
	assert.Equal(t, 1, recomputed)
	assert.Zero(t, skipped)

	cell, _ := a.Cell(first.CellID)
	assert.InDelta(t, 0.5, cell.Score, 1e-9)
	assert.Equal(t, int64(2), cell.Version)
	assert.Equal(t, models.CellWarm, cell.State)

	// 2^-4 < 0.1
	clock.Advance(3 * time.Hour)
	a.Tick(context.Background())
	cell, _ = a.Cell(first.CellID)
	assert.Equal(t, models.CellCold, cell.State)
	assert.Greater(t, cell.Score, 0.0)

	// холодные ячейки тик не пересчитывает и не рассылает
	clock.Advance(time.Hour)
	recomputed, _ = a.Tick(context.Background())
	assert.Zero(t, recomputed)

	deltas := sink.all()
	require.Len(t, deltas, 3)
	assert.Equal(t, models.CellCold, deltas[2].State)
	assert.Nil(t, deltas[1].Report)
}

func TestTick_BelowThresholdDoesNotEmit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeltaThreshold = 0.5
	a, sink, clock := newTestAggregator(t, cfg)

	first, _, err := a.OnReportChanged(newReport("r1", models.SeverityLow, models.VerificationVerified, 1, 5, 5))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	a.Tick(context.Background())

	// дельта не ушла, но чтение видит затухший счет
	cell, _ := a.Cell(first.CellID)
	assert.Equal(t, first.Version, cell.Version)
	assert.InDelta(t, Score([]Contribution{{Weight: 1, At: t0}}, clock.Now(), cfg.HalfLife), cell.Score, 1e-12)
	assert.Less(t, cell.Score, first.Score)
	assert.Len(t, sink.all(), 1)
}

func TestTick_SkipsBusyCell(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HalfLife = time.Hour
	a, _, clock := newTestAggregator(t, cfg)

	first, _, err := a.OnReportChanged(newReport("r1", models.SeverityLow, models.VerificationVerified, 1, 5, 5))
	require.NoError(t, err)
	clock.Advance(time.Hour)

	c := a.cells[first.CellID]
	c.mu.Lock()
	recomputed, skipped := a.Tick(context.Background())
	c.mu.Unlock()

	assert.Zero(t, recomputed)
	assert.Equal(t, 1, skipped)
	cell, _ := a.Cell(first.CellID)
	assert.Equal(t, first.Version, cell.Version)

	recomputed, skipped = a.Tick(context.Background())
	assert.Equal(t, 1, recomputed)
	assert.Zero(t, skipped)
}

func TestCell_ScoreMatchesExactDecayBetweenTicks(t *testing.T) {
	cfg := DefaultConfig()
	a, _, clock := newTestAggregator(t, cfg)

	first, _, err := a.OnReportChanged(newReport("r1", models.SeverityHigh, models.VerificationVerified, 1, 5, 5))
	require.NoError(t, err)
	contribs := []Contribution{{Weight: 4, At: t0}}

	// каждая минута меняет счет меньше чем на DeltaThreshold
	for i := 0; i < 10; i++ {
		clock.Advance(time.Minute)
		a.Tick(context.Background())

		cell, ok := a.Cell(first.CellID)
		require.True(t, ok)
		assert.InDelta(t, Score(contribs, clock.Now(), cfg.HalfLife), cell.Score, 1e-12)
	}

	surface := a.Surface([]models.CellID{first.CellID})
	assert.InDelta(t, Score(contribs, clock.Now(), cfg.HalfLife), surface[first.CellID].Score, 1e-12)

	// холодная ячейка продолжает затухать
	for _, day := range []int{7, 30} {
		clock.Advance(t0.Add(time.Duration(day)*24*time.Hour).Sub(clock.Now()))
		a.Tick(context.Background())

		cell, _ := a.Cell(first.CellID)
		exact := Score(contribs, clock.Now(), cfg.HalfLife)
		assert.InDelta(t, exact, cell.Score, 1e-12, "day %d", day)
		assert.Greater(t, cell.Score, 0.0)
	}
	cell, _ := a.Cell(first.CellID)
	assert.Equal(t, models.CellCold, cell.State)
	assert.Less(t, cell.Score, 1e-8)
}

func TestTick_PrunesContributionsPastRetention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HalfLife = time.Hour
	cfg.Retention = 2 * time.Hour
	a, sink, clock := newTestAggregator(t, cfg)

	first, _, err := a.OnReportChanged(newReport("r1", models.SeverityCritical, models.VerificationVerified, 1, 5, 5))
	require.NoError(t, err)

	clock.Advance(90 * time.Minute)
	second := newReport("r2", models.SeverityCritical, models.VerificationVerified, 1, 5, 5)
	second.CreatedAt = clock.Now()
	_, _, err = a.OnReportChanged(second)
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	a.Tick(context.Background())

	c := a.cells[first.CellID]
	c.mu.Lock()
	assert.Len(t, c.entries, 1)
	assert.Contains(t, c.entries, "r2")
	c.mu.Unlock()

	cell, _ := a.Cell(first.CellID)
	assert.Equal(t, 1, cell.ReportCount)
	deltas := sink.all()
	assert.Equal(t, 1, deltas[len(deltas)-1].ReportCount)

	// повтор удаленного отчета не возвращает его вклад
	_, applied, err := a.OnReportChanged(newReport("r1", models.SeverityCritical, models.VerificationVerified, 1, 5, 5))
	require.NoError(t, err)
	assert.False(t, applied)
	cell, _ = a.Cell(first.CellID)
	assert.Equal(t, 1, cell.ReportCount)

	// ячейка без вкладов остается, версии не начинаются заново
	clock.Advance(3 * time.Hour)
	a.Tick(context.Background())
	cell, ok := a.Cell(first.CellID)
	require.True(t, ok)
	assert.Zero(t, cell.ReportCount)
	assert.GreaterOrEqual(t, cell.Version, deltas[len(deltas)-1].Version)
}

func TestTick_DeadlineLeavesCellsUntouched(t *testing.T) {
	a, _, clock := newTestAggregator(t, DefaultConfig())
	for i := 0; i < 3; i++ {
		_, _, err := a.OnReportChanged(newReport(fmt.Sprintf("r%d", i), models.SeverityLow, models.VerificationVerified, 1, float64(i), 0))
		require.NoError(t, err)
	}
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recomputed, skipped := a.Tick(ctx)

	assert.Zero(t, recomputed)
	assert.Equal(t, 3, skipped)
}

func TestOnReportChanged_ConcurrentSameCell(t *testing.T) {
	a, sink, _ := newTestAggregator(t, DefaultConfig())

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := a.OnReportChanged(newReport(fmt.Sprintf("r%d", i), models.SeverityLow, models.VerificationVerified, 1, 30, 30))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	deltas := sink.all()
	require.Len(t, deltas, n)
	for i, d := range deltas {
		assert.Equal(t, int64(i+1), d.Version)
	}
	assert.Equal(t, n, deltas[n-1].ReportCount)
}
