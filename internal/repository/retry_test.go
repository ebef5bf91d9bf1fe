package repository

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore отказывает заданное число раз перед обращением к памяти
type flakyStore struct {
	*Memory
	failures int
	err      error
	calls    int
}

func (f *flakyStore) GetReport(ctx context.Context, id string) (*models.IncidentReport, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.Memory.GetReport(ctx, id)
}

func newTestRetrying(next Store) *Retrying {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return NewRetrying(next, RetryConfig{Attempts: 3, BaseDelay: time.Millisecond}, logger, nil)
}

func TestRetrying_RecoversFromTransientFailures(t *testing.T) {
	mem := NewMemory()
	require.NoError(t, mem.AppendReport(context.Background(), testReport("r1", models.CellID{}, base)))
	flaky := &flakyStore{Memory: mem, failures: 2, err: apperr.Transient("reports.get", errors.New("connection reset"))}

	r, err := newTestRetrying(flaky).GetReport(context.Background(), "r1")

	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetrying_ExhaustedReturnsStoreUnavailable(t *testing.T) {
	flaky := &flakyStore{Memory: NewMemory(), failures: 10, err: apperr.Transient("reports.get", errors.New("timeout"))}

	_, err := newTestRetrying(flaky).GetReport(context.Background(), "r1")

	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "timeout")
	assert.Equal(t, 3, flaky.calls)
}

func TestRetrying_PermanentErrorsPassThrough(t *testing.T) {
	flaky := &flakyStore{Memory: NewMemory()}

	_, err := newTestRetrying(flaky).GetReport(context.Background(), "missing")

	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, 1, flaky.calls)
}

func TestRetrying_StopsOnContextCancel(t *testing.T) {
	flaky := &flakyStore{Memory: NewMemory(), failures: 10, err: apperr.Transient("reports.get", errors.New("timeout"))}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRetrying(flaky).GetReport(ctx, "r1")

	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	assert.Equal(t, 1, flaky.calls)
}
