package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind apperr.Kind
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, apperr.KindTransientDependency},
		{"connection exception", &pgconn.PgError{Code: "08006"}, apperr.KindTransientDependency},
		{"too many connections", &pgconn.PgError{Code: "53300"}, apperr.KindTransientDependency},
		{"unique violation", &pgconn.PgError{Code: "23505"}, apperr.KindInvalidInput},
		{"invalid uuid text", &pgconn.PgError{Code: "22P02"}, apperr.KindInvalidInput},
		{"syntax error", &pgconn.PgError{Code: "42601"}, apperr.KindPermanentDependency},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), apperr.KindTransientDependency},
		{"canceled", context.Canceled, apperr.KindPermanentDependency},
		{"network", errors.New("dial tcp: connection refused"), apperr.KindTransientDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, apperr.KindOf(classify("op", tt.err)))
		})
	}
	assert.NoError(t, classify("op", nil))
}
