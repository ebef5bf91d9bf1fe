package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(url string) *SMSGateway {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return NewSMSGateway(Config{URL: url, Token: "secret", SenderID: "SafeSteps"}, nil, logger)
}

var testMessage = models.SMSMessage{Reference: "alert-1-0", To: "+15550000001", Body: "SOS"}

func TestSend_Delivered(t *testing.T) {
	var got sendRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		assert.Equal(t, sign(body, "secret"), r.Header.Get("X-Gateway-Signature"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := newTestGateway(srv.URL).Send(context.Background(), testMessage)

	require.NoError(t, err)
	assert.Equal(t, "+15550000001", got.To)
	assert.Equal(t, "SafeSteps", got.From)
	assert.Equal(t, "alert-1-0", headers.Get("Idempotency-Key"))
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
}

func TestSend_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   apperr.Kind
	}{
		{http.StatusBadRequest, apperr.KindPermanentDependency},
		{http.StatusNotFound, apperr.KindPermanentDependency},
		{http.StatusUnprocessableEntity, apperr.KindPermanentDependency},
		{http.StatusRequestTimeout, apperr.KindTransientDependency},
		{http.StatusTooManyRequests, apperr.KindTransientDependency},
		{http.StatusBadGateway, apperr.KindTransientDependency},
		{http.StatusServiceUnavailable, apperr.KindTransientDependency},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			err := newTestGateway(srv.URL).Send(context.Background(), testMessage)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestSend_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := newTestGateway(srv.URL).Send(ctx, testMessage)
	assert.True(t, apperr.IsTransient(err))
}

func TestSend_ConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := newTestGateway(url).Send(context.Background(), testMessage)
	assert.True(t, apperr.IsTransient(err))
}

func TestLogGateway(t *testing.T) {
	logger := logrus.New()
	buf := &bytes.Buffer{}
	logger.SetOutput(buf)

	require.NoError(t, NewLogGateway(logger).Send(context.Background(), testMessage))
	assert.Contains(t, buf.String(), "alert-1-0")
}
