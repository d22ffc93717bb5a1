package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/relay_layer/internal/mode"
)

func TestRecorders(t *testing.T) {
	m := New(false)

	m.RecordHTTPRequest("relayer", "post", "/relayer", "200", 20*time.Millisecond)
	m.RecordRelay("submitted")
	m.RecordRelay("submitted")
	m.ObserveLedgerCall("execute", "success", time.Second)
	m.ObserveLedgerRetry("execute")
	m.ObserveMode(mode.Degraded)
	m.RecordPruned(3)
	m.RecordPruned(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("relayer", "POST", "/relayer", "200")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.relayRequests.WithLabelValues("submitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerCalls.WithLabelValues("execute", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerRetries.WithLabelValues("execute")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerMode))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.auditPruned))

	m.ObserveMode(mode.Live)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ledgerMode))

	m.IncrementInFlight()
	m.IncrementInFlight()
	m.DecrementInFlight()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpInFlight))
}

func TestHandler(t *testing.T) {
	m := New(true)
	m.RecordRelay("expired")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `relay_layer_relay_requests_total{outcome="expired"} 1`))
	assert.Contains(t, body, "go_goroutines")
}
