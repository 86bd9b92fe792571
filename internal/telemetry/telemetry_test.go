package telemetry_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulseboard/internal/telemetry"
)

func TestMetricsRecordAndServe(t *testing.T) {
	m := telemetry.New()
	m.ObserveReport("weekly", "completed", 20*time.Millisecond)
	m.ObserveReport("weekly", "failed", time.Millisecond)
	m.ObserveDelivery(telemetry.DeliveryOK)
	m.SetDue(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsGenerated.WithLabelValues("weekly", "completed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DueConfigs))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pulseboard_reports_generated_total{period="weekly",status="failed"} 1`)
	assert.Contains(t, string(body), `pulseboard_report_deliveries_total{result="ok"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *telemetry.Metrics
	m.ObserveReport("weekly", "completed", time.Second)
	m.ObserveDelivery(telemetry.DeliveryFailed)
	m.SetDue(1)
}
