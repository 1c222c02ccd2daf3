package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestObserveReport(t *testing.T) {
	c := provisioningReports.WithLabelValues(DirectionPush, "CREATE", "ws-target", "SUCCESS")
	before := counterValue(t, c)
	ObserveReport(DirectionPush, "CREATE", "ws-target", "SUCCESS", 10*time.Millisecond)
	assert.Equal(t, before+1, counterValue(t, c))
}

func TestObserveConnectorCheck(t *testing.T) {
	c := connectorChecks.WithLabelValues("UNREACHABLE")
	before := counterValue(t, c)
	ObserveConnectorCheck("UNREACHABLE")
	ObserveConnectorCheck("UNREACHABLE")
	assert.Equal(t, before+2, counterValue(t, c))
}

func TestObserveRequest(t *testing.T) {
	c := httpRequests.WithLabelValues("GET", "/api/connectors", "200")
	before := counterValue(t, c)
	ObserveRequest("GET", "/api/connectors", "200", time.Millisecond)
	assert.Equal(t, before+1, counterValue(t, c))
}
