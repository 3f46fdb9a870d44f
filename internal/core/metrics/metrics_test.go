package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestRecorders(t *testing.T) {
	SetInstances(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(registryInstances))

	before := testutil.ToFloat64(launcherEvents.WithLabelValues("abc"))
	RecordEvent("abc")
	RecordEvent("abc")
	assert.Equal(t, before+2, testutil.ToFloat64(launcherEvents.WithLabelValues("abc")))

	ForgetInstance("abc")
	assert.Equal(t, float64(0), testutil.ToFloat64(launcherEvents.WithLabelValues("abc")))

	exits := testutil.ToFloat64(launcherExits.WithLabelValues(ExitPanic))
	RecordExit(ExitPanic)
	assert.Equal(t, exits+1, testutil.ToFloat64(launcherExits.WithLabelValues(ExitPanic)))

	SetWSClients(2)
	assert.Equal(t, float64(2), testutil.ToFloat64(wsClients))

	reqs := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/health", "200"))
	RecordHTTPRequest("GET", "/health", 200, 3*time.Millisecond)
	assert.Equal(t, reqs+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/health", "200")))

	drops := testutil.ToFloat64(sinkDropped.WithLabelValues("test"))
	RecordSinkDrop("test")
	assert.Equal(t, drops+1, testutil.ToFloat64(sinkDropped.WithLabelValues("test")))
}

func TestHandler_Exposes(t *testing.T) {
	RecordStopTimeout()
	RecordBroadcast()
	RecordSuspend()
	RecordBusDrop("types.InstanceEvent")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "easylink_launcher_stop_timeouts_total")
	assert.Contains(t, body, "easylink_broadcaster_emits_total")
	assert.Contains(t, body, "easylink_broadcaster_suspends_total")
	assert.Contains(t, body, `easylink_eventbus_dropped_total{type="types.InstanceEvent"}`)
}
