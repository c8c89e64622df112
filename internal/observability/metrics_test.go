package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"
	"github.com/temoto/uplink/log2"
)

func TestCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.LinkEvent("psm", false)
	c.LinkEvent("reg_status", true)
	c.LinkEvent("reg_status", true)
	c.Send(38, nil)
	c.Send(38, nil)
	c.Send(38, errors.New("broken pipe"))
	c.ControllerState(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.LinkEvents.WithLabelValues("psm")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.LinkEvents.WithLabelValues("reg_status")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.Sends.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.Sends.WithLabelValues("error")))
	assert.Equal(t, float64(76), testutil.ToFloat64(c.SentBytes))
	assert.Equal(t, float64(3), testutil.ToFloat64(c.ControllerGauge))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.LinkRegistered))

	again, err := NewCollector(reg)
	require.NoError(t, err, "second register must reuse existing collectors")
	assert.Equal(t, float64(2), testutil.ToFloat64(again.Sends.WithLabelValues("ok")))

	var nilc *Collector
	nilc.Send(1, nil)
	nilc.LinkEvent("cell", false)
	nilc.ControllerState(1)
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.ControllerState(4)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "uplink_controller_state 4"), body)
}

func TestServe(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.Send(10, nil)

	a := alive.NewAlive()
	addr, err := c.Serve(a, "127.0.0.1:0", log2.NewTest(t, log2.LDebug))
	require.NoError(t, err)
	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(b), `uplink_sends_total{result="ok"} 1`)

	a.Stop()
	a.Wait()
	_, err = c.Serve(a, "127.0.0.1:0", nil)
	assert.Error(t, err)
}
