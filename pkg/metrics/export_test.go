package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/trace"

	tf "github.com/filecoin-project/go-porep/pkg/testhelpers/testflags"
)

func scrape(t *testing.T, addr string) string {
	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() // nolint: errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPrometheusEndpointServesViews(t *testing.T) {
	tf.SerialUnitTest(t)

	c := NewInt64Counter("test/exported_count", "exported counter")
	defer view.Unregister(c.View())

	e, err := RegisterPrometheusEndpoint("127.0.0.1:0", 0)
	require.NoError(t, err)
	defer func() { require.NoError(t, e.Close()) }()

	c.Inc(context.Background(), 3)
	assert.Eventually(t, func() bool {
		return strings.Contains(scrape(t, e.Addr()), Namespace+"_test_exported_count 3")
	}, 5*time.Second, 50*time.Millisecond)
}

func TestPrometheusEndpointBadAddr(t *testing.T) {
	tf.SerialUnitTest(t)

	_, err := RegisterPrometheusEndpoint("not an address", 0)
	assert.Error(t, err)
}

func TestRegisterJaeger(t *testing.T) {
	tf.SerialUnitTest(t)

	_, err := RegisterJaeger("porep-test", "", 1)
	assert.Error(t, err)

	tr, err := RegisterJaeger("porep-test", "127.0.0.1:6831", 1)
	require.NoError(t, err)
	_, span := trace.StartSpan(context.Background(), "test.span")
	assert.True(t, span.IsRecordingEvents())
	span.End()
	require.NoError(t, tr.Close())

	trace.ApplyConfig(trace.Config{DefaultSampler: trace.ProbabilitySampler(1e-4)})
}
