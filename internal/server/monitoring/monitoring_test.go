package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/okieraised/greenhouse-agent/internal/infrastructure/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMuxServesMetrics(t *testing.T) {
	mux, err := NewMux()
	require.NoError(t, err)
	metrics.MessagesReceived.Inc()

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "greenhouse_messages_received_total")
}
