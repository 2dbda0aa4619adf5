package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New("edge")
	m.Logins.WithLabelValues(OutcomeOK).Inc()
	m.Logins.WithLabelValues(OutcomeRejected).Add(2)
	m.CacheLookups.WithLabelValues(ResultMiss).Inc()

	size := 3
	m.TrackCacheSize(func() int { return size })

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Logins.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Logins.WithLabelValues(OutcomeRejected)))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `svh_logins_total{outcome="ok",service="edge"} 1`)
	assert.Contains(t, text, `svh_session_cache_lookups_total{result="miss",service="edge"} 1`)
	assert.Contains(t, text, "svh_session_cache_entries 3")
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New("edge"), New("edge")
	a.Logouts.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Logouts))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Logouts))
}
