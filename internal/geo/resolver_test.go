package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/psspl2021/global-trade-hub-sub009/internal/contracts"
)

func geoServer(t *testing.T, calls *atomic.Int64, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","country":"United Arab Emirates","countryCode":"AE","regionName":"Dubai"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveCachesPerSession(t *testing.T) {
	var calls atomic.Int64
	srv := geoServer(t, &calls, 0)

	r := NewResolver(NewClient(srv.URL, time.Second), 30*time.Minute, time.Second, zap.NewNop())

	first := r.Resolve(context.Background(), "session-1", "203.0.113.7")
	require.True(t, first.IsDetected)
	require.Equal(t, "AE", first.CountryCode)
	require.Equal(t, "Dubai", first.Region)

	for i := 0; i < 5; i++ {
		require.Equal(t, first, r.Resolve(context.Background(), "session-1", "203.0.113.7"))
	}
	require.EqualValues(t, 1, calls.Load())

	// a different session performs its own lookup
	r.Resolve(context.Background(), "session-2", "203.0.113.8")
	require.EqualValues(t, 2, calls.Load())
}

func TestResolveTimeoutFallsBackToGlobal(t *testing.T) {
	var calls atomic.Int64
	srv := geoServer(t, &calls, 300*time.Millisecond)

	r := NewResolver(NewClient(srv.URL, time.Second), 30*time.Minute, 50*time.Millisecond, zap.NewNop())

	geo := r.Resolve(context.Background(), "session-1", "203.0.113.7")
	require.False(t, geo.IsDetected)
	require.Equal(t, contracts.GlobalCountry, geo.CountryCode)

	// the failure is cached for the session; no retry storm
	r.Resolve(context.Background(), "session-1", "203.0.113.7")
	require.EqualValues(t, 1, calls.Load())
}

func TestResolveServerErrorFallsBackToGlobal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	r := NewResolver(NewClient(srv.URL, time.Second), time.Minute, time.Second, zap.NewNop())
	geo := r.Resolve(context.Background(), "s", "203.0.113.7")
	require.Equal(t, contracts.GlobalGeo(), geo)
}

func TestLookupRejectsFailureBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL, time.Second).Lookup(context.Background(), "203.0.113.7")
	require.Error(t, err)
}
