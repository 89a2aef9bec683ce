package nbi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/avue/internal/logging"
	"github.com/signalsfoundry/avue/internal/nbi/types"
	"github.com/signalsfoundry/avue/internal/observability"
	"github.com/signalsfoundry/avue/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHTTPEnv(t *testing.T, sups staticSupports) (*httptest.Server, *observability.NBICollector) {
	t.Helper()
	collector, err := observability.NewNBICollector(prometheus.NewRegistry())
	require.NoError(t, err)
	srv := httptest.NewServer(NewHTTPHandler(newTestService(sups), collector, logging.Noop()))
	t.Cleanup(srv.Close)
	return srv, collector
}

func get(t *testing.T, url string, header ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func searchURL(base string, extra string) string {
	return fmt.Sprintf("%s/search?lat=%v&lon=%v%s", base, home.Lat, home.Lon, extra)
}

func TestHTTPSearchWait(t *testing.T) {
	srv, collector := newHTTPEnv(t, testSupports(3))

	resp := get(t, searchURL(srv.URL, "&height=8&radius=4&wait=true"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	var snap types.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "done", snap.Status)
	assert.Equal(t, 8.0, snap.Point.HeightM)
	assert.Equal(t, 4.0, snap.RadiusKm)
	assert.Len(t, snap.Results, 3)
	assert.Empty(t, snap.Failures)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/search", "200")))
}

func TestHTTPSearchAccepted(t *testing.T) {
	srv, _ := newHTTPEnv(t, testSupports(1))
	resp := get(t, searchURL(srv.URL, ""))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var started types.SearchStarted
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	assert.NotEmpty(t, started.SearchID)
}

func TestHTTPSearchErrors(t *testing.T) {
	srv, collector := newHTTPEnv(t, testSupports(31))

	tests := []struct {
		name string
		url  string
		code int
	}{
		{name: "missing coordinates", url: srv.URL + "/search", code: http.StatusBadRequest},
		{name: "malformed number", url: srv.URL + "/search?lat=north&lon=5", code: http.StatusBadRequest},
		{name: "malformed wait", url: searchURL(srv.URL, "&wait=maybe"), code: http.StatusBadRequest},
		{name: "too many candidates", url: searchURL(srv.URL, "&wait=true"), code: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, tt.url)
			assert.Equal(t, tt.code, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/search", "400")))
}

func TestHTTPSnapshotAndGeoJSON(t *testing.T) {
	srv, _ := newHTTPEnv(t, testSupports(2))
	require.Equal(t, http.StatusOK, get(t, searchURL(srv.URL, "&wait=true")).StatusCode)

	resp := get(t, srv.URL+"/snapshot?detail=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap types.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Len(t, snap.Results, 2)
	assert.NotNil(t, snap.Results[0].Chart)

	resp = get(t, srv.URL+"/snapshot.geojson")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))
	var fc geojson.FeatureCollection
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fc))
	supports := 0
	for _, f := range fc.Features {
		if f.Properties.MustString("kind") == render.KindSupport {
			supports++
		}
	}
	assert.Equal(t, 2, supports)
}

func TestHTTPProgress(t *testing.T) {
	srv, _ := newHTTPEnv(t, testSupports(2))

	resp := get(t, srv.URL+"/progress")
	var idle types.ProgressView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&idle))
	assert.Equal(t, "idle", idle.Status)

	require.Equal(t, http.StatusOK, get(t, searchURL(srv.URL, "&wait=true")).StatusCode)

	resp = get(t, srv.URL+"/progress", "Accept", "text/event-stream")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The search is done, so the stream carries one event and ends.
	var events []types.ProgressView
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var v types.ProgressView
			require.NoError(t, json.Unmarshal([]byte(data), &v))
			events = append(events, v)
		}
	}
	require.NoError(t, sc.Err())
	require.Len(t, events, 1)
	assert.Equal(t, "done", events[0].Status)
	assert.Equal(t, types.Progress{Processed: 2, Total: 2}, events[0].Progress)
}

func TestHTTPHealthEchoesRequestID(t *testing.T) {
	srv, _ := newHTTPEnv(t, nil)
	resp := get(t, srv.URL+"/health", RequestIDHeader, "abc-123")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))
}

func TestHTTPRejectsOtherMethods(t *testing.T) {
	srv, _ := newHTTPEnv(t, nil)
	resp, err := http.Post(srv.URL+"/health", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
