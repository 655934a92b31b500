package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cluster "github.com/Martini024/point-cluster"
	"github.com/Martini024/point-cluster/geojson"
	"github.com/Martini024/point-cluster/internal/dataset"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	return b, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = value
	return nil
}

func testDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	opts := cluster.DefaultOptions[dataset.Props, dataset.Sums]()
	opts.MaxZoom = 4
	opts = dataset.SumOptions([]string{"visitors"}, opts)

	idx, err := cluster.New(opts)
	require.NoError(t, err)
	require.NoError(t, idx.Load([]cluster.Point[dataset.Props]{
		{ID: "a", X: 0, Y: 0, Properties: dataset.Props{"visitors": 3.0}},
		{ID: "b", X: 1, Y: 1, Properties: dataset.Props{"visitors": 7.0}},
		{ID: "c", X: 100, Y: 100, Properties: dataset.Props{"visitors": 5.0}},
	}))
	return &dataset.Dataset{ID: "test", Index: idx}
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	srv := httptest.NewServer(New(testDataset(t), opts))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func topClusterID(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	var fc geojson.FeatureCollection
	resp := get(t, srv.URL+"/clusters?bbox=-10,-10,110,110&zoom=0", &fc)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, fc.Features, 1)
	return int(fc.Features[0].Properties[geojson.PropClusterID].(float64))
}

func TestClusters(t *testing.T) {
	srv := newTestServer(t, Options{})

	var fc geojson.FeatureCollection
	resp := get(t, srv.URL+"/clusters?bbox=-10,-10,110,110&zoom=0", &fc)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
	require.Len(t, fc.Features, 1)
	props := fc.Features[0].Properties
	assert.Equal(t, true, props[geojson.PropCluster])
	assert.Equal(t, 3.0, props[geojson.PropPointCount])
	assert.Equal(t, 15.0, props["visitors"])

	resp = get(t, srv.URL+"/clusters?bbox=-10,-10,110,110&zoom=4", &fc)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, fc.Features, 2)

	resp = get(t, srv.URL+"/clusters?bbox=99,99,101,101&zoom=20", &fc)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "c", fc.Features[0].ID)
	assert.Equal(t, 5.0, fc.Features[0].Properties["visitors"])
}

func TestClusters_BadRequest(t *testing.T) {
	srv := newTestServer(t, Options{})
	for _, query := range []string{
		"bbox=0,0,1&zoom=1",
		"bbox=0,0,1,x&zoom=1",
		"bbox=5,0,1,1&zoom=1",
		"bbox=0,0,1,1",
		"bbox=0,0,1,1&zoom=NaN",
		"zoom=1",
	} {
		var body map[string]string
		resp := get(t, srv.URL+"/clusters?"+query, &body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
		assert.NotEmpty(t, body["error"])
	}
}

func TestChildrenLeavesAndExpansionZoom(t *testing.T) {
	srv := newTestServer(t, Options{})
	id := topClusterID(t, srv)
	base := srv.URL + "/clusters/" + strconv.Itoa(id)

	var children geojson.FeatureCollection
	resp := get(t, base+"/children", &children)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, children.Features, 2)

	var leaves geojson.FeatureCollection
	resp = get(t, base+"/leaves?limit=2&offset=1", &leaves)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, leaves.Features, 2)

	resp = get(t, base+"/leaves", &leaves)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, leaves.Features, 3)

	var expansion map[string]int
	resp = get(t, base+"/expansion-zoom", &expansion)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, expansion["zoom"])
	assert.Equal(t, id, expansion["cluster_id"])
}

func TestUnknownCluster(t *testing.T) {
	srv := newTestServer(t, Options{})
	for _, path := range []string{"/clusters/1/children", "/clusters/99999/leaves", "/clusters/-5/expansion-zoom"} {
		resp := get(t, srv.URL+path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	resp := get(t, srv.URL+"/clusters/abc/children", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = get(t, srv.URL+"/clusters/7/leaves?offset=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCache(t *testing.T) {
	cache := &memCache{}
	srv := newTestServer(t, Options{Cache: cache})
	url := srv.URL + "/clusters?bbox=-10,-10,110,110&zoom=4"

	var first, second geojson.FeatureCollection
	resp := get(t, url, &first)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	resp = get(t, url, &second)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	assert.Equal(t, first, second)
	assert.Len(t, cache.data, 1)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, Options{RateLimitQPS: 0.001})
	url := srv.URL + "/clusters?bbox=0,0,1,1&zoom=1"

	assert.Equal(t, http.StatusOK, get(t, url, nil).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, get(t, url, nil).StatusCode)

	//health and metrics are not limited
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/healthz", nil).StatusCode)
	assert.Equal(t, http.StatusOK, get(t, srv.URL+"/metrics", nil).StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, Options{})
	var body map[string]any
	resp := get(t, srv.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["dataset"])
	assert.Equal(t, 3.0, body["points"])
	assert.Equal(t, 4.0, body["max_zoom"])
}

func TestRequestIDIsKept(t *testing.T) {
	srv := newTestServer(t, Options{})
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(requestIDHeader, "abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc", resp.Header.Get(requestIDHeader))
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := New(testDataset(t), Options{Logger: l})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/clusters/1048576/children", nil)
	req.Header.Set(requestIDHeader, "req-1")
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, buf.String(), "msg=http_access")
	assert.Contains(t, buf.String(), "status=404")
	assert.Contains(t, buf.String(), "path=/clusters/1048576/children")
	assert.Contains(t, buf.String(), "request_id=req-1")
	assert.Contains(t, buf.String(), fmt.Sprintf("bytes=%d", rec.Body.Len()))
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}
	client := OpenRedis(addr, os.Getenv("REDIS_PASS"), 0)
	defer client.Close()

	cache := NewRedisCache(client, "cluster-test:"+strconv.FormatInt(time.Now().UnixNano(), 36)+":", time.Minute)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "k", []byte("v")))
	b, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)
}

func TestNewRedisCache_Disabled(t *testing.T) {
	assert.Nil(t, OpenRedis("", "", 0))
	assert.Nil(t, NewRedisCache(nil, "", time.Minute))
}
