package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volstore/volstore/internal/metrics"
	"github.com/volstore/volstore/internal/storage/storagetest"
	"github.com/volstore/volstore/pkg/errors"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *storagetest.Store) {
	t.Helper()
	store := storagetest.New("vol")
	store.Put("weights/a.pt", []byte("aaaa"))
	store.Put("weights/b.pt", []byte("bb"))
	store.Put("results/job_1/out.mp4", []byte("v"))
	return NewServer(DefaultServerConfig(), store, opts...), store
}

func do(s *Server, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHandleHealth(t *testing.T) {
	server, store := newTestServer(t)

	w := do(server, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	store.Fail("HealthCheck", errors.NewError(errors.ErrCodeBucketNotFound, "no bucket"))
	w = do(server, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "unavailable", body["status"])
	assert.Equal(t, "BUCKET_NOT_FOUND", body["code"])
}

func TestHandleInfo(t *testing.T) {
	server, _ := newTestServer(t)

	w := do(server, http.MethodGet, "/v1/info")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "vol", body["network_volume_id"])
	assert.EqualValues(t, 3, body["total_files"])
	assert.EqualValues(t, 7, body["total_size_bytes"])
}

func TestHandleList(t *testing.T) {
	server, _ := newTestServer(t)

	w := do(server, http.MethodGet, "/v1/objects?prefix=weights/")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["count"])
	objects := body["objects"].([]interface{})
	assert.Equal(t, "weights/a.pt", objects[0].(map[string]interface{})["key"])

	w = do(server, http.MethodGet, "/v1/objects?prefix=nothing/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, decode(t, w)["objects"])
}

func TestHandleStats(t *testing.T) {
	server, _ := newTestServer(t)

	w := do(server, http.MethodGet, "/v1/stats?prefix=weights/")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["objects"])
	assert.EqualValues(t, 6, body["total_bytes"])
}

func TestHandleExists(t *testing.T) {
	server, store := newTestServer(t)

	assert.Equal(t, http.StatusOK, do(server, http.MethodHead, "/v1/objects/weights/a.pt").Code)
	assert.Equal(t, http.StatusNotFound, do(server, http.MethodHead, "/v1/objects/weights/zzz.pt").Code)

	store.Fail("Exists", errors.NewError(errors.ErrCodeAccessDenied, "denied"))
	assert.Equal(t, http.StatusForbidden, do(server, http.MethodHead, "/v1/objects/weights/a.pt").Code)
}

func TestHandleDelete(t *testing.T) {
	server, store := newTestServer(t)

	w := do(server, http.MethodDelete, "/v1/objects/results/job_1/out.mp4")
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, ok := store.Get("results/job_1/out.mp4")
	assert.False(t, ok)

	store.Fail("Delete", errors.NewError(errors.ErrCodeServiceUnavailable, "down"))
	w = do(server, http.MethodDelete, "/v1/objects/weights/a.pt")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "SERVICE_UNAVAILABLE", body["code"])
	assert.NotEmpty(t, body["request_id"])
}

func TestHandleURL(t *testing.T) {
	server, _ := newTestServer(t)

	w := do(server, http.MethodGet, "/v1/url/results/job_1/out.mp4")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "results/job_1/out.mp4", body["key"])
	assert.Equal(t, "s3://vol/results/job_1/out.mp4", body["uri"])
	assert.True(t, strings.HasSuffix(body["url"].(string), "/vol/results/job_1/out.mp4"))

	w = do(server, http.MethodGet, "/v1/url/")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestID(t *testing.T) {
	server, _ := newTestServer(t)

	w := do(server, http.MethodGet, "/health")
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "job-42")
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, "job-42", w.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/info", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSDisabled(t *testing.T) {
	config := DefaultServerConfig()
	config.AllowedOrigins = nil
	server := NewServer(config, storagetest.New("vol"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://console.example.com")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	collector, err := metrics.NewCollector(nil)
	require.NoError(t, err)
	collector.RecordOperation("s3", "exists", time.Millisecond, 0, nil)

	server, _ := newTestServer(t, WithMetrics(collector))
	w := do(server, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "volstore_storage_operations_total")

	server, _ = newTestServer(t)
	assert.Equal(t, http.StatusNotFound, do(server, http.MethodGet, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, do(server, http.MethodGet, "/v1/metrics/summary").Code)

	disabled, err := metrics.NewCollector(&metrics.Config{Enabled: false})
	require.NoError(t, err)
	server, _ = newTestServer(t, WithMetrics(disabled))
	assert.Equal(t, http.StatusNotFound, do(server, http.MethodGet, "/metrics").Code)
}

func TestMetricsSummary(t *testing.T) {
	collector, err := metrics.NewCollector(nil)
	require.NoError(t, err)
	collector.RecordOperation("s3", "upload", 2*time.Millisecond, 512, nil)
	collector.RecordOperation("s3", "upload", 4*time.Millisecond, 512, errors.NewError(errors.ErrCodeNetworkError, "reset"))
	collector.RecordOperation("local", "exists", time.Millisecond, 0, nil)

	server, _ := newTestServer(t, WithMetrics(collector))
	w := do(server, http.MethodGet, "/v1/metrics/summary")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Uptime     string                     `json:"uptime"`
		Operations []metrics.OperationMetrics `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Uptime)
	require.Len(t, body.Operations, 2)
	assert.Equal(t, "local", body.Operations[0].Driver)
	assert.Equal(t, "upload", body.Operations[1].Operation)
	assert.Equal(t, int64(2), body.Operations[1].Count)
	assert.Equal(t, int64(1), body.Operations[1].Errors)
	assert.Equal(t, int64(1024), body.Operations[1].TotalBytes)
}

func TestServerRunShutsDownOnCancel(t *testing.T) {
	config := DefaultServerConfig()
	config.Address = "localhost:0"
	server := NewServer(config, storagetest.New("vol"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestServerRunReturnsBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	config := DefaultServerConfig()
	config.Address = ln.Addr().String()
	server := NewServer(config, storagetest.New("vol"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	err = server.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeOperationFailed, errors.CodeOf(err))
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestReleaseModeUnlessDebug(t *testing.T) {
	defer gin.SetMode(gin.TestMode)

	gin.SetMode(gin.DebugMode)
	NewServer(DefaultServerConfig(), storagetest.New("vol"))
	assert.Equal(t, gin.ReleaseMode, gin.Mode())

	gin.SetMode(gin.DebugMode)
	config := DefaultServerConfig()
	config.Debug = true
	NewServer(config, storagetest.New("vol"))
	assert.Equal(t, gin.DebugMode, gin.Mode())
}
