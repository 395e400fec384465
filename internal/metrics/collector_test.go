package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/volstore/volstore/pkg/errors"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d, want 200", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	t.Run("with nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil)
		if err != nil {
			t.Fatalf("NewCollector(nil) error = %v, want nil", err)
		}
		if collector.config.Namespace != "volstore" {
			t.Errorf("default namespace = %q, want %q", collector.config.Namespace, "volstore")
		}
		if collector.registry == nil {
			t.Error("collector.registry is nil")
		}
		if !collector.Enabled() {
			t.Error("default collector should be enabled")
		}
	})

	t.Run("with disabled config", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: false})
		if err != nil {
			t.Fatalf("NewCollector() error = %v", err)
		}
		if collector.registry != nil {
			t.Error("disabled collector should not have registry")
		}

		collector.RecordOperation("s3", "upload", time.Second, 10, nil)
		collector.RecordResolution("local", true, time.Millisecond)
		if got := len(collector.Snapshot()); got != 0 {
			t.Errorf("disabled collector tracked %d operations", got)
		}

		rec := httptest.NewRecorder()
		collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("disabled handler status = %d, want 404", rec.Code)
		}
	})

	t.Run("independent registries", func(t *testing.T) {
		if _, err := NewCollector(nil); err != nil {
			t.Fatalf("first collector: %v", err)
		}
		if _, err := NewCollector(nil); err != nil {
			t.Fatalf("second collector: %v", err)
		}
	})
}

func TestRecordOperation(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	collector.RecordOperation("s3", "upload", 100*time.Millisecond, 1000, nil)
	collector.RecordOperation("s3", "upload", 300*time.Millisecond, 2000, nil)
	collector.RecordOperation("s3", "download", 50*time.Millisecond, 0,
		errors.NewError(errors.ErrCodeObjectNotFound, "missing"))

	snap := collector.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("len(Snapshot()) = %d, want 2", len(snap))
	}
	download, upload := snap[0], snap[1]
	if upload.Operation != "upload" || upload.Count != 2 || upload.TotalBytes != 3000 {
		t.Errorf("upload summary = %+v", upload)
	}
	if upload.AvgDuration != 200*time.Millisecond {
		t.Errorf("upload.AvgDuration = %v, want 200ms", upload.AvgDuration)
	}
	if download.Errors != 1 {
		t.Errorf("download.Errors = %d, want 1", download.Errors)
	}

	body := scrape(t, collector)
	for _, want := range []string{
		`volstore_storage_operations_total{driver="s3",operation="upload",status="success"} 2`,
		`volstore_storage_operations_total{driver="s3",operation="download",status="error"} 1`,
		`volstore_storage_transfer_bytes_total{driver="s3",operation="upload"} 3000`,
		`volstore_storage_errors_total{code="OBJECT_NOT_FOUND",driver="s3",operation="download"} 1`,
		`volstore_storage_operation_duration_seconds_count{driver="s3",operation="upload"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestRecordResolution(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	collector.RecordResolution("local", false, time.Millisecond)
	collector.RecordResolution("remote", false, 10*time.Millisecond)
	collector.RecordResolution("origin", true, time.Second)

	body := scrape(t, collector)
	for _, want := range []string{
		`volstore_resolutions_total{source="local",status="error"} 1`,
		`volstore_resolutions_total{source="origin",status="success"} 1`,
		`volstore_resolution_duration_seconds_count{source="remote"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestConstLabels(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(&Config{
		Enabled:   true,
		Namespace: "volstore",
		Labels:    map[string]string{"worker": "w1"},
	})
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	collector.RecordOperation("minio", "delete", time.Millisecond, 0, nil)

	want := `volstore_storage_operations_total{driver="minio",operation="delete",status="success",worker="w1"} 1`
	if body := scrape(t, collector); !strings.Contains(body, want) {
		t.Errorf("scrape missing %q", want)
	}
}

func TestUptime(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	if got := collector.Uptime(); got < 0 || got > time.Minute {
		t.Errorf("Uptime() = %v, want a small positive duration", got)
	}

	disabled, err := NewCollector(&Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	if got := disabled.Uptime(); got != 0 {
		t.Errorf("disabled Uptime() = %v, want 0", got)
	}
}

func TestConcurrentRecording(t *testing.T) {
	t.Parallel()

	collector, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				collector.RecordOperation("s3", "list", time.Microsecond, 0, nil)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		select {
		case <-done:
		case <-ctx.Done():
			t.Fatal("timed out waiting for recorders")
		}
	}

	snap := collector.Snapshot()
	if len(snap) != 1 || snap[0].Count != 800 {
		t.Errorf("Snapshot() = %+v, want one entry with count 800", snap)
	}
}
