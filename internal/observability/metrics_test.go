package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsBatchCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncBatchRunsInFlight("STATUS_UPDATE")
	metrics.IncBatchItem("STATUS_UPDATE", "completed")
	metrics.IncBatchItem("status_update", "completed")
	metrics.IncBatchItem("STATUS_UPDATE", "failed")
	metrics.IncBatchRun("STATUS_UPDATE", "FAILED")
	metrics.ObserveBatchRunDuration("STATUS_UPDATE", 250*time.Millisecond)
	metrics.DecBatchRunsInFlight("STATUS_UPDATE")
	metrics.IncSlabTransition("RECEIVED", "STOCK")
	metrics.IncProgressPublishFailure()

	if got := testutil.ToFloat64(metrics.batchItemsProcessed.WithLabelValues("status_update", "completed")); got != 2 {
		t.Fatalf("batch_items_processed_total{completed} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.batchItemsProcessed.WithLabelValues("status_update", "failed")); got != 1 {
		t.Fatalf("batch_items_processed_total{failed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.batchRunsTotal.WithLabelValues("status_update", "failed")); got != 1 {
		t.Fatalf("batch_runs_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.batchRunsInflight.WithLabelValues("status_update")); got != 0 {
		t.Fatalf("batch_runs_inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.slabTransitionsTotal.WithLabelValues("received", "stock")); got != 1 {
		t.Fatalf("slab_transitions_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.progressPublishFailure); got != 1 {
		t.Fatalf("batch_progress_publish_failures_total = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(metrics.batchRunDuration); got != 1 {
		t.Fatalf("batch_run_duration_seconds series = %d, want 1", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncBatchItem("export", "completed")
	metrics.IncBatchRun("export", "completed")
	metrics.ObserveBatchRunDuration("export", time.Second)
	metrics.IncBatchRunsInFlight("export")
	metrics.DecBatchRunsInFlight("export")
	metrics.IncSlabTransition("stock", "allocated")
	metrics.IncProgressPublishFailure()
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
