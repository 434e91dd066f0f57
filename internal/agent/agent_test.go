package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentrydns/classifierd/internal/config"
	"github.com/sentrydns/classifierd/internal/domain"
	"github.com/sentrydns/classifierd/internal/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		ClassifierURL:    "http://unused.invalid",
		PoolWorkers:      2,
		PoolQueueDepth:   8,
		StatsInterval:    time.Hour,
		CaptureInterface: "lo",
		MetricsEnabled:   true,
		MetricsAddr:      "127.0.0.1:0",
		HealthAddr:       "127.0.0.1:0",
	}
}

func TestHealthHandlerReportsOKWhenStoreReachable(t *testing.T) {
	store := testutil.NewMemStore(100, domain.DefaultTTLTable(), nil)
	a := wire(context.Background(), testConfig(), zerolog.Nop(), store)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	a.healthHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHealthHandlerReportsUnavailableWhenStoreClosed(t *testing.T) {
	store := testutil.NewMemStore(100, domain.DefaultTTLTable(), nil)
	a := wire(context.Background(), testConfig(), zerolog.Nop(), store)
	store.Close()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	a.healthHandler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestServeHTTPShutsDownOnCancel(t *testing.T) {
	store := testutil.NewMemStore(100, domain.DefaultTTLTable(), nil)
	a := wire(context.Background(), testConfig(), zerolog.Nop(), store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.serveHTTP(ctx, "127.0.0.1:0", http.HandlerFunc(a.healthHandler))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serveHTTP returned error on graceful shutdown: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("serveHTTP did not shut down promptly after cancel")
	}
}
