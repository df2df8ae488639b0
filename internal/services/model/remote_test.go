package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"PriceAgent/internal/domain/service"
	xhttp "PriceAgent/pkg/http"
	"PriceAgent/pkg/retry"
)

func newModelServer(t *testing.T, fitFailures int32) (*httptest.Server, *int32) {
	t.Helper()
	var fitCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/init", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(modelResponse{Model: []byte("v0")})
	})
	mux.HandleFunc("/fit", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&fitCalls, 1)
		if n <= fitFailures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req fitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || string(req.Model) != "v0" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(fitResponse{Model: []byte("v1"), Accuracy: 120})
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if string(req.Model) != "v1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(predictResponse{Outputs: []float64{0.5, 0.6}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &fitCalls
}

func TestRemoteLifecycle(t *testing.T) {
	srv, fitCalls := newModelServer(t, 1)
	base := NewHTTPServiceBase(srv.URL,
		xhttp.NewClient(xhttp.WithTimeout(time.Second)),
		retry.New(retry.WithMaxAttempts(3), retry.WithBackoff(time.Millisecond, 2)),
	)
	m := RemoteFactory(base)()
	ctx := context.Background()

	if err := m.Initialize(ctx, 2, 2, 1); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	ds := service.Dataset{Inputs: [][][]float64{{{0.1}, {0.2}}}, Targets: [][]float64{{0.3, 0.4}}}
	res, err := m.Fit(ctx, ds, service.Dataset{}, 1, 1)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if atomic.LoadInt32(fitCalls) != 2 {
		t.Fatalf("expected one retry, got %d calls", atomic.LoadInt32(fitCalls))
	}
	if res.Accuracy != 100 {
		t.Fatalf("accuracy should be clamped, got %f", res.Accuracy)
	}
	out, err := m.Predict(ctx, [][]float64{{0.1}, {0.2}})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("unexpected outputs %v", out)
	}
	blob, _ := m.Serialize()
	if string(blob) != "v1" {
		t.Fatalf("state not updated, got %q", blob)
	}
}

func TestRemoteClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	base := NewHTTPServiceBase(srv.URL, nil, retry.New(retry.WithMaxAttempts(3), retry.WithBackoff(time.Millisecond, 2)))
	if err := NewRemote(base).Initialize(context.Background(), 2, 2, 1); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", atomic.LoadInt32(&calls))
	}
}
