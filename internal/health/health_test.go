package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// sentimentUp and historyUp mimic the two checkers the server registers.
func sentimentUp(context.Context) error { return nil }
func historyUp(context.Context) error   { return nil }

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) report {
	t.Helper()
	var rep report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rep
}

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()

	// Liveness ignores dependencies, even ones that are down.
	h := New(Checker{Name: "sentiment", Check: func(context.Context) error {
		return errors.New("ollama unreachable")
	}})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if rep := decodeReport(t, rec); rep.Status != "ok" {
		t.Errorf("status field = %q, want ok", rep.Status)
	}
}

func TestReadyz_AllDependenciesUp(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "sentiment", Check: sentimentUp},
		Checker{Name: "history", Check: historyUp},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	rep := decodeReport(t, rec)
	if rep.Status != "ok" {
		t.Errorf("status field = %q, want ok", rep.Status)
	}
	for _, name := range []string{"sentiment", "history"} {
		if rep.Checks[name] != "ok" {
			t.Errorf("check %q = %q, want ok", name, rep.Checks[name])
		}
	}
}

func TestReadyz_SentimentBackendDown(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "sentiment", Check: func(context.Context) error {
			return errors.New("ollama unreachable")
		}},
		Checker{Name: "history", Check: historyUp},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	rep := decodeReport(t, rec)
	if rep.Status != "fail" {
		t.Errorf("status field = %q, want fail", rep.Status)
	}
	if rep.Checks["sentiment"] != "fail: ollama unreachable" {
		t.Errorf("sentiment check = %q, want the failure message", rep.Checks["sentiment"])
	}
	// The healthy dependency still shows up in the report.
	if rep.Checks["history"] != "ok" {
		t.Errorf("history check = %q, want ok", rep.Checks["history"])
	}
}

func TestReadyz_AllDependenciesDown(t *testing.T) {
	t.Parallel()

	h := New(
		Checker{Name: "sentiment", Check: func(context.Context) error {
			return errors.New("ollama unreachable")
		}},
		Checker{Name: "history", Check: func(context.Context) error {
			return errors.New("connection refused")
		}},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	rep := decodeReport(t, rec)
	for name, want := range map[string]string{
		"sentiment": "fail: ollama unreachable",
		"history":   "fail: connection refused",
	} {
		if rep.Checks[name] != want {
			t.Errorf("check %q = %q, want %q", name, rep.Checks[name], want)
		}
	}
}

func TestReadyz_NoCheckers(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	New().Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestReadyz_CheckSeesDeadline(t *testing.T) {
	t.Parallel()

	var hadDeadline bool
	h := New(Checker{Name: "sentiment", Check: func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return ctx.Err()
	}})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if !hadDeadline {
		t.Error("checker context carries no deadline")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "history", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)

	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRegister_Routes(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New(Checker{Name: "sentiment", Check: sentimentUp}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: status = %d, want 200", path, rec.Code)
		}
	}
}
