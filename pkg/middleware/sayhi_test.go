package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// echoHeaders copies every request header onto the response and replies 200
func echoHeaders(w http.ResponseWriter, r *http.Request) {
	for name, values := range r.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(http.StatusOK)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestSayHiOverwritesEchoedHeader(t *testing.T) {
	handler := SayHi()(http.HandlerFunc(echoHeaders))

	rr := serve(handler, httptest.NewRequest(http.MethodGet, "/hello/test", nil))

	values := rr.Header().Values(SayHiHeader)
	if len(values) != 1 || values[0] != SayHiAfter {
		t.Errorf("Expected %s header to be [%q], got %q", SayHiHeader, SayHiAfter, values)
	}
}

func TestSayHiRequestAlreadyStamped(t *testing.T) {
	var seen []string
	handler := SayHi()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Values(SayHiHeader)
		echoHeaders(w, r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/hello/test", nil)
	req.Header.Add(SayHiHeader, SayHiBefore)
	req.Header.Add(SayHiHeader, "client")

	rr := serve(handler, req)

	if len(seen) != 1 || seen[0] != SayHiBefore {
		t.Errorf("Expected inner handler to see [%q], got %q", SayHiBefore, seen)
	}
	values := rr.Header().Values(SayHiHeader)
	if len(values) != 1 || values[0] != SayHiAfter {
		t.Errorf("Expected response header [%q], got %q", SayHiAfter, values)
	}
}

func TestSayHiInnerErrorIsNotStamped(t *testing.T) {
	var failed bool
	handler := SayHi()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusBadRequest, "bad request")
		failed = Failed(r.Context())
	}))

	rr := serve(handler, httptest.NewRequest(http.MethodPost, "/try", nil))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, rr.Code)
	}
	if rr.Body.String() != "bad request" {
		t.Errorf("Expected body %q, got %q", "bad request", rr.Body.String())
	}
	if got := rr.Header().Values(SayHiHeader); len(got) != 0 {
		t.Errorf("Expected no %s header on the error path, got %q", SayHiHeader, got)
	}
	if !failed {
		t.Error("Expected request to be marked failed")
	}
}

func TestSayHiStacked(t *testing.T) {
	handler := Chain(SayHi(), SayHi())(http.HandlerFunc(echoHeaders))

	rr := serve(handler, httptest.NewRequest(http.MethodGet, "/hello/test", nil))

	values := rr.Header().Values(SayHiHeader)
	if len(values) != 1 || values[0] != SayHiAfter {
		t.Errorf("Expected response header [%q], got %q", SayHiAfter, values)
	}
}

func TestSayHiStackedErrorReachesEveryLayer(t *testing.T) {
	handler := Chain(SayHi(), SayHi(), SayHi())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusBadRequest, "request failed")
	}))

	rr := serve(handler, httptest.NewRequest(http.MethodPost, "/try", nil))

	if got := rr.Header().Values(SayHiHeader); len(got) != 0 {
		t.Errorf("Expected no %s header, got %q", SayHiHeader, got)
	}
}

func TestSayHiHelloScenario(t *testing.T) {
	handler := SayHi()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Hello %s!", "test")
	}))

	rr := serve(handler, httptest.NewRequest(http.MethodGet, "/hello/test", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, rr.Code)
	}
	if rr.Body.String() != "Hello test!" {
		t.Errorf("Expected body %q, got %q", "Hello test!", rr.Body.String())
	}
	if got := rr.Header().Get(SayHiHeader); got != SayHiAfter {
		t.Errorf("Expected %s header %q, got %q", SayHiHeader, SayHiAfter, got)
	}
}

func TestSayHiRejectScenario(t *testing.T) {
	handler := SayHi()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusBadRequest, "request failed")
	}))

	rr := serve(handler, httptest.NewRequest(http.MethodPost, "/try", nil))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status code %d, got %d", http.StatusBadRequest, rr.Code)
	}
	if rr.Body.String() != "request failed" {
		t.Errorf("Expected body %q, got %q", "request failed", rr.Body.String())
	}
	if got := rr.Header().Get(SayHiHeader); got != "" {
		t.Errorf("Expected no %s header, got %q", SayHiHeader, got)
	}
}

func TestSayHiEmptyResponse(t *testing.T) {
	handler := SayHi()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, rr.Code)
	}
	if got := rr.Header().Get(SayHiHeader); got != SayHiAfter {
		t.Errorf("Expected %s header %q, got %q", SayHiHeader, SayHiAfter, got)
	}
}

func TestSayHiHandlerSetHeaderIsOverwritten(t *testing.T) {
	handler := SayHi()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(SayHiHeader, "handler")
		w.WriteHeader(http.StatusCreated)
	}))

	rr := serve(handler, httptest.NewRequest(http.MethodPost, "/record/create", nil))

	if rr.Code != http.StatusCreated {
		t.Errorf("Expected status code %d, got %d", http.StatusCreated, rr.Code)
	}
	if got := rr.Header().Values(SayHiHeader); len(got) != 1 || got[0] != SayHiAfter {
		t.Errorf("Expected [%q], got %q", SayHiAfter, got)
	}
}

func TestSayHiFlushCommitsStamp(t *testing.T) {
	handler := SayHi()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("Expected flush to succeed, got %v", err)
		}
		_, _ = w.Write([]byte("chunk"))
	}))

	rr := serve(handler, httptest.NewRequest(http.MethodGet, "/", nil))

	if !rr.Flushed {
		t.Error("Expected recorder to be flushed")
	}
	if got := rr.Header().Get(SayHiHeader); got != SayHiAfter {
		t.Errorf("Expected %s header %q, got %q", SayHiHeader, SayHiAfter, got)
	}
}

func TestSayHiConcurrentRequests(t *testing.T) {
	handler := SayHi()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") == "1" {
			WriteError(w, r, http.StatusBadRequest, "request failed")
			return
		}
		echoHeaders(w, r)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fail := i%2 == 0
			target := "/try"
			if fail {
				target += "?fail=1"
			}
			rr := serve(handler, httptest.NewRequest(http.MethodGet, target, nil))

			got := rr.Header().Get(SayHiHeader)
			if fail && got != "" {
				t.Errorf("request %d: expected no header on failure, got %q", i, got)
			}
			if !fail && got != SayHiAfter {
				t.Errorf("request %d: expected %q, got %q", i, SayHiAfter, got)
			}
		}(i)
	}
	wg.Wait()
}

func TestMarkFailedWithoutSayHi(t *testing.T) {
	ctx := context.Background()
	MarkFailed(ctx)
	if Failed(ctx) {
		t.Error("Expected Failed to be false without a SayHi layer")
	}
}
