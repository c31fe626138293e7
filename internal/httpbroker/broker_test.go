package httpbroker_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relaygrid/octabot/internal/httpbroker"
)

func TestDo_Success_ReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "Octabot" {
			t.Errorf("User-Agent = %q, want Octabot", r.Header.Get("User-Agent"))
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	b, err := httpbroker.NewBroker(slog.Default(), "", nil)
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}

	resp, err := b.Do(context.Background(), httpbroker.Request{Method: http.MethodGet, URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != "ok" {
		t.Errorf("body = %q, want ok", resp.Body)
	}
}

func TestDo_CustomUserAgent_Preserved(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := httpbroker.NewBroker(slog.Default(), "", nil)
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}

	_, err = b.Do(context.Background(), httpbroker.Request{
		Method:  http.MethodGet,
		URL:     srv.URL,
		Headers: map[string]string{"User-Agent": "custom-agent"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUA != "custom-agent" {
		t.Errorf("User-Agent = %q, want custom-agent (broker must not override when present)", gotUA)
	}
}

func TestDo_TracksPoolUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var deltas []int
	b, err := httpbroker.NewBroker(slog.Default(), "", func(delta int) {
		deltas = append(deltas, delta)
	})
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}

	if _, err := b.Do(context.Background(), httpbroker.Request{Method: http.MethodGet, URL: srv.URL}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(deltas) != 2 || deltas[0] != 1 || deltas[1] != -1 {
		t.Errorf("deltas = %v, want [1 -1]", deltas)
	}
}
