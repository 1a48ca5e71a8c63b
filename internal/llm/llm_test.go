package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"response":"Tech/Networking"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	got, err := c.Generate(context.Background(), "classify this", "llama3.1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Tech/Networking" {
		t.Errorf("response = %q", got)
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	vec, err := c.Embed(context.Background(), "text", "nomic-embed-text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("vector = %v", vec)
	}
}

func TestErrorConditions(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name:    "model not found status",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			want:    ErrModelNotFound,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			want:    ErrUnavailable,
		},
		{
			name: "in-band model error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error":"model 'nope' not found"}`))
			},
			want: ErrModelNotFound,
		},
		{
			name:    "empty completion",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"response":"  "}`)) },
			want:    ErrMalformed,
		},
		{
			name:    "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`not json`)) },
			want:    ErrMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c := NewClient(srv.URL, time.Second)
			_, err := c.Generate(context.Background(), "p", "m")
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUnreachableServiceIsUnavailable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.Generate(context.Background(), "p", "m")
	if !errors.Is(err, ErrUnavailable) && !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want unavailable or timeout", err)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return ErrModelNotFound
	})
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent error)", calls)
	}
}

func TestRetryRecoversTransientError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return ErrUnavailable
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return ErrTimeout
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, time.Millisecond, func() error { return ErrUnavailable })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
