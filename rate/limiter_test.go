package rate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/irsalhamdi/craft-market/api/weberr"
)

func TestLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	burst := 1

	interval := 10 * time.Millisecond
	lim := Every(interval)
	r := NewLimiter(ctx, burst, 100*time.Minute, lim)

	tooshort := 1 * time.Millisecond

	client := "buyer@test.com"
	expected := []bool{true, false, true, true, false, false}
	waits := []time.Duration{tooshort, interval, interval, tooshort, tooshort, tooshort}
	for i, exp := range expected {
		if got := r.Check(client); got != exp {
			t.Fatalf("iteration %d: expected %v, but got %v", i, exp, got)
		}
		time.Sleep(waits[i])
	}
}

func TestLimiterWithBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := "buyer@test.com"
	burst := 10

	interval := 100 * time.Millisecond
	lim := Every(interval)

	tooshort := 10 * time.Millisecond

	shortest := 1 * time.Millisecond

	expected := []bool{true, true, true, true, true, true, true, true, true, true}
	waits := []time.Duration{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}

	expected = append(expected, false, true, true, false, false, false)
	waits = append(waits, interval, interval, tooshort, tooshort, shortest, shortest)

	rr := NewLimiter(ctx, burst, 100*time.Minute, lim)
	for i, exp := range expected {
		if got := rr.Check(client); got != exp {
			t.Fatalf("iteration %d: expected %v, but got %v", i, exp, got)
		}
		time.Sleep(waits[i])
	}
}

func TestSweepForgetsIdleClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLimiter(ctx, 1, time.Minute, Every(time.Second))
	l.Check("a")
	l.Check("b")

	l.sweep(time.Now().Add(2 * time.Minute))
	if n := l.size(); n != 0 {
		t.Fatalf("clients after sweep = %d, want 0", n)
	}
}

func TestMiddlewareRejects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLimiter(ctx, 1, time.Minute, Every(time.Hour))
	h := Middleware(l, RemoteAddr)(func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})

	r := httptest.NewRequest(http.MethodPost, "/orders/stripe", nil)
	if err := h(r.Context(), httptest.NewRecorder(), r); err != nil {
		t.Fatalf("first request rejected: %v", err)
	}

	err := h(r.Context(), httptest.NewRecorder(), r)
	if _, status, ok := weberr.Response(err); !ok || status != http.StatusTooManyRequests {
		t.Fatalf("second request: status=%d ok=%v", status, ok)
	}
}
