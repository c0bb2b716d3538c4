package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"kvbridge/envelope"
)

func okHandler(ctx context.Context, req *envelope.Envelope) *envelope.Envelope {
	return envelope.Success(req, "ok")
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *envelope.Envelope) *envelope.Envelope {
				order = append(order, name+".before")
				resp := next(ctx, req)
				order = append(order, name+".after")
				return resp
			}
		}
	}

	h := Chain(tag("A"), tag("B"))(okHandler)
	h(context.Background(), &envelope.Envelope{Action: envelope.ActionGetItem, Ref: "r"})

	want := []string{"A.before", "B.before", "B.after", "A.after"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("chain order = %v, want %v", order, want)
		}
	}
}

func TestRateLimitRejectsBeyondBurst(t *testing.T) {
	h := RateLimit(1, 2)(okHandler)
	req := &envelope.Envelope{Action: envelope.ActionGetItem, Ref: "r"}

	allowed, limited := 0, 0
	for i := 0; i < 5; i++ {
		resp := h(context.Background(), req)
		if resp.Action == envelope.ActionError {
			limited++
			if resp.Message != "rate limit exceeded" {
				t.Errorf("unexpected error message %q", resp.Message)
			}
			if resp.Ref != "r" {
				t.Errorf("rejection must echo the ref, got %q", resp.Ref)
			}
		} else {
			allowed++
		}
	}

	if allowed != 2 || limited != 3 {
		t.Errorf("allowed=%d limited=%d, want 2/3 with burst 2", allowed, limited)
	}
}

func TestTimeoutConvertsSlowHandler(t *testing.T) {
	slow := func(ctx context.Context, req *envelope.Envelope) *envelope.Envelope {
		time.Sleep(200 * time.Millisecond)
		return envelope.Success(req, nil)
	}

	h := Timeout(20 * time.Millisecond)(slow)
	resp := h(context.Background(), &envelope.Envelope{Action: envelope.ActionClear, Ref: "r"})

	if resp.Action != envelope.ActionError || resp.Message != "request timed out" {
		t.Fatalf("expected timeout error envelope, got %+v", resp)
	}
}

func TestRetryOnTransientError(t *testing.T) {
	attempts := 0
	flaky := func(ctx context.Context, req *envelope.Envelope) *envelope.Envelope {
		attempts++
		if attempts < 3 {
			return envelope.Error(req, "database is locked")
		}
		return envelope.Success(req, nil)
	}

	h := Retry(5, time.Millisecond)(flaky)
	resp := h(context.Background(), &envelope.Envelope{Action: envelope.ActionSetItem, Ref: "r", Key: "k"})

	if resp.Action != envelope.ActionSuccess {
		t.Fatalf("expected eventual success, got %+v", resp)
	}
	if attempts != 3 {
		t.Errorf("handler ran %d times, want 3", attempts)
	}
}

func TestRetryGivesUpOnPermanentError(t *testing.T) {
	attempts := 0
	broken := func(ctx context.Context, req *envelope.Envelope) *envelope.Envelope {
		attempts++
		return envelope.Error(req, "no such table")
	}

	h := Retry(5, time.Millisecond)(broken)
	resp := h(context.Background(), &envelope.Envelope{Action: envelope.ActionGetItem, Ref: "r"})

	if resp.Action != envelope.ActionError {
		t.Fatalf("expected error envelope, got %+v", resp)
	}
	if attempts != 1 {
		t.Errorf("permanent error retried: %d attempts", attempts)
	}
}

func TestMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	failing := func(ctx context.Context, req *envelope.Envelope) *envelope.Envelope {
		return envelope.Error(req, "boom")
	}

	h := Metrics(reg)(okHandler)
	h(context.Background(), &envelope.Envelope{Action: envelope.ActionGetItem, Ref: "r"})
	h(context.Background(), &envelope.Envelope{Action: envelope.ActionGetItem, Ref: "r"})

	hf := Metrics(prometheus.NewRegistry())(failing)
	hf(context.Background(), &envelope.Envelope{Action: envelope.ActionSetItem, Ref: "r"})

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() != "kvbridge_requests_total" {
			continue
		}
		found = true
		for _, m := range mf.GetMetric() {
			if m.GetCounter().GetValue() != 2 {
				t.Errorf("requests_total = %v, want 2", m.GetCounter().GetValue())
			}
		}
	}
	if !found {
		t.Fatal("kvbridge_requests_total not registered")
	}
}
