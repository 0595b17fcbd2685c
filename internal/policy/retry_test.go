package policy

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   Class
	}{
		{"too many requests", 429, "", ClassRetryable},
		{"internal error", 500, "", ClassRetryable},
		{"bad gateway", 502, "", ClassRetryable},
		{"unauthorized", 401, "", ClassPermanent},
		{"forbidden", 403, "", ClassPermanent},
		{"validation", 400, `{"code":"INVALID_FIELD"}`, ClassPermanent},
		{"not found", 404, "", ClassPermanent},
		{"conflict with retryable code", 409, `{"code":"CONCURRENT_MODIFICATION"}`, ClassRetryable},
		{"rate limit business code on 400", 400, `{"code":"RATE_LIMITED"}`, ClassRetryable},
	}
	for _, tc := range cases {
		if got := Classify(tc.status, []byte(tc.body)); got != tc.want {
			t.Fatalf("%s: Classify(%d, %q) = %v, want %v", tc.name, tc.status, tc.body, got, tc.want)
		}
	}
}

func TestProfileDelayBounds(t *testing.T) {
	p := Profile{MaxAttempts: 5, MinDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	if d := p.Delay(1); d != 100*time.Millisecond {
		t.Fatalf("attempt 1 delay = %s, want 100ms", d)
	}
	if d := p.Delay(2); d != 200*time.Millisecond {
		t.Fatalf("attempt 2 delay = %s, want 200ms", d)
	}
	if d := p.Delay(10); d != time.Second {
		t.Fatalf("attempt 10 delay = %s, want cap 1s", d)
	}
	if d := p.Delay(0); d != 100*time.Millisecond {
		t.Fatalf("attempt 0 delay = %s, want floor 100ms", d)
	}
}
