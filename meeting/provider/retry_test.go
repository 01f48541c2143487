package provider

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      attempts,
		AttemptTimeout:   50 * time.Millisecond,
		RateLimitWaits:   []time.Duration{time.Millisecond},
		ServerErrorWaits: []time.Duration{time.Millisecond},
		TransientWaits:   []time.Duration{time.Millisecond},
	}
}

func TestCallWithRetry_SucceedsAfterRateLimit(t *testing.T) {
	t.Parallel()

	var calls int32
	out, err := CallWithRetry(context.Background(), fastPolicy(3), zerolog.Nop(), "test", func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return "", errors.New("POST /responses: 429 Too Many Requests")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("CallWithRetry: %v", err)
	}
	if out != "ok" || calls != 3 {
		t.Fatalf("out=%q calls=%d", out, calls)
	}
}

func TestCallWithRetry_TimeoutsExhaustRetries(t *testing.T) {
	t.Parallel()

	var calls int32
	_, err := CallWithRetry(context.Background(), fastPolicy(3), zerolog.Nop(), "test", func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err=%v, want ErrRetriesExhausted", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want wrapped DeadlineExceeded", err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d, want 3", calls)
	}
}

func TestCallWithRetry_NonRetryableReturnsImmediately(t *testing.T) {
	t.Parallel()

	var calls int32
	_, err := CallWithRetry(context.Background(), fastPolicy(3), zerolog.Nop(), "test", func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("400 invalid schema")
	})
	if err == nil || errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err=%v", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d, want 1", calls)
	}
}

func TestCallWithRetry_ParentCancelStops(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CallWithRetry(ctx, fastPolicy(3), zerolog.Nop(), "test", func(ctx context.Context) (string, error) {
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestRetrying_NilNext(t *testing.T) {
	t.Parallel()

	_, err := Retrying{Policy: fastPolicy(1)}.Complete(context.Background(), Request{})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"rate limit exceeded":      true,
		"503 Service Unavailable":  true,
		"dial tcp: i/o timeout":    true,
		"connection reset by peer": true,
		"invalid api key":          false,
	}
	for msg, want := range cases {
		if got := IsRetryable(errors.New(msg)); got != want {
			t.Fatalf("IsRetryable(%q)=%v, want %v", msg, got, want)
		}
	}
}

func TestRateLimited_PassesThrough(t *testing.T) {
	t.Parallel()

	var seen Request
	next := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		seen = req
		return "done", nil
	})
	c := NewRateLimited(next, 6000, 1)
	out, err := c.Complete(context.Background(), Request{Name: "x"})
	if err != nil || out != "done" || seen.Name != "x" {
		t.Fatalf("out=%q err=%v seen=%+v", out, err, seen)
	}

	if _, ok := NewRateLimited(next, 0, 1).(CompleterFunc); !ok {
		t.Fatalf("perMinute=0 should return next unchanged")
	}
}

type schemaProbe struct {
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
	Inner struct {
		N int `json:"n"`
	} `json:"inner"`
}

func TestGenerateSchema_StrictObjects(t *testing.T) {
	t.Parallel()

	s := GenerateSchema[schemaProbe]()
	if s["additionalProperties"] != false {
		t.Fatalf("additionalProperties=%v", s["additionalProperties"])
	}
	req, ok := s["required"].([]string)
	if !ok || len(req) != 3 {
		t.Fatalf("required=%v", s["required"])
	}
	inner := s["properties"].(map[string]interface{})["inner"].(map[string]interface{})
	if inner["additionalProperties"] != false {
		t.Fatalf("inner additionalProperties=%v", inner["additionalProperties"])
	}
}

func TestComposePrompt_EmbedsSchemaAndInput(t *testing.T) {
	t.Parallel()

	got := composePrompt(Request{
		Instructions: "Do the thing.",
		Input:        "payload",
		Schema:       map[string]any{"type": "object"},
	})
	if !strings.HasPrefix(got, "Do the thing.") {
		t.Fatalf("missing instructions: %q", got)
	}
	if !strings.Contains(got, `{"type":"object"}`) || !strings.HasSuffix(got, "INPUT:\npayload") {
		t.Fatalf("prompt=%q", got)
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	if k, err := ParseKind(" Gemini "); err != nil || k != KindGemini {
		t.Fatalf("k=%q err=%v", k, err)
	}
	if k, err := ParseKind(""); err != nil || k != KindOpenAI {
		t.Fatalf("k=%q err=%v", k, err)
	}
	if _, err := ParseKind("bard"); err == nil {
		t.Fatalf("expected error")
	}
}
