package meeting

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/theimaginaryfoundation/eos-tracker/meeting/provider"
)

// scriptedModel answers by request name. Each handler sees the call number (0-based)
// for that name.
type scriptedModel struct {
	mu       sync.Mutex
	calls    map[string]int
	requests []provider.Request
	handlers map[string]func(n int, req provider.Request) (string, error)
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{calls: map[string]int{}, handlers: map[string]func(int, provider.Request) (string, error){}}
}

func (m *scriptedModel) on(name string, fn func(n int, req provider.Request) (string, error)) *scriptedModel {
	m.handlers[name] = fn
	return m
}

func (m *scriptedModel) Complete(ctx context.Context, req provider.Request) (string, error) {
	m.mu.Lock()
	n := m.calls[req.Name]
	m.calls[req.Name]++
	m.requests = append(m.requests, req)
	fn := m.handlers[req.Name]
	m.mu.Unlock()

	if fn == nil {
		return "", fmt.Errorf("no handler for %s", req.Name)
	}
	return fn(n, req)
}

func (m *scriptedModel) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
}

func seqIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func isStrictRetry(req provider.Request) bool {
	return strings.Contains(req.Instructions, "FORMAT (STRICT)")
}
