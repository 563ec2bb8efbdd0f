// Package testutil provides shared helpers for scribe tests.
package testutil

import (
	"context"
	"testing"
	"time"
)

// TestContext returns a context that is canceled when the test ends,
// so goroutines started during the test cannot outlive it.
func TestContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout is TestContext with an upper bound, for tests
// that exercise retry budgets and must not hang on regression.
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
