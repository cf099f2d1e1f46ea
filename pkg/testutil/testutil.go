// Package testutil provides shared helpers for exercising the agent pool in
// tests: a test-scoped logger, bounded contexts, and configurable fake
// agents and factories.
package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// TestLogger creates a logger that writes through the test's output and is
// cleaned up with the test.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a context with a 30-second ceiling so a deadlocked
// pool operation fails the test instead of hanging the run. The caller must
// call the cancel function.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Eventually polls the condition every 10ms until it holds or the timeout
// expires.
func Eventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
