package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// WaitFor polls condition every interval and fails the test if it is still
// false after timeout
func WaitFor(t *testing.T, timeout, interval time.Duration, condition func() bool) {
	t.Helper()

	require.LessOrEqual(t, interval, timeout, "interval exceeds timeout")

	deadline := time.Now().Add(timeout)
	for !condition() {
		if time.Now().After(deadline) {
			require.FailNowf(t, "condition not met", "waited %v", timeout)
		}
		time.Sleep(interval)
	}
}
