package calibcompare

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain snapshots the goroutines running before the suite and fails the run
// if any goroutine started by a test outlives it.
func TestMain(m *testing.M) {
	baseline := goleak.IgnoreCurrent()
	goleak.VerifyTestMain(m, baseline)
}
