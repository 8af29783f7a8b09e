//go:build !integration

package knowledge

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for the package: SearchBoth
// spawns goroutines per call and must never strand one past Wait.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
