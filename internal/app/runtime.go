package app

import (
	"os"
	"sync/atomic"
)

// TestModeEnv is set to "1" by the test helpers so cmd/portal never binds a port under go test.
const TestModeEnv = "PORTAL_TEST_MODE"

var testMode atomic.Bool

func init() {
	RefreshTestMode()
}

// InTestMode reports whether the portal should skip runtime side effects.
func InTestMode() bool {
	return testMode.Load()
}

// RefreshTestMode re-reads the environment, for callers that set it after init.
func RefreshTestMode() {
	testMode.Store(os.Getenv(TestModeEnv) == "1")
}
