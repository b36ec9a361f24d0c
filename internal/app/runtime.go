package app

import (
	"os"
	"sync"
)

// TestModeEnv is set by the testing package so binaries skip network startup.
const TestModeEnv = "PORTAL_TEST_MODE"

var (
	testModeOnce  sync.Once
	testModeValue bool
)

// InTestMode reports whether the binaries should skip runtime side effects
// such as dialing postgres, redis or the object store.
func InTestMode() bool {
	testModeOnce.Do(func() {
		testModeValue = os.Getenv(TestModeEnv) == "1"
	})
	return testModeValue
}
