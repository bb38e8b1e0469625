package app

import (
	"os"
	"sync"
	"sync/atomic"
)

// TestModeEnv switches off side effects such as .env loading and the HTTP listener.
const TestModeEnv = "ACCOUNTS_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

func detectTestMode() {
	testModeFlag.Store(os.Getenv(TestModeEnv) == "1")
}

// InTestMode reports whether ACCOUNTS_TEST_MODE=1 was set when first asked.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode re-reads the flag after environment changes.
func RefreshTestMode() {
	testModeOnce.Do(func() {})
	detectTestMode()
}
