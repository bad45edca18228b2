package app

import (
	"os"
	"strconv"
)

// TestModeEnv makes ledgerd exit before touching Postgres or Redis when set
// to a true value.
const TestModeEnv = "LEDGERCORE_TEST_MODE"

// InTestMode reports whether TestModeEnv is set.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}
