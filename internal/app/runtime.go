package app

import (
	"os"
	"strconv"
)

const testModeEnv = "BACKOFFICE_TEST_MODE"

// InTestMode reports whether BACKOFFICE_TEST_MODE is set to a true value. The
// binaries exit early in that mode so package tests can import them safely.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(testModeEnv))
	return err == nil && on
}
