package testutil

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const testLogLevelEnvName = "TEST_LOG_LEVEL"

// Tests importing this package log at trace level, discarded unless the test
// binary runs verbose. TEST_LOG_LEVEL overrides the level.
func init() {
	level := logrus.TraceLevel
	if configured, err := logrus.ParseLevel(os.Getenv(testLogLevelEnvName)); err == nil {
		level = configured
	}
	logrus.SetLevel(level)

	if !isVerbose(os.Args) {
		logrus.StandardLogger().Out = io.Discard
	}
}

func isVerbose(args []string) bool {
	for _, arg := range args {
		if arg == "-test.v" || arg == "-test.v=true" || strings.HasPrefix(arg, "-test.v=test2json") {
			return true
		}
	}
	return false
}
