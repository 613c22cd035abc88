package consumer

import (
	"fmt"
	"os"
)

var debugEnabled bool = false

func init() {
	if os.Getenv("FLOWD_NETWORK_CONSUMER_DEBUG") != "" {
		debugEnabled = true
	}
}

//nolint[:deadcode,unused]
func debug(format string, args ...interface{}) {
	if debugEnabled {
		fmt.Fprintf(os.Stderr, "network/consumer: %s\n", fmt.Sprintf(format, args...))
	}
}
