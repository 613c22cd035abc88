package buffer

import (
	"fmt"
	"os"
)

var debugEnabled bool = false

func init() {
	if os.Getenv("FLOWD_NETWORK_BUFFER_DEBUG") != "" {
		debugEnabled = true
	}
}

//nolint[:deadcode,unused]
func debug(format string, args ...interface{}) {
	if debugEnabled {
		fmt.Fprintf(os.Stderr, "network/buffer: %s\n", fmt.Sprintf(format, args...))
	}
}
