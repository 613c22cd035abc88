package logger

import (
	"fmt"
	"os"
)

type stderrLoggerOutlet struct{}

func (stderrLoggerOutlet) WriteEntry(entry Entry) error {
	fmt.Fprintf(os.Stderr, "%#v\n", entry)
	return nil
}

func NewStderrDebugLogger() Logger {
	outlets := NewOutlets()
	outlets.Add(&stderrLoggerOutlet{}, Debug)
	return NewLogger(outlets)
}
