package logger

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

// Levels ordered least severe to most severe
var AllLevels = []Level{Debug, Info, Warn, Error}

func (l Level) Short() string {
	switch l {
	case Debug:
		return "DEBG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERRO"
	default:
		return fmt.Sprintf("%d", int(l))
	}
}

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("%d", int(l))
	}
}

func ParseLevel(s string) (Level, error) {
	for _, l := range AllLevels {
		if s == l.String() {
			return l, nil
		}
	}
	return -1, errors.Errorf("unknown level '%s'", s)
}

type Fields map[string]interface{}

type Entry struct {
	Level   Level
	Message string
	Time    time.Time
	Fields  Fields
}

// An Outlet receives log entries produced by the Logger and writes them to
// some destination.
type Outlet interface {
	// WriteEntry writes the entry to the destination.
	//
	// The logger waits for all outlets to return from WriteEntry() before
	// returning from the log call. An implementation must therefore not
	// block indefinitely.
	//
	// Note: os.Stderr is used by the Logger itself for reporting errors
	// returned from outlets, so an outlet should probably not log there.
	WriteEntry(entry Entry) error
}

type Outlets struct {
	mtx  sync.RWMutex
	outs map[Level][]Outlet
}

func NewOutlets() *Outlets {
	return &Outlets{
		outs: make(map[Level][]Outlet, len(AllLevels)),
	}
}

func (os *Outlets) DeepCopy() *Outlets {
	cp := NewOutlets()
	os.mtx.RLock()
	defer os.mtx.RUnlock()
	for level := range os.outs {
		cp.outs[level] = append(cp.outs[level], os.outs[level]...)
	}
	return cp
}

func (os *Outlets) Add(outlet Outlet, minLevel Level) {
	os.mtx.Lock()
	defer os.mtx.Unlock()
	for _, l := range AllLevels[minLevel:] {
		os.outs[l] = append(os.outs[l], outlet)
	}
}

func (os *Outlets) Get(level Level) []Outlet {
	os.mtx.RLock()
	defer os.mtx.RUnlock()
	return os.outs[level]
}

// GetLoggerErrorOutlet returns the first outlet added with minLevel <= Error,
// or a discarding outlet if none exists.
func (os *Outlets) GetLoggerErrorOutlet() Outlet {
	os.mtx.RLock()
	defer os.mtx.RUnlock()
	if len(os.outs[Error]) < 1 {
		return nullOutlet{}
	}
	return os.outs[Error][0]
}

type nullOutlet struct{}

func (nullOutlet) WriteEntry(entry Entry) error { return nil }
