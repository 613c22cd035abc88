package logger

import (
	"io"
	"sort"
	"sync"

	"github.com/go-logfmt/logfmt"
	"github.com/pkg/errors"
)

const (
	fieldLevel   = "level"
	fieldMessage = "msg"
	fieldTime    = "time"
)

// LogfmtOutlet writes entries in logfmt to an io.Writer.
type LogfmtOutlet struct {
	mtx sync.Mutex
	w   io.Writer
}

var _ Outlet = (*LogfmtOutlet)(nil)

func NewLogfmtOutlet(w io.Writer) *LogfmtOutlet {
	return &LogfmtOutlet{w: w}
}

func (o *LogfmtOutlet) WriteEntry(entry Entry) error {
	o.mtx.Lock()
	defer o.mtx.Unlock()

	enc := logfmt.NewEncoder(o.w)
	if err := enc.EncodeKeyval(fieldTime, entry.Time); err != nil {
		return errors.Wrap(err, "logfmt: encode time")
	}
	if err := enc.EncodeKeyval(fieldLevel, entry.Level.Short()); err != nil {
		return errors.Wrap(err, "logfmt: encode level")
	}
	if err := enc.EncodeKeyval(fieldMessage, entry.Message); err != nil {
		return errors.Wrap(err, "logfmt: encode message")
	}

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := enc.EncodeKeyval(k, entry.Fields[k]); err != nil {
			return errors.Wrapf(err, "logfmt: encode field '%s'", k)
		}
	}
	return enc.EndRecord()
}
