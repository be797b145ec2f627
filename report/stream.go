package report

import (
	"fmt"
	"io"
)

// LogStream is a per-compilation trace sink.  One stream is created for each
// lowering invocation and threaded through the pass; it tags every line with
// the name of the function being compiled.  A nil LogStream discards all
// output, so callers never need to guard their trace calls.
type LogStream struct {
	name string
	out  io.Writer
}

// NewLogStream creates a log stream for the named compilation writing to the
// given sink.  Pass a nil writer to discard traces.
func NewLogStream(name string, out io.Writer) *LogStream {
	return &LogStream{name: name, out: out}
}

// Logf writes a formatted trace line.
func (ls *LogStream) Logf(msg string, args ...interface{}) {
	if ls == nil || ls.out == nil {
		return
	}

	fmt.Fprintf(ls.out, "[%s] %s\n", ls.name, fmt.Sprintf(msg, args...))
}

// Name returns the name of the compilation this stream belongs to.
func (ls *LogStream) Name() string {
	if ls == nil {
		return ""
	}

	return ls.name
}
