package report

import "fmt"

// ReportError reports a compilation error: a condition that prevents the
// current unit of work from completing but leaves the process able to
// continue (eg. a lowering failure that falls back to the interpreter).
func ReportError(msg string, args ...interface{}) {
	ensureInit()

	rep.m.Lock()
	defer rep.m.Unlock()

	rep.isErr = true

	if rep.logLevel >= LogLevelError {
		displayError(fmt.Sprintf(msg, args...))
	}
}

// ReportWarning reports a compilation warning.
func ReportWarning(msg string, args ...interface{}) {
	ensureInit()

	rep.m.Lock()
	defer rep.m.Unlock()

	if rep.logLevel >= LogLevelWarn {
		displayWarning(fmt.Sprintf(msg, args...))
	}
}

// ReportInfo reports an informational compilation message.
func ReportInfo(msg string, args ...interface{}) {
	ensureInit()

	rep.m.Lock()
	defer rep.m.Unlock()

	if rep.logLevel >= LogLevelVerbose {
		displayInfo(fmt.Sprintf(msg, args...))
	}
}

// ReportICE reports an internal compiler error and panics.  This is only used
// for conditions that indicate a broken input contract, never for recoverable
// lowering failures.
func ReportICE(msg string, args ...interface{}) {
	ensureInit()

	rep.m.Lock()
	rep.isErr = true
	formatted := fmt.Sprintf(msg, args...)

	if rep.logLevel >= LogLevelError {
		displayICE(formatted)
	}
	rep.m.Unlock()

	panic("internal compiler error: " + formatted)
}
