package log

// Logger receives toolkit events from the bridge, client and echo
// loops. Implementations must be safe for concurrent use and should
// return quickly; a slow Log call stalls the relay that emitted it.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards every event. The zero value is ready to use.
type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

// MultiLogger fans each event out to every member in order. The usual
// pairing is a FileLogger for the machine-readable trace plus a
// SlogAdapter for the console.
type MultiLogger []Logger

// NewMultiLogger combines loggers into one.
func NewMultiLogger(loggers ...Logger) MultiLogger {
	return MultiLogger(loggers)
}

func (m MultiLogger) Log(event Event) {
	for _, l := range m {
		l.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = MultiLogger(nil)
)
