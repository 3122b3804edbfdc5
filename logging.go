package increment

import (
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger is the diagnostic logging surface a Database writes to. It is
// exactly a *logiface.Logger[logiface.Event], aliased so callers of this
// package don't need to spell out the generic instantiation.
type Logger = *logiface.Logger[logiface.Event]

// defaultLogger builds a logiface logger over zerolog, writing to stderr at
// informational level. Used when NewDatabase is not given WithLogger.
func defaultLogger() Logger {
	zl := zerolog.New(os.Stderr).With().Timestamp().Logger()
	return izerolog.L.New(
		izerolog.L.WithZerolog(zl),
		izerolog.L.WithLevel(logiface.LevelInformational),
	).Logger()
}

// logEvent fans an Event out to both the structured logger (for humans and
// log aggregation) and the EventSink (for programmatic observers), at Debug
// level so it's silent unless the caller opts in.
func logEvent(logger Logger, sink EventSink, ev Event) {
	sink.Event(ev)
	if logger == nil {
		return
	}
	if b := logger.Debug(); b.Enabled() {
		b.Int("thread", int(ev.Thread)).
			Int("kind", int(ev.Kind)).
			Str("key", ev.Key.String()).
			Log("increment: event")
	}
}
