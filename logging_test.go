package increment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogger_ReturnsUsableLogger(t *testing.T) {
	logger := defaultLogger()
	require.NotNil(t, logger)
	assert.NotPanics(t, func() {
		logEvent(logger, NoopEventSink{}, Event{Kind: EventWillExecute})
	})
}

func TestLogEvent_AlwaysNotifiesSink(t *testing.T) {
	var got Event
	sink := EventSinkFunc(func(e Event) { got = e })

	logEvent(nil, sink, Event{Thread: 3, Kind: EventWillBlockOnKey, Key: DatabaseKeyIndex{Ingredient: 1, Key: 2}})

	assert.Equal(t, ThreadID(3), got.Thread)
	assert.Equal(t, EventWillBlockOnKey, got.Kind)
}

func TestLogEvent_NilLoggerDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		logEvent(nil, NoopEventSink{}, Event{Kind: EventWillExecute})
	})
}
