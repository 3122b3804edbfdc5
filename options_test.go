package increment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDatabaseOptions_Defaults(t *testing.T) {
	cfg, err := resolveDatabaseOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultMaxCycleIterations, cfg.maxCycleIterations)
	assert.Equal(t, 0, cfg.lruCapacity)
	assert.IsType(t, NoopEventSink{}, cfg.eventSink)
	require.NotNil(t, cfg.logger)
}

func TestResolveDatabaseOptions_Overrides(t *testing.T) {
	var captured Event
	sink := EventSinkFunc(func(e Event) { captured = e })

	cfg, err := resolveDatabaseOptions([]Option{
		WithLRUCapacity(64),
		WithMaxCycleIterations(5),
		WithEventSink(sink),
	})
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.lruCapacity)
	assert.Equal(t, 5, cfg.maxCycleIterations)

	cfg.eventSink.Event(Event{Kind: EventWillExecute})
	assert.Equal(t, EventWillExecute, captured.Kind)
}

func TestResolveDatabaseOptions_NilOptionIsSkipped(t *testing.T) {
	cfg, err := resolveDatabaseOptions([]Option{nil, WithLRUCapacity(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.lruCapacity)
}

func TestWithEventSink_NilLeavesDefault(t *testing.T) {
	cfg, err := resolveDatabaseOptions([]Option{WithEventSink(nil)})
	require.NoError(t, err)
	assert.IsType(t, NoopEventSink{}, cfg.eventSink)
}

func TestWithLogger_Override(t *testing.T) {
	custom := defaultLogger()
	cfg, err := resolveDatabaseOptions([]Option{WithLogger(custom)})
	require.NoError(t, err)
	assert.Same(t, custom, cfg.logger)
}
