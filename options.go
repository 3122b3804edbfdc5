package increment

// databaseOptions holds configuration resolved by NewDatabase, mirroring
// eventloop/options.go's loopOptions shape.
type databaseOptions struct {
	lruCapacity        int
	maxCycleIterations int
	eventSink          EventSink
	logger             Logger
}

// Option configures a Database at construction.
type Option interface {
	applyDatabase(*databaseOptions) error
}

// optionImpl implements Option, mirroring eventloop's loopOptionImpl.
type optionImpl struct {
	apply func(*databaseOptions) error
}

func (o *optionImpl) applyDatabase(cfg *databaseOptions) error {
	return o.apply(cfg)
}

// WithLRUCapacity sets the default per-ingredient LRU capacity (number of
// values retained; 0 disables eviction entirely). Individual ingredients may
// still be constructed with their own override. Defaults to 0 (unbounded).
func WithLRUCapacity(capacity int) Option {
	return &optionImpl{func(cfg *databaseOptions) error {
		cfg.lruCapacity = capacity
		return nil
	}}
}

// WithMaxCycleIterations overrides the fixpoint iteration ceiling (default
// defaultMaxCycleIterations) before a Fixpoint query's cycle is abandoned
// with IterationOverflowError.
func WithMaxCycleIterations(n int) Option {
	return &optionImpl{func(cfg *databaseOptions) error {
		cfg.maxCycleIterations = n
		return nil
	}}
}

// WithEventSink installs an EventSink to observe core events. Defaults to
// NoopEventSink.
func WithEventSink(sink EventSink) Option {
	return &optionImpl{func(cfg *databaseOptions) error {
		if sink != nil {
			cfg.eventSink = sink
		}
		return nil
	}}
}

// WithLogger installs a structured logger. Defaults to defaultLogger(), a
// logiface logger over zerolog writing to stderr.
func WithLogger(logger Logger) Option {
	return &optionImpl{func(cfg *databaseOptions) error {
		cfg.logger = logger
		return nil
	}}
}

// resolveDatabaseOptions applies opts over the documented defaults,
// mirroring eventloop/options.go's resolveLoopOptions.
func resolveDatabaseOptions(opts []Option) (*databaseOptions, error) {
	cfg := &databaseOptions{
		maxCycleIterations: defaultMaxCycleIterations,
		eventSink:          NoopEventSink{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyDatabase(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		cfg.logger = defaultLogger()
	}
	return cfg, nil
}
