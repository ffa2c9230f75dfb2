package stats

// NoopProvider discards all metric updates. Used in tests where the
// component under test is not the metrics pipeline.
type NoopProvider struct{}

func (NoopProvider) Incr(name string)           {}
func (NoopProvider) Decr(name string)           {}
func (NoopProvider) Add(name string, delta int) {}
func (NoopProvider) RegisterMetric(name string) {}
func (NoopProvider) Run()                       {}
