package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	StepsProcessed     Counter
	Rebalances         Counter
	AdjustmentsSkipped Counter
	UnhedgedSteps      Counter
	FeedReconnects     Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		StepsProcessed:     n,
		Rebalances:         n,
		AdjustmentsSkipped: n,
		UnhedgedSteps:      n,
		FeedReconnects:     n,
	}
}
