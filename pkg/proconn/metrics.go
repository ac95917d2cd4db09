package proconn

// Metrics receives counters from the receive loop. Implementations must be
// cheap; they run on the receiving goroutine.
type Metrics interface {
	ObserveDatagram(bytes int)
	ObserveEvent(kind Kind)
	ObserveDropped(kind Kind)
	ObserveIgnored(tag uint32)
}

type nopMetrics struct{}

func (nopMetrics) ObserveDatagram(int)   {}
func (nopMetrics) ObserveEvent(Kind)     {}
func (nopMetrics) ObserveDropped(Kind)   {}
func (nopMetrics) ObserveIgnored(uint32) {}
