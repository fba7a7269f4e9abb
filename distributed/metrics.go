package distributed

// LookupResult labels the outcome of a forwarded Get.
type LookupResult string

const (
	LookupHit   LookupResult = "hit"
	LookupMiss  LookupResult = "miss"
	LookupError LookupResult = "error"
)

// Metrics exposes distributed-layer observability hooks.
type Metrics interface {
	// Replicated is called once per replica write, after retries.
	Replicated(ok bool)
	RemoteLookup(result LookupResult)
	// Peers reports the registry size after a membership change.
	Peers(n int)
}

// NoopMetrics is the default Metrics implementation.
type NoopMetrics struct{}

func (NoopMetrics) Replicated(bool)           {}
func (NoopMetrics) RemoteLookup(LookupResult) {}
func (NoopMetrics) Peers(int)                 {}

var _ Metrics = NoopMetrics{}
