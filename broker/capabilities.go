package broker

// Capabilities describes the features supported by a broker backend.
// Use this to introspect what operations are available at runtime; the
// surrounding configuration gates destructive admin endpoints on
// SupportsPurge.
type Capabilities struct {
	// SupportsPurge indicates Clear and ClearAll are permitted. The memory
	// broker always allows purging; the SQS adapter only when explicitly
	// enabled in config.
	SupportsPurge bool

	// SupportsBatching indicates the broker can accept batch sends natively.
	SupportsBatching bool

	// SupportsOrdering indicates messages within one queue are delivered in
	// insertion order.
	SupportsOrdering bool

	// SupportsReceiveDelete indicates received messages carry a receipt
	// handle for a separate delete step. When false, Receive removes
	// messages from the queue (destructive read).
	SupportsReceiveDelete bool

	// SupportsLazyCreation indicates queues are created implicitly on first
	// send rather than having to pre-exist.
	SupportsLazyCreation bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64

	// MaxBatchSize is the maximum number of entries in one batch send
	// (0 = unlimited/unknown).
	MaxBatchSize int

	// Name is the human-readable name of the broker.
	Name string
}

// ReceiveIsDestructive returns true when a receive permanently removes the
// returned messages, so callers extending the port with visibility-timeout
// semantics know the broker cannot support them.
func (c Capabilities) ReceiveIsDestructive() bool {
	return !c.SupportsReceiveDelete
}

// Predefined capability sets for the built-in brokers.
var (
	// MemoryCapabilities for the in-process broker.
	MemoryCapabilities = Capabilities{
		Name:                  "memory",
		SupportsPurge:         true,
		SupportsBatching:      true,
		SupportsOrdering:      true,
		SupportsReceiveDelete: false,
		SupportsLazyCreation:  true,
		MaxMessageSize:        262144, // mirror SQS so local runs catch oversize payloads
		MaxBatchSize:          10,
	}

	// SQSCapabilities for the AWS SQS adapter. SupportsPurge reflects the
	// feature flag at build time, so the registry default keeps it false.
	SQSCapabilities = Capabilities{
		Name:                  "sqs",
		SupportsPurge:         false,
		SupportsBatching:      true,
		SupportsOrdering:      true,
		SupportsReceiveDelete: true,
		SupportsLazyCreation:  false,
		MaxMessageSize:        262144, // 256KB
		MaxBatchSize:          10,
	}
)

// GetCapabilities returns the capabilities for a broker by name.
// Returns a zero Capabilities struct if the broker is unknown.
func GetCapabilities(brokerName string) Capabilities {
	return DefaultRegistry.GetCapabilities(brokerName)
}
