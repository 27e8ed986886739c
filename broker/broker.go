// Package broker defines the core interfaces and types for queueflow brokers.
// Each broker implementation (memory, sqs) lives in its own sub-package and
// registers itself with the broker registry.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

// Message is the unit of work stored on a queue. The broker treats Body as
// opaque bytes; Attributes are transport metadata for consumers, never
// interpreted by the broker itself.
type Message struct {
	// ID is the unique message identifier. Assigned by the producer (or the
	// dispatcher when absent) and immutable once set. Uniqueness is scoped to
	// a single queue.
	ID string `json:"id"`

	// Body is the serialized payload.
	Body []byte `json:"body"`

	// Attributes carries optional string metadata attached to the message.
	Attributes map[string]string `json:"attributes,omitempty"`

	// EnqueuedAt is set by the broker when it accepts the message. Producers
	// must leave it zero.
	EnqueuedAt time.Time `json:"enqueued_at,omitzero"`

	// ReceiptHandle is populated on received messages by brokers that support
	// an explicit delete step (SQS). The memory broker removes messages on
	// receive and leaves it empty.
	ReceiptHandle string `json:"receipt_handle,omitempty"`
}

// Copy returns a deep copy of the message so brokers can hand out results
// without sharing the attribute map with callers.
func (m Message) Copy() Message {
	out := m
	if len(m.Body) > 0 {
		out.Body = make([]byte, len(m.Body))
		copy(out.Body, m.Body)
	}
	if m.Attributes != nil {
		out.Attributes = make(map[string]string, len(m.Attributes))
		for k, v := range m.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// SendResult acknowledges a single accepted message.
type SendResult struct {
	MessageID string `json:"message_id"`
	QueueName string `json:"queue_name"`
}

// BatchError describes one failed entry of a batch send.
type BatchError struct {
	// MessageID identifies the failed entry.
	MessageID string `json:"message_id"`
	// Code is a stable machine-readable failure code.
	Code string `json:"code"`
	// Message is the human-readable reason.
	Message string `json:"message"`
	// SenderFault is true when the entry itself was invalid rather than the
	// transport failing.
	SenderFault bool `json:"sender_fault"`
}

// BatchResult reports the per-message outcome of a batch send. Batches are
// never all-or-nothing: a partial failure yields entries in both slices.
type BatchResult struct {
	Successful []SendResult `json:"successful"`
	Failed     []BatchError `json:"failed"`
}

// AllSucceeded returns true when no entry failed.
func (r BatchResult) AllSucceeded() bool {
	return len(r.Failed) == 0
}

// Broker is the transport-agnostic messaging port. Both the in-memory broker
// and the SQS adapter implement it. Operations are synchronous and
// context-driven; asynchronous completion is layered on top by the dispatcher.
//
// Lookup operations never fail for a missing queue: QueueExists returns
// false, MessageCount returns 0, and QueueAttributes returns an empty map.
type Broker interface {
	// Send stores one message on the named queue. The memory broker creates
	// unknown queues on first send; the SQS adapter requires them to exist.
	Send(ctx context.Context, queueName string, msg Message) (SendResult, error)

	// SendBatch stores multiple messages, reporting per-entry success and
	// failure. An error is returned only when the whole batch could not be
	// attempted.
	SendBatch(ctx context.Context, queueName string, msgs []Message) (BatchResult, error)

	// Receive returns up to maxMessages from the head of the queue in FIFO
	// order. Delivery is at-least-once; exclusive delivery is not guaranteed.
	Receive(ctx context.Context, queueName string, maxMessages int) ([]Message, error)

	// QueueExists reports whether the queue is known to the broker.
	QueueExists(ctx context.Context, queueName string) (bool, error)

	// MessageCount returns the current queue depth.
	MessageCount(ctx context.Context, queueName string) (int64, error)

	// QueueURL returns an opaque locator for the queue.
	QueueURL(ctx context.Context, queueName string) (string, error)

	// QueueAttributes returns a snapshot of broker-level queue configuration.
	QueueAttributes(ctx context.Context, queueName string) (map[string]string, error)

	// Clear removes every message from one queue. Brokers that do not permit
	// purging return ErrPurgeUnsupported.
	Clear(ctx context.Context, queueName string) error

	// ClearAll removes every message from every known queue.
	ClearAll(ctx context.Context) error

	// Close releases broker resources.
	Close() error
}

// CapabilitiesProvider is implemented by brokers that can report their
// effective capabilities, including configuration-dependent ones such as
// purge gating.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// Builder is the function signature for creating a broker from config.
// Each broker package provides a Builder that it registers on init.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Broker, error)

// Config provides the configuration values needed by brokers. The interface
// lets broker packages read only the keys they care about without depending
// on the full config package.
type Config interface {
	// GetQueueSystem returns the broker type name ("memory" or "sqs").
	GetQueueSystem() string

	// AWS / SQS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string

	// GetPurgeEnabled reports whether destructive purge operations are
	// allowed against the remote broker. The memory broker ignores it.
	GetPurgeEnabled() bool
}

// Sentinel errors shared by all broker implementations.
var (
	// ErrQueueNotFound is returned by strict single-queue lookups when the
	// caller must distinguish "never existed" from "empty". Port operations
	// themselves prefer false/0/empty over this error.
	ErrQueueNotFound = errors.New("queueflow: queue not found")

	// ErrPurgeUnsupported is returned when Clear or ClearAll is invoked on a
	// broker configuration that forbids destructive purges.
	ErrPurgeUnsupported = errors.New("queueflow: purge is not supported by this broker configuration")

	// ErrEmptyQueueName rejects operations addressed to an unnamed queue.
	ErrEmptyQueueName = errors.New("queueflow: queue name is required")

	// ErrBrokerClosed rejects operations on a closed broker.
	ErrBrokerClosed = errors.New("queueflow: broker is closed")

	// ErrMessageTooLarge rejects a message body exceeding the broker's
	// MaxMessageSize capability.
	ErrMessageTooLarge = errors.New("queueflow: message exceeds maximum size")

	// ErrEmptyBatch rejects a batch send with no entries.
	ErrEmptyBatch = errors.New("queueflow: batch contains no messages")

	// ErrBatchTooLarge rejects a batch send with more entries than the
	// broker's MaxBatchSize capability allows.
	ErrBatchTooLarge = errors.New("queueflow: batch exceeds maximum entry count")
)

// TransportError wraps a connectivity or authorization failure from the
// underlying transport. Callers may retry with backoff; this layer never
// retries on their behalf.
type TransportError struct {
	// Op is the port operation that failed.
	Op string
	// Queue is the queue the operation addressed, if any.
	Queue string
	// Err is the underlying cause.
	Err error
}

func (e *TransportError) Error() string {
	if e.Queue == "" {
		return fmt.Sprintf("queueflow: transport failure in %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("queueflow: transport failure in %s on queue %q: %v", e.Op, e.Queue, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err as a TransportError. Returns nil for a nil err.
func NewTransportError(op, queue string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Queue: queue, Err: err}
}

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
