// Package memory provides an in-process broker for queueflow.
// It emulates enough managed-queue semantics (independent per-queue FIFO
// storage, receive with limit, purge) to be a drop-in substitute during local
// development and tests.
//
// One deliberate divergence from SQS: Receive removes the returned messages
// from the queue instead of hiding them behind a visibility timeout. There is
// no separate delete step. Implementations extending the port towards
// protocol fidelity should add an explicit visibility-timeout/receipt-handle
// model instead of building on this broker.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/oddiya/queueflow/broker"
)

// BrokerName is the name used to register this broker.
const BrokerName = "memory"

// Default attributes assigned to lazily created queues. They are cosmetic:
// the memory broker enforces none of them.
const (
	DefaultVisibilityTimeout      = "30"
	DefaultMessageRetentionPeriod = "345600"
	DefaultDelaySeconds           = "0"
)

const fallbackAccountID = "000000000000"

func init() {
	broker.RegisterWithCapabilities(BrokerName, Build, broker.MemoryCapabilities)
}

// Build creates a new in-process broker.
func Build(ctx context.Context, cfg broker.Config, logger watermill.LoggerAdapter) (broker.Broker, error) {
	accountID := ""
	if cfg != nil {
		accountID = cfg.GetAWSAccountID()
	}
	return New(accountID, logger), nil
}

// Capabilities returns the capabilities of this broker.
func Capabilities() broker.Capabilities {
	return broker.MemoryCapabilities
}

// queue is one named FIFO store. Its mutex guards msgs and attrs; depth is
// kept in lockstep under the same mutex but read atomically so MessageCount
// stays O(1) without contending with senders.
type queue struct {
	mu    sync.Mutex
	msgs  []broker.Message
	attrs map[string]string
	depth atomic.Int64
}

func (q *queue) snapshotAttrs() map[string]string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]string, len(q.attrs)+1)
	for k, v := range q.attrs {
		out[k] = v
	}
	out["ApproximateNumberOfMessages"] = strconv.FormatInt(q.depth.Load(), 10)
	return out
}

// Broker is the in-process broker.Broker implementation. Queues are created
// lazily on first send; operations on different queues never contend.
type Broker struct {
	logger    watermill.LoggerAdapter
	accountID string

	mu     sync.RWMutex
	queues map[string]*queue

	closed atomic.Bool

	// now is a test hook for EnqueuedAt stamping.
	now func() time.Time
}

// New creates an empty in-process broker. The accountID is only used to
// fabricate deterministic queue URLs; pass "" for the default.
func New(accountID string, logger watermill.LoggerAdapter) *Broker {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if accountID == "" {
		accountID = fallbackAccountID
	}
	return &Broker{
		logger:    logger,
		accountID: accountID,
		queues:    make(map[string]*queue),
		now:       time.Now,
	}
}

// getQueue returns the named queue or nil without creating it.
func (b *Broker) getQueue(name string) *queue {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.queues[name]
}

// getOrCreateQueue returns the named queue, creating it on first use.
// The double-checked locking keeps two racing producers on one instance.
func (b *Broker) getOrCreateQueue(name string) *queue {
	b.mu.RLock()
	q := b.queues[name]
	b.mu.RUnlock()
	if q != nil {
		return q
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if q = b.queues[name]; q != nil {
		return q
	}
	q = &queue{
		attrs: map[string]string{
			"VisibilityTimeout":      DefaultVisibilityTimeout,
			"MessageRetentionPeriod": DefaultMessageRetentionPeriod,
			"DelaySeconds":           DefaultDelaySeconds,
			"CreatedTimestamp":       strconv.FormatInt(b.now().Unix(), 10),
		},
	}
	b.queues[name] = q
	b.logger.Debug("Created queue on first use", watermill.LogFields{"queue": name})
	return q
}

func (b *Broker) check(queueName string) error {
	if b.closed.Load() {
		return broker.ErrBrokerClosed
	}
	if queueName == "" {
		return broker.ErrEmptyQueueName
	}
	return nil
}

// Send stores one message, stamping EnqueuedAt and assigning an ID when the
// producer supplied none.
func (b *Broker) Send(ctx context.Context, queueName string, msg broker.Message) (broker.SendResult, error) {
	if err := b.check(queueName); err != nil {
		return broker.SendResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return broker.SendResult{}, broker.NewTransportError("Send", queueName, err)
	}
	if int64(len(msg.Body)) > broker.MemoryCapabilities.MaxMessageSize {
		return broker.SendResult{}, fmt.Errorf("%w: %d bytes", broker.ErrMessageTooLarge, len(msg.Body))
	}

	stored := msg.Copy()
	if stored.ID == "" {
		stored.ID = watermill.NewUUID()
	}
	stored.EnqueuedAt = b.now().UTC()
	stored.ReceiptHandle = ""

	q := b.getOrCreateQueue(queueName)
	q.mu.Lock()
	q.msgs = append(q.msgs, stored)
	q.depth.Store(int64(len(q.msgs)))
	q.mu.Unlock()

	return broker.SendResult{MessageID: stored.ID, QueueName: queueName}, nil
}

// SendBatch stores multiple messages under a single queue lock so entries
// from one batch stay contiguous in FIFO order. Oversize entries fail
// individually; the rest of the batch is still accepted.
func (b *Broker) SendBatch(ctx context.Context, queueName string, msgs []broker.Message) (broker.BatchResult, error) {
	if err := b.check(queueName); err != nil {
		return broker.BatchResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return broker.BatchResult{}, broker.NewTransportError("SendBatch", queueName, err)
	}
	if len(msgs) == 0 {
		return broker.BatchResult{}, broker.ErrEmptyBatch
	}
	if len(msgs) > broker.MemoryCapabilities.MaxBatchSize {
		return broker.BatchResult{}, fmt.Errorf("%w: %d entries", broker.ErrBatchTooLarge, len(msgs))
	}

	var result broker.BatchResult
	accepted := make([]broker.Message, 0, len(msgs))
	now := b.now().UTC()

	for _, msg := range msgs {
		stored := msg.Copy()
		if stored.ID == "" {
			stored.ID = watermill.NewUUID()
		}
		if int64(len(stored.Body)) > broker.MemoryCapabilities.MaxMessageSize {
			result.Failed = append(result.Failed, broker.BatchError{
				MessageID:   stored.ID,
				Code:        "message_too_large",
				Message:     fmt.Sprintf("message body is %d bytes, limit is %d", len(stored.Body), broker.MemoryCapabilities.MaxMessageSize),
				SenderFault: true,
			})
			continue
		}
		stored.EnqueuedAt = now
		stored.ReceiptHandle = ""
		accepted = append(accepted, stored)
		result.Successful = append(result.Successful, broker.SendResult{MessageID: stored.ID, QueueName: queueName})
	}

	if len(accepted) > 0 {
		q := b.getOrCreateQueue(queueName)
		q.mu.Lock()
		q.msgs = append(q.msgs, accepted...)
		q.depth.Store(int64(len(q.msgs)))
		q.mu.Unlock()
	}

	return result, nil
}

// Receive removes and returns up to maxMessages from the head of the queue.
// A missing queue yields an empty result, never an error.
func (b *Broker) Receive(ctx context.Context, queueName string, maxMessages int) ([]broker.Message, error) {
	if err := b.check(queueName); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, broker.NewTransportError("Receive", queueName, err)
	}
	if maxMessages < 1 {
		maxMessages = 1
	}

	q := b.getQueue(queueName)
	if q == nil {
		return nil, nil
	}

	q.mu.Lock()
	n := min(maxMessages, len(q.msgs))
	out := make([]broker.Message, n)
	copy(out, q.msgs[:n])
	remaining := len(q.msgs) - n
	copy(q.msgs, q.msgs[n:])
	// Zero the tail so released messages do not pin their payloads.
	for i := remaining; i < len(q.msgs); i++ {
		q.msgs[i] = broker.Message{}
	}
	q.msgs = q.msgs[:remaining]
	q.depth.Store(int64(remaining))
	q.mu.Unlock()

	return out, nil
}

// QueueExists reports whether the queue was ever sent to.
func (b *Broker) QueueExists(ctx context.Context, queueName string) (bool, error) {
	if err := b.check(queueName); err != nil {
		return false, err
	}
	return b.getQueue(queueName) != nil, nil
}

// MessageCount returns the current depth in O(1); 0 for unknown queues.
func (b *Broker) MessageCount(ctx context.Context, queueName string) (int64, error) {
	if err := b.check(queueName); err != nil {
		return 0, err
	}
	q := b.getQueue(queueName)
	if q == nil {
		return 0, nil
	}
	return q.depth.Load(), nil
}

// QueueURL fabricates a deterministic pseudo-URL from the queue name.
func (b *Broker) QueueURL(ctx context.Context, queueName string) (string, error) {
	if err := b.check(queueName); err != nil {
		return "", err
	}
	return fmt.Sprintf("memory://%s/%s", b.accountID, queueName), nil
}

// QueueAttributes returns a copy of the queue's attributes, including the
// dynamic ApproximateNumberOfMessages. Empty map for unknown queues.
func (b *Broker) QueueAttributes(ctx context.Context, queueName string) (map[string]string, error) {
	if err := b.check(queueName); err != nil {
		return nil, err
	}
	q := b.getQueue(queueName)
	if q == nil {
		return map[string]string{}, nil
	}
	return q.snapshotAttrs(), nil
}

// Clear empties one queue. Unknown queues are a no-op. A send racing a clear
// resolves last-writer-wins; depth and storage can never desynchronize
// because both change under the queue mutex.
func (b *Broker) Clear(ctx context.Context, queueName string) error {
	if err := b.check(queueName); err != nil {
		return err
	}
	q := b.getQueue(queueName)
	if q == nil {
		return nil
	}
	q.mu.Lock()
	removed := len(q.msgs)
	q.msgs = nil
	q.depth.Store(0)
	q.mu.Unlock()

	b.logger.Info("Cleared queue", watermill.LogFields{"queue": queueName, "removed": removed})
	return nil
}

// ClearAll empties every known queue.
func (b *Broker) ClearAll(ctx context.Context) error {
	if b.closed.Load() {
		return broker.ErrBrokerClosed
	}

	b.mu.RLock()
	queues := make([]*queue, 0, len(b.queues))
	for _, q := range b.queues {
		queues = append(queues, q)
	}
	b.mu.RUnlock()

	for _, q := range queues {
		q.mu.Lock()
		q.msgs = nil
		q.depth.Store(0)
		q.mu.Unlock()
	}

	b.logger.Info("Cleared all queues", watermill.LogFields{"queues": len(queues)})
	return nil
}

// QueueNames returns the names of every queue created so far. It is not part
// of the port; administrative callers use it to enumerate ad-hoc queues.
func (b *Broker) QueueNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	return names
}

// Capabilities reports the broker's effective capabilities.
func (b *Broker) Capabilities() broker.Capabilities {
	return broker.MemoryCapabilities
}

// Close marks the broker closed. Stored messages are dropped.
func (b *Broker) Close() error {
	b.closed.Store(true)
	return nil
}
