package runtime

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oddiya/queueflow/broker"
	loggingpkg "github.com/oddiya/queueflow/internal/runtime/logging"
)

// fakeBroker is an in-package broker.Broker used by dispatcher and service
// tests. It records sends per queue and can be told to fail.
type fakeBroker struct {
	mu       sync.Mutex
	queues   map[string][]broker.Message
	sendErr  error
	batchErr error
	closed   bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{queues: make(map[string][]broker.Message)}
}

func (f *fakeBroker) Send(ctx context.Context, queueName string, msg broker.Message) (broker.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return broker.SendResult{}, f.sendErr
	}
	f.queues[queueName] = append(f.queues[queueName], msg)
	return broker.SendResult{MessageID: msg.ID, QueueName: queueName}, nil
}

func (f *fakeBroker) SendBatch(ctx context.Context, queueName string, msgs []broker.Message) (broker.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return broker.BatchResult{}, f.batchErr
	}
	var result broker.BatchResult
	for _, msg := range msgs {
		f.queues[queueName] = append(f.queues[queueName], msg)
		result.Successful = append(result.Successful, broker.SendResult{MessageID: msg.ID, QueueName: queueName})
	}
	return result, nil
}

func (f *fakeBroker) Receive(ctx context.Context, queueName string, maxMessages int) ([]broker.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.queues[queueName]
	if maxMessages < len(msgs) {
		msgs = msgs[:maxMessages]
	}
	out := make([]broker.Message, len(msgs))
	copy(out, msgs)
	f.queues[queueName] = f.queues[queueName][len(out):]
	return out, nil
}

func (f *fakeBroker) QueueExists(ctx context.Context, queueName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.queues[queueName]
	return ok, nil
}

func (f *fakeBroker) MessageCount(ctx context.Context, queueName string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.queues[queueName])), nil
}

func (f *fakeBroker) QueueURL(ctx context.Context, queueName string) (string, error) {
	return "fake://" + queueName, nil
}

func (f *fakeBroker) QueueAttributes(ctx context.Context, queueName string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (f *fakeBroker) Clear(ctx context.Context, queueName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[queueName] = nil
	return nil
}

func (f *fakeBroker) ClearAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name := range f.queues {
		f.queues[name] = nil
	}
	return nil
}

func (f *fakeBroker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// messages returns a snapshot of one queue's stored messages.
func (f *fakeBroker) messages(queueName string) []broker.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]broker.Message, len(f.queues[queueName]))
	copy(out, f.queues[queueName])
	return out
}

// seed makes a queue exist without storing messages.
func (f *fakeBroker) seed(queueNames ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range queueNames {
		if _, ok := f.queues[name]; !ok {
			f.queues[name] = []broker.Message{}
		}
	}
}

func nopLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewNopServiceLogger()
}

func newTestRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}
