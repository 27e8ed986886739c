package runtime

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/oddiya/queueflow/broker"
	errspkg "github.com/oddiya/queueflow/internal/runtime/errors"
	idspkg "github.com/oddiya/queueflow/internal/runtime/ids"
	loggingpkg "github.com/oddiya/queueflow/internal/runtime/logging"
)

const tracerName = "queueflow-dispatcher"

// Dispatcher routes typed envelopes to their registered queues. Every
// operation validates the envelope, resolves the queue through the category
// registry, assigns a message id when the producer supplied none, and hands
// the message to the broker on a separate goroutine. The returned future
// resolves once the broker has accepted the message, not once a downstream
// consumer has processed it.
//
// Failures discovered before any broker work (validation, unknown category)
// still resolve through the future, preserving the asynchronous contract.
type Dispatcher struct {
	broker  broker.Broker
	logger  loggingpkg.ServiceLogger
	metrics *QueueMetrics
	tracer  trace.Tracer
}

// NewDispatcher wires a dispatcher onto the given broker. metrics may be nil.
func NewDispatcher(b broker.Broker, logger loggingpkg.ServiceLogger, metrics *QueueMetrics) (*Dispatcher, error) {
	if b == nil {
		return nil, errspkg.ErrBrokerRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	return &Dispatcher{
		broker:  b,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// Dispatch sends one envelope to its category queue.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) *Future[broker.SendResult] {
	if env == nil {
		return FailedFuture[broker.SendResult](errspkg.ErrEnvelopeRequired)
	}
	if err := env.Validate(); err != nil {
		return FailedFuture[broker.SendResult](err)
	}

	queueName, err := env.Category().QueueName()
	if err != nil {
		return FailedFuture[broker.SendResult](err)
	}

	if env.MessageID() == "" {
		env.SetMessageID(idspkg.NewMessageID())
	}

	msg, err := envelopeToMessage(env)
	if err != nil {
		return FailedFuture[broker.SendResult](err)
	}

	f := NewFuture[broker.SendResult]()
	go d.send(ctx, queueName, string(env.Category()), msg, f)
	return f
}

func (d *Dispatcher) send(ctx context.Context, queueName, category string, msg broker.Message, f *Future[broker.SendResult]) {
	ctx, span := d.tracer.Start(ctx, "Dispatch",
		trace.WithAttributes(
			attribute.String("message.id", msg.ID),
			attribute.String("message.category", category),
			attribute.String("queue.name", queueName),
		))
	defer span.End()

	start := time.Now()
	result, err := d.broker.Send(ctx, queueName, msg)
	if d.metrics != nil {
		d.metrics.RecordSend(queueName, time.Since(start), err)
	}

	if err != nil {
		span.RecordError(err)
		d.logger.Error("Failed to dispatch message", err, loggingpkg.LogFields{
			"queue":      queueName,
			"category":   category,
			"message_id": msg.ID,
		})
		f.Fail(err)
		return
	}

	d.logger.Debug("Dispatched message", loggingpkg.LogFields{
		"queue":      queueName,
		"category":   category,
		"message_id": result.MessageID,
	})
	f.Resolve(result)
}

// DispatchBatch sends envelopes of one category as a batch. Envelopes that
// fail validation become failed entries in the result; the rest of the batch
// is still attempted. The future fails only when the whole batch could not
// be attempted.
func (d *Dispatcher) DispatchBatch(ctx context.Context, category Category, envs []Envelope) *Future[broker.BatchResult] {
	queueName, err := category.QueueName()
	if err != nil {
		return FailedFuture[broker.BatchResult](err)
	}
	if len(envs) == 0 {
		return FailedFuture[broker.BatchResult](broker.ErrEmptyBatch)
	}

	var invalid []broker.BatchError
	msgs := make([]broker.Message, 0, len(envs))
	for _, env := range envs {
		if env == nil {
			invalid = append(invalid, broker.BatchError{
				Code:        "validation_failed",
				Message:     errspkg.ErrEnvelopeRequired.Error(),
				SenderFault: true,
			})
			continue
		}
		if env.MessageID() == "" {
			env.SetMessageID(idspkg.NewMessageID())
		}
		if err := env.Validate(); err != nil {
			invalid = append(invalid, broker.BatchError{
				MessageID:   env.MessageID(),
				Code:        "validation_failed",
				Message:     err.Error(),
				SenderFault: true,
			})
			continue
		}
		msg, err := envelopeToMessage(env)
		if err != nil {
			invalid = append(invalid, broker.BatchError{
				MessageID:   env.MessageID(),
				Code:        "marshal_failed",
				Message:     err.Error(),
				SenderFault: true,
			})
			continue
		}
		msgs = append(msgs, msg)
	}

	if len(msgs) == 0 {
		return ResolvedFuture(broker.BatchResult{Failed: invalid})
	}

	f := NewFuture[broker.BatchResult]()
	go d.sendBatch(ctx, queueName, string(category), msgs, invalid, f)
	return f
}

func (d *Dispatcher) sendBatch(ctx context.Context, queueName, category string, msgs []broker.Message, invalid []broker.BatchError, f *Future[broker.BatchResult]) {
	ctx, span := d.tracer.Start(ctx, "DispatchBatch",
		trace.WithAttributes(
			attribute.String("message.category", category),
			attribute.String("queue.name", queueName),
			attribute.Int("batch.size", len(msgs)),
		))
	defer span.End()

	start := time.Now()
	result, err := d.broker.SendBatch(ctx, queueName, msgs)
	if err != nil {
		span.RecordError(err)
		d.logger.Error("Failed to dispatch batch", err, loggingpkg.LogFields{
			"queue":    queueName,
			"category": category,
			"size":     len(msgs),
		})
		f.Fail(err)
		return
	}

	result.Failed = append(result.Failed, invalid...)
	if d.metrics != nil {
		d.metrics.RecordBatch(queueName, len(result.Successful), len(result.Failed), time.Since(start))
	}

	d.logger.Debug("Dispatched batch", loggingpkg.LogFields{
		"queue":    queueName,
		"category": category,
		"accepted": len(result.Successful),
		"failed":   len(result.Failed),
	})
	f.Resolve(result)
}

// dispatchTyped guards against typed nil pointers reaching Dispatch as
// non-nil interface values.
func dispatchTyped[T any, P interface {
	*T
	Envelope
}](d *Dispatcher, ctx context.Context, msg P) *Future[broker.SendResult] {
	if msg == nil {
		return FailedFuture[broker.SendResult](errspkg.ErrEnvelopeRequired)
	}
	return d.Dispatch(ctx, msg)
}

// SendEmail dispatches an email envelope to the email notifications queue.
func (d *Dispatcher) SendEmail(ctx context.Context, msg *EmailMessage) *Future[broker.SendResult] {
	return dispatchTyped(d, ctx, msg)
}

// SendEmailBatch dispatches multiple email envelopes as one batch.
func (d *Dispatcher) SendEmailBatch(ctx context.Context, msgs []*EmailMessage) *Future[broker.BatchResult] {
	envs := make([]Envelope, len(msgs))
	for i, m := range msgs {
		if m != nil {
			envs[i] = m
		}
	}
	return d.DispatchBatch(ctx, CategoryEmail, envs)
}

// SendImageProcessing dispatches an image processing envelope.
func (d *Dispatcher) SendImageProcessing(ctx context.Context, msg *ImageProcessingMessage) *Future[broker.SendResult] {
	return dispatchTyped(d, ctx, msg)
}

// SendAnalytics dispatches an analytics event envelope.
func (d *Dispatcher) SendAnalytics(ctx context.Context, msg *AnalyticsMessage) *Future[broker.SendResult] {
	return dispatchTyped(d, ctx, msg)
}

// SendAnalyticsBatch dispatches multiple analytics envelopes as one batch.
func (d *Dispatcher) SendAnalyticsBatch(ctx context.Context, msgs []*AnalyticsMessage) *Future[broker.BatchResult] {
	envs := make([]Envelope, len(msgs))
	for i, m := range msgs {
		if m != nil {
			envs[i] = m
		}
	}
	return d.DispatchBatch(ctx, CategoryAnalytics, envs)
}

// SendRecommendation dispatches a recommendation update envelope.
func (d *Dispatcher) SendRecommendation(ctx context.Context, msg *RecommendationMessage) *Future[broker.SendResult] {
	return dispatchTyped(d, ctx, msg)
}

// SendVideoProcessing dispatches a video processing envelope.
func (d *Dispatcher) SendVideoProcessing(ctx context.Context, msg *VideoProcessingMessage) *Future[broker.SendResult] {
	return dispatchTyped(d, ctx, msg)
}
