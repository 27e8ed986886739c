// Package sqs provides an AWS SQS broker adapter for queueflow.
// The adapter is a thin translation layer: the SDK does the heavy lifting and
// this package maps the port's uniform contract (existence as false, depth as
// 0, purge gating, TransportError taxonomy) onto SDK calls and errors.
package sqs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"github.com/oddiya/queueflow/broker"
)

// BrokerName is the name used to register this broker.
const BrokerName = "sqs"

// messageIDAttribute carries the producer-assigned message identifier across
// the wire, since SQS assigns its own MessageId on acceptance.
const messageIDAttribute = "queueflow_message_id"

const (
	maxReceiveBatch = 10
	maxSendBatch    = 10
)

// API is the subset of the SQS client used by the adapter.
type API interface {
	SendMessage(ctx context.Context, params *amazonsqs.SendMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *amazonsqs.SendMessageBatchInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.SendMessageBatchOutput, error)
	ReceiveMessage(ctx context.Context, params *amazonsqs.ReceiveMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.ReceiveMessageOutput, error)
	GetQueueUrl(ctx context.Context, params *amazonsqs.GetQueueUrlInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.GetQueueUrlOutput, error)
	GetQueueAttributes(ctx context.Context, params *amazonsqs.GetQueueAttributesInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.GetQueueAttributesOutput, error)
	PurgeQueue(ctx context.Context, params *amazonsqs.PurgeQueueInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.PurgeQueueOutput, error)
}

// DefaultConfigLoader allows overriding the AWS config loader for testing.
var DefaultConfigLoader = awsconfig.LoadDefaultConfig

// ClientFactory allows overriding the SQS client creation for testing.
var ClientFactory = func(cfg aws.Config, optFns ...func(*amazonsqs.Options)) API {
	return amazonsqs.NewFromConfig(cfg, optFns...)
}

func init() {
	broker.RegisterWithCapabilities(BrokerName, Build, broker.SQSCapabilities)
}

// Build creates a new SQS broker from config.
func Build(ctx context.Context, cfg broker.Config, logger watermill.LoggerAdapter) (broker.Broker, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	awsCfg, err := createAWSConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Created AWS config", watermill.LogFields{
		"region":          awsCfg.Region,
		"custom_endpoint": cfg != nil && cfg.GetAWSEndpoint() != "",
	})

	var optFns []func(*amazonsqs.Options)
	if cfg != nil && cfg.GetAWSEndpoint() != "" {
		endpoint := cfg.GetAWSEndpoint()
		optFns = append(optFns, func(o *amazonsqs.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	purgeEnabled := cfg != nil && cfg.GetPurgeEnabled()
	return &Broker{
		client:       ClientFactory(*awsCfg, optFns...),
		logger:       logger,
		purgeEnabled: purgeEnabled,
		urls:         make(map[string]string),
	}, nil
}

// Capabilities returns the capabilities of this broker.
func Capabilities() broker.Capabilities {
	return broker.SQSCapabilities
}

func createAWSConfig(ctx context.Context, cfg broker.Config, logger watermill.LoggerAdapter) (*aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg != nil {
		region := cfg.GetAWSRegion()
		accessKey := cfg.GetAWSAccessKeyID()
		secretKey := cfg.GetAWSSecretAccessKey()

		if region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		if accessKey != "" && secretKey != "" {
			logger.Info("Using static AWS credentials from config", watermill.LogFields{})
			opts = append(opts, awsconfig.WithCredentialsProvider(staticCredentialsProvider(accessKey, secretKey)))
		}
	}

	awsCfg, err := DefaultConfigLoader(ctx, opts...)
	if err != nil {
		logger.Error("Failed to load AWS default config", err, watermill.LogFields{})
		return nil, err
	}

	// Ensure region is set even if the loader ignores options
	if cfg != nil && cfg.GetAWSRegion() != "" {
		awsCfg.Region = cfg.GetAWSRegion()
	}

	return &awsCfg, nil
}

func staticCredentialsProvider(accessKeyID, secretAccessKey string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
		}, nil
	})
}

// Broker implements broker.Broker against AWS SQS.
type Broker struct {
	client       API
	logger       watermill.LoggerAdapter
	purgeEnabled bool

	urlsMu sync.RWMutex
	urls   map[string]string
}

// NewWithClient builds a broker around an existing client. Mainly for tests
// and callers that manage their own SDK configuration.
func NewWithClient(client API, purgeEnabled bool, logger watermill.LoggerAdapter) *Broker {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Broker{
		client:       client,
		logger:       logger,
		purgeEnabled: purgeEnabled,
		urls:         make(map[string]string),
	}
}

func isQueueMissing(err error) bool {
	var notFound *sqstypes.QueueDoesNotExist
	return errors.As(err, &notFound)
}

// resolveQueueURL maps a queue name to its URL, caching successful lookups.
func (b *Broker) resolveQueueURL(ctx context.Context, queueName string) (string, error) {
	b.urlsMu.RLock()
	url, ok := b.urls[queueName]
	b.urlsMu.RUnlock()
	if ok {
		return url, nil
	}

	out, err := b.client.GetQueueUrl(ctx, &amazonsqs.GetQueueUrlInput{
		QueueName: aws.String(queueName),
	})
	if err != nil {
		return "", err
	}

	url = aws.ToString(out.QueueUrl)
	b.urlsMu.Lock()
	b.urls[queueName] = url
	b.urlsMu.Unlock()
	return url, nil
}

func toMessageAttributes(msg broker.Message) map[string]sqstypes.MessageAttributeValue {
	attrs := make(map[string]sqstypes.MessageAttributeValue, len(msg.Attributes)+1)
	for k, v := range msg.Attributes {
		attrs[k] = sqstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	if msg.ID != "" {
		attrs[messageIDAttribute] = sqstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(msg.ID),
		}
	}
	return attrs
}

func fromSQSMessage(m sqstypes.Message) broker.Message {
	out := broker.Message{
		ID:            aws.ToString(m.MessageId),
		Body:          []byte(aws.ToString(m.Body)),
		ReceiptHandle: aws.ToString(m.ReceiptHandle),
	}
	for name, attr := range m.MessageAttributes {
		if name == messageIDAttribute {
			out.ID = aws.ToString(attr.StringValue)
			continue
		}
		if out.Attributes == nil {
			out.Attributes = make(map[string]string, len(m.MessageAttributes))
		}
		out.Attributes[name] = aws.ToString(attr.StringValue)
	}
	if ts, ok := m.Attributes[string(sqstypes.MessageSystemAttributeNameSentTimestamp)]; ok {
		if millis, err := strconv.ParseInt(ts, 10, 64); err == nil {
			out.EnqueuedAt = time.UnixMilli(millis).UTC()
		}
	}
	return out
}

// Send publishes one message to the named queue.
func (b *Broker) Send(ctx context.Context, queueName string, msg broker.Message) (broker.SendResult, error) {
	if queueName == "" {
		return broker.SendResult{}, broker.ErrEmptyQueueName
	}

	url, err := b.resolveQueueURL(ctx, queueName)
	if err != nil {
		if isQueueMissing(err) {
			return broker.SendResult{}, fmt.Errorf("%w: %s", broker.ErrQueueNotFound, queueName)
		}
		return broker.SendResult{}, broker.NewTransportError("Send", queueName, err)
	}

	out, err := b.client.SendMessage(ctx, &amazonsqs.SendMessageInput{
		QueueUrl:          aws.String(url),
		MessageBody:       aws.String(string(msg.Body)),
		MessageAttributes: toMessageAttributes(msg),
	})
	if err != nil {
		return broker.SendResult{}, broker.NewTransportError("Send", queueName, err)
	}

	id := msg.ID
	if id == "" {
		id = aws.ToString(out.MessageId)
	}
	return broker.SendResult{MessageID: id, QueueName: queueName}, nil
}

// SendBatch publishes up to 10 messages, reporting per-entry outcomes.
func (b *Broker) SendBatch(ctx context.Context, queueName string, msgs []broker.Message) (broker.BatchResult, error) {
	if queueName == "" {
		return broker.BatchResult{}, broker.ErrEmptyQueueName
	}
	if len(msgs) == 0 {
		return broker.BatchResult{}, broker.ErrEmptyBatch
	}
	if len(msgs) > maxSendBatch {
		return broker.BatchResult{}, fmt.Errorf("%w: %d entries", broker.ErrBatchTooLarge, len(msgs))
	}

	url, err := b.resolveQueueURL(ctx, queueName)
	if err != nil {
		if isQueueMissing(err) {
			return broker.BatchResult{}, fmt.Errorf("%w: %s", broker.ErrQueueNotFound, queueName)
		}
		return broker.BatchResult{}, broker.NewTransportError("SendBatch", queueName, err)
	}

	// SQS batch entry ids must be unique within the request; the producer's
	// message ids may repeat or be absent, so entries get synthetic ids.
	entries := make([]sqstypes.SendMessageBatchRequestEntry, len(msgs))
	entryToMessage := make(map[string]string, len(msgs))
	for i, msg := range msgs {
		entryID := uuid.NewString()
		entryToMessage[entryID] = msg.ID
		entries[i] = sqstypes.SendMessageBatchRequestEntry{
			Id:                aws.String(entryID),
			MessageBody:       aws.String(string(msg.Body)),
			MessageAttributes: toMessageAttributes(msg),
		}
	}

	out, err := b.client.SendMessageBatch(ctx, &amazonsqs.SendMessageBatchInput{
		QueueUrl: aws.String(url),
		Entries:  entries,
	})
	if err != nil {
		return broker.BatchResult{}, broker.NewTransportError("SendBatch", queueName, err)
	}

	var result broker.BatchResult
	for _, entry := range out.Successful {
		id := entryToMessage[aws.ToString(entry.Id)]
		if id == "" {
			id = aws.ToString(entry.MessageId)
		}
		result.Successful = append(result.Successful, broker.SendResult{MessageID: id, QueueName: queueName})
	}
	for _, entry := range out.Failed {
		result.Failed = append(result.Failed, broker.BatchError{
			MessageID:   entryToMessage[aws.ToString(entry.Id)],
			Code:        aws.ToString(entry.Code),
			Message:     aws.ToString(entry.Message),
			SenderFault: entry.SenderFault,
		})
	}
	return result, nil
}

// Receive fetches up to maxMessages without deleting them; SQS hides them for
// the queue's visibility timeout and redelivers unacknowledged messages.
func (b *Broker) Receive(ctx context.Context, queueName string, maxMessages int) ([]broker.Message, error) {
	if queueName == "" {
		return nil, broker.ErrEmptyQueueName
	}
	if maxMessages < 1 {
		maxMessages = 1
	}
	if maxMessages > maxReceiveBatch {
		maxMessages = maxReceiveBatch
	}

	url, err := b.resolveQueueURL(ctx, queueName)
	if err != nil {
		if isQueueMissing(err) {
			return nil, nil
		}
		return nil, broker.NewTransportError("Receive", queueName, err)
	}

	out, err := b.client.ReceiveMessage(ctx, &amazonsqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(url),
		MaxNumberOfMessages:         int32(maxMessages),
		MessageAttributeNames:       []string{"All"},
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameAll},
	})
	if err != nil {
		return nil, broker.NewTransportError("Receive", queueName, err)
	}

	msgs := make([]broker.Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, fromSQSMessage(m))
	}
	return msgs, nil
}

// QueueExists resolves the queue URL; a missing queue is false, not an error.
func (b *Broker) QueueExists(ctx context.Context, queueName string) (bool, error) {
	if queueName == "" {
		return false, broker.ErrEmptyQueueName
	}
	_, err := b.resolveQueueURL(ctx, queueName)
	if err != nil {
		if isQueueMissing(err) {
			return false, nil
		}
		return false, broker.NewTransportError("QueueExists", queueName, err)
	}
	return true, nil
}

// MessageCount reads ApproximateNumberOfMessages; 0 for missing queues.
func (b *Broker) MessageCount(ctx context.Context, queueName string) (int64, error) {
	attrs, err := b.queueAttributes(ctx, queueName, []sqstypes.QueueAttributeName{
		sqstypes.QueueAttributeNameApproximateNumberOfMessages,
	})
	if err != nil {
		return 0, err
	}
	raw, ok := attrs[string(sqstypes.QueueAttributeNameApproximateNumberOfMessages)]
	if !ok {
		return 0, nil
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, broker.NewTransportError("MessageCount", queueName, err)
	}
	return count, nil
}

// QueueURL returns the actual SQS queue URL.
func (b *Broker) QueueURL(ctx context.Context, queueName string) (string, error) {
	if queueName == "" {
		return "", broker.ErrEmptyQueueName
	}
	url, err := b.resolveQueueURL(ctx, queueName)
	if err != nil {
		if isQueueMissing(err) {
			return "", fmt.Errorf("%w: %s", broker.ErrQueueNotFound, queueName)
		}
		return "", broker.NewTransportError("QueueURL", queueName, err)
	}
	return url, nil
}

// QueueAttributes returns the service-side configuration snapshot.
func (b *Broker) QueueAttributes(ctx context.Context, queueName string) (map[string]string, error) {
	return b.queueAttributes(ctx, queueName, []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameAll})
}

func (b *Broker) queueAttributes(ctx context.Context, queueName string, names []sqstypes.QueueAttributeName) (map[string]string, error) {
	if queueName == "" {
		return nil, broker.ErrEmptyQueueName
	}

	url, err := b.resolveQueueURL(ctx, queueName)
	if err != nil {
		if isQueueMissing(err) {
			return map[string]string{}, nil
		}
		return nil, broker.NewTransportError("QueueAttributes", queueName, err)
	}

	out, err := b.client.GetQueueAttributes(ctx, &amazonsqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(url),
		AttributeNames: names,
	})
	if err != nil {
		if isQueueMissing(err) {
			b.forgetQueueURL(queueName)
			return map[string]string{}, nil
		}
		return nil, broker.NewTransportError("QueueAttributes", queueName, err)
	}
	if out.Attributes == nil {
		return map[string]string{}, nil
	}
	return out.Attributes, nil
}

func (b *Broker) forgetQueueURL(queueName string) {
	b.urlsMu.Lock()
	delete(b.urls, queueName)
	b.urlsMu.Unlock()
}

// Clear purges one queue. Purging a production queue is destructive and
// non-idempotent, so it must be explicitly enabled in config; otherwise the
// call fails with ErrPurgeUnsupported rather than silently no-op'ing.
func (b *Broker) Clear(ctx context.Context, queueName string) error {
	if queueName == "" {
		return broker.ErrEmptyQueueName
	}
	if !b.purgeEnabled {
		return broker.ErrPurgeUnsupported
	}

	url, err := b.resolveQueueURL(ctx, queueName)
	if err != nil {
		if isQueueMissing(err) {
			return nil
		}
		return broker.NewTransportError("Clear", queueName, err)
	}

	if _, err := b.client.PurgeQueue(ctx, &amazonsqs.PurgeQueueInput{QueueUrl: aws.String(url)}); err != nil {
		return broker.NewTransportError("Clear", queueName, err)
	}
	b.logger.Info("Purged queue", watermill.LogFields{"queue": queueName})
	return nil
}

// ClearAll purges every queue this adapter has resolved so far. SQS has no
// cheap "all my queues" notion, so the URL cache bounds the blast radius to
// queues this process actually touched.
func (b *Broker) ClearAll(ctx context.Context) error {
	if !b.purgeEnabled {
		return broker.ErrPurgeUnsupported
	}

	b.urlsMu.RLock()
	names := make([]string, 0, len(b.urls))
	for name := range b.urls {
		names = append(names, name)
	}
	b.urlsMu.RUnlock()

	for _, name := range names {
		if err := b.Clear(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Capabilities reports the broker's effective capabilities; SupportsPurge
// reflects the configured purge gate.
func (b *Broker) Capabilities() broker.Capabilities {
	caps := broker.SQSCapabilities
	caps.SupportsPurge = b.purgeEnabled
	return caps
}

// Close releases nothing; the SDK client holds no connections of its own.
func (b *Broker) Close() error {
	return nil
}
