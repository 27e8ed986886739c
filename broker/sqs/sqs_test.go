package sqs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/aws/aws-sdk-go-v2/aws"
	amazonsqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddiya/queueflow/broker"
)

// mockAPI implements the API interface with overridable functions.
type mockAPI struct {
	sendMessage        func(ctx context.Context, params *amazonsqs.SendMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.SendMessageOutput, error)
	sendMessageBatch   func(ctx context.Context, params *amazonsqs.SendMessageBatchInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.SendMessageBatchOutput, error)
	receiveMessage     func(ctx context.Context, params *amazonsqs.ReceiveMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.ReceiveMessageOutput, error)
	getQueueUrl        func(ctx context.Context, params *amazonsqs.GetQueueUrlInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.GetQueueUrlOutput, error)
	getQueueAttributes func(ctx context.Context, params *amazonsqs.GetQueueAttributesInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.GetQueueAttributesOutput, error)
	purgeQueue         func(ctx context.Context, params *amazonsqs.PurgeQueueInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.PurgeQueueOutput, error)
}

func (m *mockAPI) SendMessage(ctx context.Context, params *amazonsqs.SendMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.SendMessageOutput, error) {
	return m.sendMessage(ctx, params, optFns...)
}

func (m *mockAPI) SendMessageBatch(ctx context.Context, params *amazonsqs.SendMessageBatchInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.SendMessageBatchOutput, error) {
	return m.sendMessageBatch(ctx, params, optFns...)
}

func (m *mockAPI) ReceiveMessage(ctx context.Context, params *amazonsqs.ReceiveMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.ReceiveMessageOutput, error) {
	return m.receiveMessage(ctx, params, optFns...)
}

func (m *mockAPI) GetQueueUrl(ctx context.Context, params *amazonsqs.GetQueueUrlInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.GetQueueUrlOutput, error) {
	return m.getQueueUrl(ctx, params, optFns...)
}

func (m *mockAPI) GetQueueAttributes(ctx context.Context, params *amazonsqs.GetQueueAttributesInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.GetQueueAttributesOutput, error) {
	return m.getQueueAttributes(ctx, params, optFns...)
}

func (m *mockAPI) PurgeQueue(ctx context.Context, params *amazonsqs.PurgeQueueInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.PurgeQueueOutput, error) {
	return m.purgeQueue(ctx, params, optFns...)
}

func queueURLFor(name string) string {
	return fmt.Sprintf("https://sqs.ap-northeast-2.amazonaws.com/123456789012/%s", name)
}

// resolvingMock answers GetQueueUrl for any queue name.
func resolvingMock() *mockAPI {
	return &mockAPI{
		getQueueUrl: func(ctx context.Context, params *amazonsqs.GetQueueUrlInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.GetQueueUrlOutput, error) {
			return &amazonsqs.GetQueueUrlOutput{QueueUrl: aws.String(queueURLFor(aws.ToString(params.QueueName)))}, nil
		},
	}
}

// missingQueueMock fails every GetQueueUrl with QueueDoesNotExist.
func missingQueueMock() *mockAPI {
	return &mockAPI{
		getQueueUrl: func(ctx context.Context, params *amazonsqs.GetQueueUrlInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.GetQueueUrlOutput, error) {
			return nil, &sqstypes.QueueDoesNotExist{Message: aws.String("no such queue")}
		},
	}
}

func TestSend_MapsMessageAndCarriesID(t *testing.T) {
	api := resolvingMock()
	var captured *amazonsqs.SendMessageInput
	api.sendMessage = func(ctx context.Context, params *amazonsqs.SendMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.SendMessageOutput, error) {
		captured = params
		return &amazonsqs.SendMessageOutput{MessageId: aws.String("sqs-assigned")}, nil
	}

	b := NewWithClient(api, false, watermill.NopLogger{})
	result, err := b.Send(context.Background(), "orders", broker.Message{
		ID:         "msg-1",
		Body:       []byte(`{"n":1}`),
		Attributes: map[string]string{"kind": "order"},
	})
	require.NoError(t, err)

	assert.Equal(t, "msg-1", result.MessageID)
	assert.Equal(t, "orders", result.QueueName)

	require.NotNil(t, captured)
	assert.Equal(t, queueURLFor("orders"), aws.ToString(captured.QueueUrl))
	assert.Equal(t, `{"n":1}`, aws.ToString(captured.MessageBody))
	assert.Equal(t, "msg-1", aws.ToString(captured.MessageAttributes[messageIDAttribute].StringValue))
	assert.Equal(t, "order", aws.ToString(captured.MessageAttributes["kind"].StringValue))
}

func TestSend_FallsBackToSQSMessageID(t *testing.T) {
	api := resolvingMock()
	api.sendMessage = func(ctx context.Context, params *amazonsqs.SendMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.SendMessageOutput, error) {
		return &amazonsqs.SendMessageOutput{MessageId: aws.String("sqs-assigned")}, nil
	}

	b := NewWithClient(api, false, watermill.NopLogger{})
	result, err := b.Send(context.Background(), "orders", broker.Message{Body: []byte("hi")})
	require.NoError(t, err)
	assert.Equal(t, "sqs-assigned", result.MessageID)
}

func TestSend_MissingQueue(t *testing.T) {
	b := NewWithClient(missingQueueMock(), false, watermill.NopLogger{})
	_, err := b.Send(context.Background(), "orders", broker.Message{})
	assert.ErrorIs(t, err, broker.ErrQueueNotFound)
}

func TestSend_TransportFailure(t *testing.T) {
	api := resolvingMock()
	api.sendMessage = func(ctx context.Context, params *amazonsqs.SendMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.SendMessageOutput, error) {
		return nil, errors.New("throttled")
	}

	b := NewWithClient(api, false, watermill.NopLogger{})
	_, err := b.Send(context.Background(), "orders", broker.Message{})
	assert.True(t, broker.IsTransportError(err))
}

func TestSendBatch_MapsEntryOutcomes(t *testing.T) {
	api := resolvingMock()
	api.sendMessageBatch = func(ctx context.Context, params *amazonsqs.SendMessageBatchInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.SendMessageBatchOutput, error) {
		require.Len(t, params.Entries, 2)
		return &amazonsqs.SendMessageBatchOutput{
			Successful: []sqstypes.SendMessageBatchResultEntry{
				{Id: params.Entries[0].Id, MessageId: aws.String("sqs-1")},
			},
			Failed: []sqstypes.BatchResultErrorEntry{
				{Id: params.Entries[1].Id, Code: aws.String("InternalError"), Message: aws.String("try again"), SenderFault: false},
			},
		}, nil
	}

	b := NewWithClient(api, false, watermill.NopLogger{})
	result, err := b.SendBatch(context.Background(), "orders", []broker.Message{
		{ID: "msg-a", Body: []byte("1")},
		{ID: "msg-b", Body: []byte("2")},
	})
	require.NoError(t, err)

	require.Len(t, result.Successful, 1)
	assert.Equal(t, "msg-a", result.Successful[0].MessageID)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "msg-b", result.Failed[0].MessageID)
	assert.Equal(t, "InternalError", result.Failed[0].Code)
	assert.False(t, result.Failed[0].SenderFault)
}

func TestSendBatch_Limits(t *testing.T) {
	b := NewWithClient(resolvingMock(), false, watermill.NopLogger{})

	_, err := b.SendBatch(context.Background(), "orders", nil)
	assert.ErrorIs(t, err, broker.ErrEmptyBatch)

	_, err = b.SendBatch(context.Background(), "orders", make([]broker.Message, maxSendBatch+1))
	assert.ErrorIs(t, err, broker.ErrBatchTooLarge)
}

func TestReceive_ConvertsMessages(t *testing.T) {
	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	api := resolvingMock()
	api.receiveMessage = func(ctx context.Context, params *amazonsqs.ReceiveMessageInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.ReceiveMessageOutput, error) {
		assert.Equal(t, int32(10), params.MaxNumberOfMessages)
		return &amazonsqs.ReceiveMessageOutput{
			Messages: []sqstypes.Message{
				{
					MessageId:     aws.String("sqs-1"),
					Body:          aws.String(`{"n":1}`),
					ReceiptHandle: aws.String("rh-1"),
					MessageAttributes: map[string]sqstypes.MessageAttributeValue{
						messageIDAttribute: {DataType: aws.String("String"), StringValue: aws.String("msg-1")},
						"kind":             {DataType: aws.String("String"), StringValue: aws.String("order")},
					},
					Attributes: map[string]string{
						string(sqstypes.MessageSystemAttributeNameSentTimestamp): strconv.FormatInt(sentAt.UnixMilli(), 10),
					},
				},
			},
		}, nil
	}

	b := NewWithClient(api, false, watermill.NopLogger{})
	msgs, err := b.Receive(context.Background(), "orders", 25)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, "msg-1", msgs[0].ID)
	assert.Equal(t, []byte(`{"n":1}`), msgs[0].Body)
	assert.Equal(t, "rh-1", msgs[0].ReceiptHandle)
	assert.Equal(t, map[string]string{"kind": "order"}, msgs[0].Attributes)
	assert.Equal(t, sentAt, msgs[0].EnqueuedAt)
}

func TestReceive_MissingQueue(t *testing.T) {
	b := NewWithClient(missingQueueMock(), false, watermill.NopLogger{})
	msgs, err := b.Receive(context.Background(), "orders", 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestQueueExists(t *testing.T) {
	b := NewWithClient(resolvingMock(), false, watermill.NopLogger{})
	exists, err := b.QueueExists(context.Background(), "orders")
	require.NoError(t, err)
	assert.True(t, exists)

	b = NewWithClient(missingQueueMock(), false, watermill.NopLogger{})
	exists, err = b.QueueExists(context.Background(), "orders")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMessageCount(t *testing.T) {
	api := resolvingMock()
	api.getQueueAttributes = func(ctx context.Context, params *amazonsqs.GetQueueAttributesInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.GetQueueAttributesOutput, error) {
		return &amazonsqs.GetQueueAttributesOutput{
			Attributes: map[string]string{
				string(sqstypes.QueueAttributeNameApproximateNumberOfMessages): "42",
			},
		}, nil
	}

	b := NewWithClient(api, false, watermill.NopLogger{})
	count, err := b.MessageCount(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
}

func TestMessageCount_MissingQueue(t *testing.T) {
	b := NewWithClient(missingQueueMock(), false, watermill.NopLogger{})
	count, err := b.MessageCount(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestQueueURL(t *testing.T) {
	b := NewWithClient(resolvingMock(), false, watermill.NopLogger{})
	url, err := b.QueueURL(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, queueURLFor("orders"), url)

	b = NewWithClient(missingQueueMock(), false, watermill.NopLogger{})
	_, err = b.QueueURL(context.Background(), "orders")
	assert.ErrorIs(t, err, broker.ErrQueueNotFound)
}

func TestQueueURL_Caching(t *testing.T) {
	calls := 0
	api := resolvingMock()
	inner := api.getQueueUrl
	api.getQueueUrl = func(ctx context.Context, params *amazonsqs.GetQueueUrlInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.GetQueueUrlOutput, error) {
		calls++
		return inner(ctx, params, optFns...)
	}

	b := NewWithClient(api, false, watermill.NopLogger{})
	for i := 0; i < 3; i++ {
		_, err := b.QueueURL(context.Background(), "orders")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, calls)
}

func TestQueueAttributes_MissingQueue(t *testing.T) {
	b := NewWithClient(missingQueueMock(), false, watermill.NopLogger{})
	attrs, err := b.QueueAttributes(context.Background(), "orders")
	require.NoError(t, err)
	assert.Empty(t, attrs)
}

func TestClear_GatedByConfig(t *testing.T) {
	b := NewWithClient(resolvingMock(), false, watermill.NopLogger{})
	err := b.Clear(context.Background(), "orders")
	assert.ErrorIs(t, err, broker.ErrPurgeUnsupported)

	err = b.ClearAll(context.Background())
	assert.ErrorIs(t, err, broker.ErrPurgeUnsupported)
}

func TestClear_Enabled(t *testing.T) {
	purged := []string{}
	api := resolvingMock()
	api.purgeQueue = func(ctx context.Context, params *amazonsqs.PurgeQueueInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.PurgeQueueOutput, error) {
		purged = append(purged, aws.ToString(params.QueueUrl))
		return &amazonsqs.PurgeQueueOutput{}, nil
	}

	b := NewWithClient(api, true, watermill.NopLogger{})
	require.NoError(t, b.Clear(context.Background(), "orders"))
	assert.Equal(t, []string{queueURLFor("orders")}, purged)
}

func TestClearAll_UsesResolvedQueues(t *testing.T) {
	purged := map[string]bool{}
	api := resolvingMock()
	api.purgeQueue = func(ctx context.Context, params *amazonsqs.PurgeQueueInput, optFns ...func(*amazonsqs.Options)) (*amazonsqs.PurgeQueueOutput, error) {
		purged[aws.ToString(params.QueueUrl)] = true
		return &amazonsqs.PurgeQueueOutput{}, nil
	}

	b := NewWithClient(api, true, watermill.NopLogger{})

	// ClearAll only touches queues this process has resolved.
	require.NoError(t, b.ClearAll(context.Background()))
	assert.Empty(t, purged)

	_, err := b.QueueURL(context.Background(), "orders")
	require.NoError(t, err)
	_, err = b.QueueURL(context.Background(), "emails")
	require.NoError(t, err)

	require.NoError(t, b.ClearAll(context.Background()))
	assert.True(t, purged[queueURLFor("orders")])
	assert.True(t, purged[queueURLFor("emails")])
}

func TestCapabilities_ReflectPurgeGate(t *testing.T) {
	b := NewWithClient(resolvingMock(), false, watermill.NopLogger{})
	assert.False(t, b.Capabilities().SupportsPurge)

	b = NewWithClient(resolvingMock(), true, watermill.NopLogger{})
	assert.True(t, b.Capabilities().SupportsPurge)
}

func TestEmptyQueueName(t *testing.T) {
	b := NewWithClient(resolvingMock(), true, watermill.NopLogger{})
	ctx := context.Background()

	_, err := b.Send(ctx, "", broker.Message{})
	assert.ErrorIs(t, err, broker.ErrEmptyQueueName)
	_, err = b.Receive(ctx, "", 1)
	assert.ErrorIs(t, err, broker.ErrEmptyQueueName)
	assert.ErrorIs(t, b.Clear(ctx, ""), broker.ErrEmptyQueueName)
}

func TestRegisteredInRegistry(t *testing.T) {
	assert.True(t, broker.DefaultRegistry.Has(BrokerName))
	assert.Equal(t, broker.SQSCapabilities, broker.GetCapabilities(BrokerName))
}
