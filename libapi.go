package queueflow

import (
	"github.com/oddiya/queueflow/broker"
	runtimepkg "github.com/oddiya/queueflow/internal/runtime"
	brokerspkg "github.com/oddiya/queueflow/internal/runtime/brokers"
	configpkg "github.com/oddiya/queueflow/internal/runtime/config"
	errspkg "github.com/oddiya/queueflow/internal/runtime/errors"
	idspkg "github.com/oddiya/queueflow/internal/runtime/ids"
	jsoncodec "github.com/oddiya/queueflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/oddiya/queueflow/internal/runtime/logging"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	Dispatcher          = runtimepkg.Dispatcher
	BrokerFactory       = brokerspkg.Factory

	// Envelope types
	Envelope               = runtimepkg.Envelope
	EnvelopeBase           = runtimepkg.EnvelopeBase
	Category               = runtimepkg.Category
	EmailMessage           = runtimepkg.EmailMessage
	ImageProcessingMessage = runtimepkg.ImageProcessingMessage
	AnalyticsMessage       = runtimepkg.AnalyticsMessage
	RecommendationMessage  = runtimepkg.RecommendationMessage
	VideoProcessingMessage = runtimepkg.VideoProcessingMessage

	// Futures
	Future[T any] = runtimepkg.Future[T]

	// Broker port types
	Broker               = broker.Broker
	BrokerConfig         = broker.Config
	BrokerBuilder        = broker.Builder
	BrokerCapabilities   = broker.Capabilities
	Message              = broker.Message
	SendResult           = broker.SendResult
	BatchResult          = broker.BatchResult
	BatchError           = broker.BatchError
	TransportError       = broker.TransportError
	CapabilitiesProvider = broker.CapabilitiesProvider

	// Statistics and health
	QueueStatistics      = runtimepkg.QueueStatistics
	QueueMetrics         = runtimepkg.QueueMetrics
	QueueTrafficMetrics  = runtimepkg.QueueTrafficMetrics
	QueueMetricsSnapshot = runtimepkg.QueueMetricsSnapshot
	HealthReport         = runtimepkg.HealthReport
	HealthStatus         = runtimepkg.HealthStatus

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigValidationError = errspkg.ConfigValidationError
	ValidationError       = errspkg.ValidationError
)

const (
	CategoryEmail           = runtimepkg.CategoryEmail
	CategoryImageProcessing = runtimepkg.CategoryImageProcessing
	CategoryAnalytics       = runtimepkg.CategoryAnalytics
	CategoryRecommendation  = runtimepkg.CategoryRecommendation
	CategoryVideoProcessing = runtimepkg.CategoryVideoProcessing

	HealthStatusHealthy  = runtimepkg.HealthStatusHealthy
	HealthStatusDegraded = runtimepkg.HealthStatusDegraded
)

var (
	NewService     = runtimepkg.NewService
	NewDispatcher  = runtimepkg.NewDispatcher
	ValidateConfig = configpkg.ValidateConfig

	// Category registry
	Categories           = runtimepkg.Categories
	RegisteredQueueNames = runtimepkg.RegisteredQueueNames

	// Metrics
	NewQueueMetrics = runtimepkg.NewQueueMetrics

	// Modular broker registry
	// Import individual brokers via: _ "github.com/oddiya/queueflow/broker/memory"
	DefaultBrokerRegistry  = broker.DefaultRegistry
	RegisterBroker         = broker.Register
	BuildBroker            = broker.Build
	GetBrokerCapabilities  = broker.GetCapabilities
	DefaultBrokerFactory   = brokerspkg.DefaultFactory
	NewBrokerTransportErr  = broker.NewTransportError
	IsBrokerTransportErr   = broker.IsTransportError
	NewValidationError     = errspkg.NewValidationError
	IsValidationError      = errspkg.IsValidationError
	NewConfigValidationErr = errspkg.NewConfigValidationError

	// Broker sentinel errors
	ErrQueueNotFound     = broker.ErrQueueNotFound
	ErrPurgeUnsupported  = broker.ErrPurgeUnsupported
	ErrEmptyQueueName    = broker.ErrEmptyQueueName
	ErrBrokerClosed      = broker.ErrBrokerClosed
	ErrMessageTooLarge   = broker.ErrMessageTooLarge
	ErrEmptyBatch        = broker.ErrEmptyBatch
	ErrBatchTooLarge     = broker.ErrBatchTooLarge
	ErrBrokerRequired    = errspkg.ErrBrokerRequired
	ErrLoggerRequired    = errspkg.ErrLoggerRequired
	ErrEnvelopeRequired  = errspkg.ErrEnvelopeRequired
	ErrQueueNameRequired = errspkg.ErrQueueNameRequired
	ErrUnknownCategory   = errspkg.ErrUnknownCategory

	// Futures
	NewFuture      = runtimepkg.NewFuture[SendResult]
	NewBatchFuture = runtimepkg.NewFuture[BatchResult]

	Marshal       = jsoncodec.Marshal
	MarshalString = jsoncodec.MarshalString
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopServiceLogger       = loggingpkg.NewNopServiceLogger

	// NewMessageID generates a unique message ID using ULID.
	NewMessageID = idspkg.NewMessageID
)
