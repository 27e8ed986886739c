package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oddiya/queueflow/broker"
	brokerspkg "github.com/oddiya/queueflow/internal/runtime/brokers"
	configpkg "github.com/oddiya/queueflow/internal/runtime/config"
	errspkg "github.com/oddiya/queueflow/internal/runtime/errors"
	loggingpkg "github.com/oddiya/queueflow/internal/runtime/logging"
)

// HealthStatus reports overall messaging health.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "HEALTHY"
	HealthStatusDegraded HealthStatus = "DEGRADED"
)

// QueueStatistics is the per-queue snapshot served to administrative callers.
type QueueStatistics struct {
	QueueName    string            `json:"queue_name"`
	MessageCount int64             `json:"message_count"`
	QueueURL     string            `json:"queue_url,omitempty"`
	Exists       bool              `json:"exists"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	LastChecked  time.Time         `json:"last_checked"`
}

// HealthReport summarizes the existence of the critical queue set.
type HealthReport struct {
	Status    HealthStatus    `json:"status"`
	Queues    map[string]bool `json:"queues"`
	CheckedAt time.Time       `json:"checked_at"`
}

// ServiceDependencies holds optional collaborators for the Service.
// Leave fields nil to use the defaults.
type ServiceDependencies struct {
	// BrokerFactory overrides broker construction; defaults to the modular
	// broker registry.
	BrokerFactory brokerspkg.Factory
	// MetricsRegisterer receives the Prometheus collectors when metrics are
	// enabled. Defaults to prometheus.DefaultRegisterer.
	MetricsRegisterer prometheus.Registerer
}

// Service wires a broker, dispatcher, metrics, and the admin HTTP surface.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	broker     broker.Broker
	dispatcher *Dispatcher
	metrics    *QueueMetrics

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// NewService constructs a Service for the supplied configuration.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.NewConfigValidationError(errors.New("config is required"))
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	log.Info("Creating messaging service", loggingpkg.LogFields{
		"queue_system": conf.GetQueueSystem(),
		"config":       conf,
	})

	factory := deps.BrokerFactory
	if factory == nil {
		factory = brokerspkg.DefaultFactory()
	}

	b, err := factory.Build(ctx, conf, loggingpkg.NewWatermillAdapter(log))
	if err != nil {
		return nil, err
	}

	var metrics *QueueMetrics
	if conf.MetricsEnabled {
		metrics = NewQueueMetrics(deps.MetricsRegisterer)
		if err := metrics.Register(); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	dispatcher, err := NewDispatcher(b, log, metrics)
	if err != nil {
		return nil, err
	}

	return &Service{
		Conf:        conf,
		Logger:      log,
		broker:      b,
		dispatcher:  dispatcher,
		metrics:     metrics,
		httpServers: make(map[int]*http.ServeMux),
	}, nil
}

// Dispatcher returns the dispatch facade.
func (s *Service) Dispatcher() *Dispatcher { return s.dispatcher }

// Broker returns the active broker for administrative callers that address
// queues by name, bypassing category resolution.
func (s *Service) Broker() broker.Broker { return s.broker }

// Metrics returns the queue metrics collector, or nil when disabled.
func (s *Service) Metrics() *QueueMetrics { return s.metrics }

// Capabilities reports the active broker's effective capabilities.
func (s *Service) Capabilities() broker.Capabilities {
	if provider, ok := s.broker.(broker.CapabilitiesProvider); ok {
		return provider.Capabilities()
	}
	return broker.GetCapabilities(s.Conf.GetQueueSystem())
}

// PurgeAllowed is the capability flag gating destructive admin operations.
func (s *Service) PurgeAllowed() bool {
	return s.Capabilities().SupportsPurge
}

// QueueInfo is the strict single-queue lookup: it returns ErrQueueNotFound
// for a queue the broker has never seen, for callers that must distinguish
// "never existed" from "empty".
func (s *Service) QueueInfo(ctx context.Context, queueName string) (QueueStatistics, error) {
	if queueName == "" {
		return QueueStatistics{}, errspkg.ErrQueueNameRequired
	}
	stats, err := s.collectQueueStatistics(ctx, queueName)
	if err != nil {
		return QueueStatistics{}, err
	}
	if !stats.Exists {
		return QueueStatistics{}, fmt.Errorf("%w: %s", broker.ErrQueueNotFound, queueName)
	}
	return stats, nil
}

// AllQueueStatistics reports every registered category queue plus any
// additional queues the local broker has seen. Missing queues report
// exists=false with a zero count rather than an error, keeping health-check
// polling simple.
func (s *Service) AllQueueStatistics(ctx context.Context) ([]QueueStatistics, error) {
	names := RegisteredQueueNames()
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[name] = true
	}

	// Ad-hoc queues are only enumerable on brokers that track them.
	if lister, ok := s.broker.(interface{ QueueNames() []string }); ok {
		for _, name := range lister.QueueNames() {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	out := make([]QueueStatistics, 0, len(names))
	for _, name := range names {
		stats, err := s.collectQueueStatistics(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, stats)
	}
	return out, nil
}

func (s *Service) collectQueueStatistics(ctx context.Context, queueName string) (QueueStatistics, error) {
	stats := QueueStatistics{
		QueueName:   queueName,
		LastChecked: time.Now().UTC(),
	}

	exists, err := s.broker.QueueExists(ctx, queueName)
	if err != nil {
		return QueueStatistics{}, err
	}
	stats.Exists = exists
	if !exists {
		return stats, nil
	}

	count, err := s.broker.MessageCount(ctx, queueName)
	if err != nil {
		return QueueStatistics{}, err
	}
	stats.MessageCount = count

	url, err := s.broker.QueueURL(ctx, queueName)
	if err != nil {
		return QueueStatistics{}, err
	}
	stats.QueueURL = url

	attrs, err := s.broker.QueueAttributes(ctx, queueName)
	if err != nil {
		return QueueStatistics{}, err
	}
	stats.Attributes = attrs

	if s.metrics != nil {
		s.metrics.SetDepth(queueName, count)
	}
	return stats, nil
}

// Health reports HEALTHY when every critical queue exists, DEGRADED
// otherwise. The critical set defaults to all registered category queues.
func (s *Service) Health(ctx context.Context) HealthReport {
	critical := s.Conf.CriticalQueues
	if len(critical) == 0 {
		critical = RegisteredQueueNames()
	}

	report := HealthReport{
		Status:    HealthStatusHealthy,
		Queues:    make(map[string]bool, len(critical)),
		CheckedAt: time.Now().UTC(),
	}

	for _, name := range critical {
		exists, err := s.broker.QueueExists(ctx, name)
		if err != nil {
			s.Logger.Error("Health check failed for queue", err, loggingpkg.LogFields{"queue": name})
			exists = false
		}
		report.Queues[name] = exists
		if !exists {
			report.Status = HealthStatusDegraded
		}
	}
	return report
}

// ClearQueue purges one queue by name.
func (s *Service) ClearQueue(ctx context.Context, queueName string) error {
	if queueName == "" {
		return errspkg.ErrQueueNameRequired
	}
	if err := s.broker.Clear(ctx, queueName); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordPurge(queueName)
	}
	return nil
}

// ClearAllQueues purges every known queue.
func (s *Service) ClearAllQueues(ctx context.Context) error {
	if err := s.broker.ClearAll(ctx); err != nil {
		return err
	}
	if s.metrics != nil {
		for _, name := range RegisteredQueueNames() {
			s.metrics.RecordPurge(name)
		}
	}
	return nil
}

// Receive reads up to maxMessages raw messages from the named queue. This is
// an administrative/debug operation: on the memory broker it drains the
// queue.
func (s *Service) Receive(ctx context.Context, queueName string, maxMessages int) ([]broker.Message, error) {
	msgs, err := s.broker.Receive(ctx, queueName, maxMessages)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordReceive(queueName, len(msgs))
	}
	return msgs, nil
}

// Start launches the admin HTTP surface, when enabled, and blocks until the
// context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.StartAdminAPIServer()
	s.startHTTPServers()
	<-ctx.Done()
	return s.Close()
}

// RegisterHTTPHandler mounts a handler on the mux for the given port. All
// handlers registered before Start share one server per port.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
			}
		}(addr, mux)
	}
}

// Close releases the broker.
func (s *Service) Close() error {
	return s.broker.Close()
}
