// Package queueflow is an asynchronous messaging layer for the Oddiya
// backend. It routes typed envelopes (email, image processing, analytics,
// recommendations, video processing) to well-known queues through a
// transport-agnostic broker port, with an in-memory broker for local
// development and tests and an SQS broker for production.
//
// Dispatch is fire-and-forget with observability: every Dispatch call returns
// a Future that resolves once the broker has accepted the message, never once
// a downstream consumer has processed it. Callers that only care about
// best-effort delivery simply drop the future.
//
// A minimal setup fills Config, creates a Service, and dispatches through its
// Dispatcher:
//
//	conf := &queueflow.Config{QueueSystem: "memory"}
//	svc, err := queueflow.NewService(ctx, conf, logger, queueflow.ServiceDependencies{})
//	if err != nil { ... }
//	defer svc.Close()
//
//	future := svc.Dispatcher().SendEmail(ctx, &queueflow.EmailMessage{
//		Recipient: "user@example.com",
//		Subject:   "Welcome",
//		Template:  "welcome",
//	})
//	result, err := future.Get(ctx)
//
// # Brokers
//
// Brokers register themselves in a registry keyed by queue system name:
//   - memory: in-process FIFO queues for development and tests
//   - sqs: AWS SQS, including LocalStack via Config.AWSEndpoint
//
// Custom brokers can be plugged in with RegisterBroker, or by supplying a
// BrokerFactory through ServiceDependencies.
//
// # Administration
//
// When Config.AdminAPIEnabled is set, Service.Start exposes an HTTP API for
// dispatching messages, inspecting queue statistics, purging queues (where
// the broker permits it), and health checking the critical queue set.
package queueflow
