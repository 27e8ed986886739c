package brokers

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	brokerpkg "github.com/oddiya/queueflow/broker"
	"github.com/oddiya/queueflow/internal/runtime/config"

	// Import all broker packages to register them.
	_ "github.com/oddiya/queueflow/broker/memory"
	_ "github.com/oddiya/queueflow/broker/sqs"
)

// Factory abstracts how the service initialises brokers. Supply a custom
// implementation through ServiceDependencies to plug in an out-of-tree
// broker.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (brokerpkg.Broker, error)
}

// DefaultFactory returns the built-in factory that uses the modular broker
// registry.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (brokerpkg.Broker, error) {
	if conf == nil {
		return nil, fmt.Errorf("config is required")
	}
	return brokerpkg.Build(ctx, conf, logger)
}
