package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config groups the settings required to initialise the Service. Each broker
// only uses the keys that are relevant to it.
type Config struct {
	// QueueSystem selects the backing broker. Supported values: "memory"
	// (in-process, the default) or "sqs".
	QueueSystem string

	// AWS (SQS) configuration.
	AWSRegion          string
	AWSAccountID       string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	// AWSEndpoint optionally points to a custom endpoint (for example,
	// LocalStack in local development).
	AWSEndpoint string

	// PurgeEnabled allows destructive Clear/ClearAll operations against the
	// remote broker. The memory broker always permits purging. Leave false
	// for production deployments.
	PurgeEnabled bool

	// CriticalQueues is the set of queues the health check requires to
	// exist. Empty means "all registered category queues".
	CriticalQueues []string

	// AdminAPI configuration.
	AdminAPIEnabled bool
	// AdminAPIPort is the port where the admin API will be exposed. Defaults to 8082.
	AdminAPIPort int
	// AdminAPICORSAllowedOrigins specifies allowed origins for CORS. Use "*"
	// for development or specific origins for production. Empty disables
	// CORS headers.
	AdminAPICORSAllowedOrigins []string

	// MetricsEnabled registers the Prometheus collectors for broker traffic.
	MetricsEnabled bool
}

// Getter methods to implement broker.Config.
func (c *Config) GetQueueSystem() string {
	if c.QueueSystem == "" {
		return "memory"
	}
	return c.QueueSystem
}
func (c *Config) GetAWSRegion() string          { return c.AWSRegion }
func (c *Config) GetAWSAccountID() string       { return c.AWSAccountID }
func (c *Config) GetAWSAccessKeyID() string     { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string { return c.AWSSecretAccessKey }
func (c *Config) GetAWSEndpoint() string        { return c.AWSEndpoint }
func (c *Config) GetPurgeEnabled() bool         { return c.PurgeEnabled }

func (c Config) String() string {
	// Create a copy to avoid modifying the original
	copy := c
	if copy.AWSSecretAccessKey != "" {
		copy.AWSSecretAccessKey = "***REDACTED***"
	}
	if copy.AWSAccessKeyID != "" {
		copy.AWSAccessKeyID = "***REDACTED***"
	}
	// Use a type alias to avoid infinite recursion when printing
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(copy))
}

// Validate checks that the configuration has all required fields for the
// selected broker. Returns an error describing any missing or invalid
// configuration. Validation of queue system values is lenient to allow
// custom broker registrations.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateBroker()...)
	errs = append(errs, c.validatePorts()...)

	return errors.Join(errs...)
}

func (c *Config) validateBroker() []error {
	switch strings.ToLower(c.GetQueueSystem()) {
	case "sqs":
		if c.AWSRegion == "" {
			return []error{errors.New("sqs: region is required")}
		}
	}
	// memory and custom brokers have no required config
	return nil
}

func (c *Config) validatePorts() []error {
	var errs []error
	if c.AdminAPIPort < 0 || c.AdminAPIPort > 65535 {
		errs = append(errs, fmt.Errorf("admin api: invalid port %d", c.AdminAPIPort))
	}
	return errs
}

// ValidateConfig is a convenience function to validate a config pointer.
// Returns nil if the config is valid.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
