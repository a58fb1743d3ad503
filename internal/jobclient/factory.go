package jobclient

import (
	"fmt"

	"go.uber.org/zap"

	"cbsent/internal/config"
	"cbsent/internal/port"
)

// ProviderFactory creates a JobClient from the remote API config.
type ProviderFactory func(cfg *config.OpenAIConfig, logger *zap.Logger) (port.JobClient, error)

// registry of job client factories, populated explicitly via RegisterProvider.
var providers = map[string]ProviderFactory{}

// RegisterProvider registers a job client factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// New creates the JobClient registered under provider.
func New(provider string, cfg *config.OpenAIConfig, logger *zap.Logger) (port.JobClient, error) {
	factory, ok := providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown job client provider: %s", provider)
	}
	return factory(cfg, logger)
}
