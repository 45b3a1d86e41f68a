package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/bikeshare/internal/support/configbinder"
	"github.com/tigerroll/bikeshare/internal/support/logger"
)

// ProviderGroup is the Fx value group storage providers are collected in.
const ProviderGroup = "storage_providers"

// ConnectionFactory builds a connection from its decoded configuration.
type ConnectionFactory func(ctx context.Context, cfg Config, name string) (Connection, error)

// BaseProvider decodes named configurations and caches the connections
// built from them. Adapters embed it with their own factory.
type BaseProvider struct {
	providerType string
	configs      map[string]interface{}
	factory      ConnectionFactory

	connections map[string]Connection
	mu          sync.RWMutex
}

// NewBaseProvider creates a provider for providerType over the "storage" configuration section.
func NewBaseProvider(providerType string, configs map[string]interface{}, factory ConnectionFactory) *BaseProvider {
	return &BaseProvider{
		providerType: providerType,
		configs:      configs,
		factory:      factory,
		connections:  make(map[string]Connection),
	}
}

// Type returns the storage type this provider serves.
func (p *BaseProvider) Type() string {
	return p.providerType
}

// GetConnection returns the cached connection for name, creating it on first use.
func (p *BaseProvider) GetConnection(ctx context.Context, name string) (Connection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok = p.connections[name]; ok {
		return conn, nil
	}

	var cfg Config
	if err := configbinder.BindNamed(p.configs, name, &cfg); err != nil {
		return nil, fmt.Errorf("storage connection '%s': %w", name, err)
	}
	if cfg.Type != p.providerType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, p.providerType, cfg.Type)
	}

	newConn, err := p.factory(ctx, cfg, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage connection '%s': %w", p.providerType, name, err)
	}
	p.connections[name] = newConn
	logger.Debugf("Created new %s storage connection '%s'.", p.providerType, name)
	return newConn, nil
}

// CloseAll closes every cached connection.
func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close %s storage connection '%s': %w", p.providerType, name, err))
		}
		delete(p.connections, name)
	}
	return result
}

// TypedResolver dispatches a connection name to the provider matching its configured type.
type TypedResolver struct {
	configs   map[string]interface{}
	providers map[string]Provider
}

var _ Resolver = (*TypedResolver)(nil)

// NewResolver builds a resolver over the given providers.
func NewResolver(configs map[string]interface{}, providers ...Provider) *TypedResolver {
	byType := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byType[p.Type()] = p
	}
	return &TypedResolver{configs: configs, providers: byType}
}

// ResolveConnection returns the connection configured under name.
func (r *TypedResolver) ResolveConnection(ctx context.Context, name string) (Connection, error) {
	var head struct {
		Type string `yaml:"type"`
	}
	if err := configbinder.BindNamed(r.configs, name, &head); err != nil {
		return nil, fmt.Errorf("storage connection '%s': %w", name, err)
	}
	provider, ok := r.providers[head.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider registered for type '%s' (connection '%s')", head.Type, name)
	}
	return provider.GetConnection(ctx, name)
}

// CloseAll closes the connections of every provider.
func (r *TypedResolver) CloseAll() error {
	var result error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}
