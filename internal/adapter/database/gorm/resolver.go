package gorm

import (
	"context"
	"fmt"

	"github.com/tigerroll/bikeshare/internal/adapter/database"
	"github.com/tigerroll/bikeshare/internal/support/configbinder"
)

// TypedResolver dispatches a connection name to the provider registered for its type.
type TypedResolver struct {
	configs   map[string]interface{}
	providers map[string]database.Provider
}

var _ database.Resolver = (*TypedResolver)(nil)

// NewResolver creates a resolver over the "database" configuration section.
func NewResolver(configs map[string]interface{}, providers ...database.Provider) *TypedResolver {
	byType := make(map[string]database.Provider, len(providers))
	for _, p := range providers {
		byType[p.Type()] = p
	}
	return &TypedResolver{configs: configs, providers: byType}
}

// ResolveConnection returns the connection configured under name.
func (r *TypedResolver) ResolveConnection(ctx context.Context, name string) (database.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var head struct {
		Type string `yaml:"type"`
	}
	if err := configbinder.BindNamed(r.configs, name, &head); err != nil {
		return nil, fmt.Errorf("database connection '%s': %w", name, err)
	}
	p, ok := r.providers[head.Type]
	if !ok {
		return nil, fmt.Errorf("no database provider registered for type '%s' (connection '%s')", head.Type, name)
	}
	return p.GetConnection(name)
}

// CloseAll closes the connections of every provider.
func (r *TypedResolver) CloseAll() error {
	var firstErr error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
