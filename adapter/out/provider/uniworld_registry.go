package provider

import (
	"uniworld_server/core/domain"
	"uniworld_server/core/port/out"
	"uniworld_server/pkg/apperr"
)

// Registry resolves provider adapters by name.
type Registry struct {
	providers map[domain.Provider]out.MailProvider
}

var _ out.ProviderRegistry = (*Registry)(nil)

// NewRegistry builds a registry over the given adapters.
func NewRegistry(adapters ...out.MailProvider) *Registry {
	m := make(map[domain.Provider]out.MailProvider, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{providers: m}
}

// Get returns the adapter for a provider.
func (r *Registry) Get(provider domain.Provider) (out.MailProvider, error) {
	p, ok := r.providers[provider]
	if !ok {
		return nil, apperr.UnsupportedProvider(provider.String())
	}
	return p, nil
}
