package payment

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/payment-router/internal/config"
)

// ErrEmptyRegistry is the sole start-up-time hard failure: no provider initialized.
var ErrEmptyRegistry = errors.New("no payment providers could be initialized")

// Factory constructs an uninitialized provider adapter.
type Factory func() Provider

// Factories is the compile-time registry of known provider constructors. Adding a
// provider means adding an entry here; there is no runtime module loading.
func Factories() map[string]Factory {
	return map[string]Factory{
		"stripe":   func() Provider { return &Stripe{} },
		"razorpay": func() Provider { return &Razorpay{} },
		"paypal":   func() Provider { return &PayPal{} },
	}
}

// Record is a registry entry: the live adapter plus its static capability
// snapshot, captured once at registration.
type Record struct {
	Name     string
	Provider Provider
	Caps     Capabilities
	order    int
}

// Registry holds initialized providers keyed by name. It is built once before
// traffic is served and is read-only afterwards, so unsynchronized concurrent
// reads are safe.
type Registry struct {
	records []*Record
	byName  map[string]*Record
}

// BuildRegistry constructs and initializes every enabled provider. Initialization
// failures are logged and the provider is skipped; it never participates in
// selection. Only an empty result is fatal.
func BuildRegistry(cfg *config.Config, factories map[string]Factory, logger zerolog.Logger) (*Registry, error) {
	if factories == nil {
		factories = Factories()
	}
	reg := &Registry{byName: make(map[string]*Record)}
	for _, name := range cfg.EnabledProviders {
		factory, ok := factories[name]
		if !ok {
			logger.Warn().Str("provider", name).Msg("unknown provider in enable list, skipping")
			continue
		}
		provider := factory()
		if err := provider.Initialize(cfg.Providers[name]); err != nil {
			logger.Error().Err(err).Str("provider", name).Msg("provider initialization failed, skipping")
			continue
		}
		record := &Record{
			Name:     name,
			Provider: provider,
			Caps:     provider.Capabilities(),
			order:    len(reg.records),
		}
		reg.records = append(reg.records, record)
		reg.byName[name] = record
		logger.Info().Str("provider", name).Strs("currencies", record.Caps.Currencies).Msg("provider registered")
	}
	if len(reg.records) == 0 {
		return nil, fmt.Errorf("%w (enabled: %v)", ErrEmptyRegistry, cfg.EnabledProviders)
	}
	return reg, nil
}

// Get returns the record for the named provider.
func (r *Registry) Get(name string) (*Record, bool) {
	record, ok := r.byName[name]
	return record, ok
}

// Records returns registry entries in registration order.
func (r *Registry) Records() []*Record {
	out := make([]*Record, len(r.records))
	copy(out, r.records)
	return out
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.records))
	for _, record := range r.records {
		names = append(names, record.Name)
	}
	return names
}

// Len reports the number of registered providers.
func (r *Registry) Len() int { return len(r.records) }
