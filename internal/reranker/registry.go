package reranker

import (
	"time"

	"github.com/fyrsmithlabs/ragstore/internal/config"
)

// Factory builds a provider from its configuration.
type Factory func(name string, cfg config.RerankerProviderConfig, timeout time.Duration) (Provider, error)

// factories maps provider names to dedicated factories. Names without an
// entry get the generic /v1/rerank HTTP provider, so a new hosted backend is
// a config change, not a code change.
var factories = map[string]Factory{
	"lexical": func(string, config.RerankerProviderConfig, time.Duration) (Provider, error) {
		return lexicalProvider{}, nil
	},
}

// Register adds a provider factory under a name. Later registrations win.
func Register(name string, f Factory) {
	factories[name] = f
}

func factoryFor(name string) Factory {
	if f, ok := factories[name]; ok {
		return f
	}
	return func(name string, cfg config.RerankerProviderConfig, timeout time.Duration) (Provider, error) {
		return newHTTPProvider(name, cfg, timeout)
	}
}
