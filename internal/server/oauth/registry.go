package oauth

import (
	"net/http"

	"github.com/gainsborouo/ta-source/internal/common"
	"github.com/gainsborouo/ta-source/internal/server/config"
)

// Registry holds one Client per configured provider.
type Registry struct {
	clients map[string]*Client
	order   []string
}

// NewRegistry builds clients for providers, which are expected to be
// validated and active already.
func NewRegistry(providers []config.ProviderConfig, httpClient *http.Client) *Registry {
	r := &Registry{clients: make(map[string]*Client, len(providers))}
	for _, p := range providers {
		r.clients[p.Name] = NewClient(p, httpClient)
		r.order = append(r.order, p.Name)
	}
	return r
}

// Get returns the named provider or common.ErrUnknownProvider.
func (r *Registry) Get(name string) (*Client, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, common.ErrUnknownProvider
	}
	return c, nil
}

// Default returns the first configured provider, used by the unqualified
// /oauth/login and /oauth/callback routes.
func (r *Registry) Default() (*Client, error) {
	if len(r.order) == 0 {
		return nil, common.ErrUnknownProvider
	}
	return r.clients[r.order[0]], nil
}

// Names lists providers in configuration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
