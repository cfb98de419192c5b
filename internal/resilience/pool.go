package resilience

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// HostPool routes each request to an HTTPClient dedicated to the request's
// host, so every payment provider trips its own breaker.
type HostPool struct {
	// New builds the client for a host the first time it is seen.
	New func(host string) HTTPClient

	mu      sync.Mutex
	clients map[string]HTTPClient
}

// Do executes req with the client owned by req.URL.Host.
func (p *HostPool) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return p.client(strings.ToLower(req.URL.Host)).Do(ctx, req)
}

func (p *HostPool) client(host string) HTTPClient {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cl, ok := p.clients[host]; ok {
		return cl
	}
	if p.clients == nil {
		p.clients = map[string]HTTPClient{}
	}
	cl := p.New(host)
	p.clients[host] = cl
	return cl
}

// Breakers returns the breakers created so far, ordered by target.
func (p *HostPool) Breakers() []*Breaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Breaker, 0, len(p.clients))
	for _, cl := range p.clients {
		if cl.Breaker != nil {
			out = append(out, cl.Breaker)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target() < out[j].Target() })
	return out
}
