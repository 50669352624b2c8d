package auth

import (
	"net/http"
)

// SourceDescriptor is implemented by sources that can name themselves.
type SourceDescriptor interface {
	Method() string
}

// ChainSource tries multiple token sources in sequence.
// The first source that finds a credential wins. If a source finds a
// credential that is unusable, the chain stops and returns that error.
type ChainSource struct {
	sources []TokenSource
}

// NewChainSource creates a new chain. Sources are tried in the order provided.
func NewChainSource(sources ...TokenSource) *ChainSource {
	sourcesCopy := make([]TokenSource, len(sources))
	copy(sourcesCopy, sources)

	return &ChainSource{
		sources: sourcesCopy,
	}
}

// Extract implements TokenSource.
func (c *ChainSource) Extract(r *http.Request) (string, bool, error) {
	for _, src := range c.sources {
		token, ok, err := src.Extract(r)
		if err != nil {
			return "", false, err
		}
		if ok {
			return token, true, nil
		}
	}
	return "", false, nil
}

// Methods returns the method names of all sources in the chain.
func (c *ChainSource) Methods() []string {
	var methods []string
	for _, s := range c.sources {
		if desc, ok := s.(SourceDescriptor); ok {
			methods = append(methods, desc.Method())
		}
	}
	return methods
}
