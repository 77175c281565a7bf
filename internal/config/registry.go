package config

import (
	"errors"
	"fmt"
	"sync"

	"heartmirror/pkg/provider/sentiment"
	"heartmirror/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	stt       map[string]func(ProviderEntry) (stt.Recognizer, error)
	sentiment map[string]func(ProviderEntry) (sentiment.Classifier, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:       make(map[string]func(ProviderEntry) (stt.Recognizer, error)),
		sentiment: make(map[string]func(ProviderEntry) (sentiment.Classifier, error)),
	}
}

// RegisterSTT registers a speech recognizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Recognizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterSentiment registers a sentiment classifier factory under name.
func (r *Registry) RegisterSentiment(name string, factory func(ProviderEntry) (sentiment.Classifier, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sentiment[name] = factory
}

// CreateSTT instantiates a speech recognizer using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has
// been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Recognizer, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSentiment instantiates a sentiment classifier using the factory
// registered under entry.Name.
func (r *Registry) CreateSentiment(entry ProviderEntry) (sentiment.Classifier, error) {
	r.mu.RLock()
	factory, ok := r.sentiment[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sentiment/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
