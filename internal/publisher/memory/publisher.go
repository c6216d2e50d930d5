// Package memory contains an in-memory snapshot publisher for tests and dry runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Publisher stores published payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages [][]byte
	err      error
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes subsequent Publish calls return err. A nil err restores normal behavior.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records the JSON encoding of payload and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, data)
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns copies of the recorded payloads.
func (p *Publisher) Messages() [][]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([][]byte, len(p.messages))
	for i, m := range p.messages {
		out[i] = append([]byte(nil), m...)
	}
	return out
}
