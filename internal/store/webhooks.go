package store

import (
	"sync"

	"sentinelpay/monitor/internal/domain"
)

// Webhooks holds registered alert callbacks in memory. Registrations do not
// survive a restart whatever transaction backend is configured.
type Webhooks struct {
	mu    sync.RWMutex
	hooks map[string]*domain.WebhookConfig
}

// NewWebhooks creates an empty registry.
func NewWebhooks() *Webhooks {
	return &Webhooks{hooks: make(map[string]*domain.WebhookConfig)}
}

// Save persists a webhook configuration.
func (w *Webhooks) Save(wh *domain.WebhookConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hooks[wh.ID] = wh
}

// Delete removes a webhook by ID. Returns false if not found.
func (w *Webhooks) Delete(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, exists := w.hooks[id]
	if exists {
		delete(w.hooks, id)
	}
	return exists
}

// ListActive returns all webhooks that are currently active.
func (w *Webhooks) ListActive() []*domain.WebhookConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()

	result := []*domain.WebhookConfig{}
	for _, wh := range w.hooks {
		if wh.Active {
			result = append(result, wh)
		}
	}
	return result
}
