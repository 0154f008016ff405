package model

import (
	"fmt"

	"github.com/itsneelabh/infergate/core"
	"github.com/itsneelabh/infergate/telemetry"
)

// Registry holds the configured model clients and implements
// core.ModelResolver. Entries are resolved by their registry name, not
// the upstream model identifier.
type Registry struct {
	clients    map[string]*Client
	text       *Client
	multimodal *Client
}

// NewRegistry builds the clients from configuration. The shared traced
// HTTP client is reused across all entries so connection pools are not
// duplicated per model.
func NewRegistry(config core.ModelsConfig, logger core.Logger) (*Registry, error) {
	if len(config.Entries) == 0 {
		return nil, &core.GatewayError{
			Op:      "model.NewRegistry",
			Kind:    "config",
			Message: "no models configured",
			Err:     core.ErrMissingConfiguration,
		}
	}

	httpClient := telemetry.NewTracedHTTPClient(config.Timeout)

	r := &Registry{clients: make(map[string]*Client, len(config.Entries))}
	for name, entry := range config.Entries {
		r.clients[name] = NewClient(ClientConfig{
			Model:      entry.Model,
			BaseURL:    firstNonEmpty(entry.BaseURL, config.BaseURL),
			APIKey:     firstNonEmpty(entry.APIKey, config.APIKey),
			HTTPClient: httpClient,
			MaxRetries: config.RetryAttempts,
			RetryDelay: config.RetryDelay,
			Logger:     logger,
		})
	}

	var err error
	if r.text, err = r.alias("text_model", config.TextModel); err != nil {
		return nil, err
	}
	if r.multimodal, err = r.alias("multimodal_model", config.MultimodalModel); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) alias(role, name string) (*Client, error) {
	client, ok := r.clients[name]
	if !ok {
		return nil, &core.GatewayError{
			Op:      "model.NewRegistry",
			Kind:    "config",
			Message: fmt.Sprintf("%s '%s' is not among the configured models", role, name),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	return client, nil
}

// Resolve returns the client registered under name.
func (r *Registry) Resolve(name string) (core.ChatModel, error) {
	client, ok := r.clients[name]
	if !ok {
		return nil, &core.GatewayError{
			Op:      "model.Resolve",
			Kind:    "model",
			ID:      name,
			Message: fmt.Sprintf("Model '%s' not existed", name),
			Err:     core.ErrModelNotFound,
		}
	}
	return client, nil
}

// ForMessage routes media-carrying payloads to the multimodal model and
// everything else to the text model.
func (r *Registry) ForMessage(message *core.Message) core.ChatModel {
	if message != nil && message.IsMultimodal() {
		return r.multimodal
	}
	return r.text
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
