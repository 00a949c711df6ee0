package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Webhook is one outbound event destination.
type Webhook struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// LoadWebhooks reads the webhook destination list. A missing path yields an
// empty list so the dispatcher stays idle.
func LoadWebhooks(path string) ([]Webhook, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc struct {
		Webhooks []Webhook `yaml:"webhooks"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	for i, hook := range doc.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return nil, fmt.Errorf("config: webhook %d missing url", i)
		}
		if strings.TrimSpace(hook.Name) == "" {
			doc.Webhooks[i].Name = hook.URL
		}
	}
	return doc.Webhooks, nil
}
