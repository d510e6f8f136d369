package proxy

import (
	"strings"

	"github.com/Ltamann/tbg-ollama-bff/proxy/config"
)

// ModelGate validates requested model names against the allow-list.
type ModelGate struct {
	policy config.Policy
}

func NewModelGate(policy config.Policy) ModelGate {
	return ModelGate{policy: policy}
}

// Resolve substitutes the default model for a blank name and rejects names
// outside a non-empty allow-list. Accepted names are returned unchanged.
func (g ModelGate) Resolve(requested string) (string, error) {
	model := requested
	if strings.TrimSpace(model) == "" {
		model = g.policy.DefaultModel
	}
	if !g.policy.Allows(model) {
		return "", &ModelNotAllowedError{
			Model:   model,
			Allowed: append([]string(nil), g.policy.AllowedModels...),
		}
	}
	return model, nil
}
