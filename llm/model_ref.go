package llm

import (
	"fmt"
	"strings"
)

// DefaultProviderName is used when a model reference carries no provider prefix.
const DefaultProviderName = "openai"

// ModelRef identifies a model on a provider, written as "provider/model"
// (for example "ollama/deepseek-r1:8b").
type ModelRef struct {
	Provider string
	Model    string
}

func (r ModelRef) String() string {
	return r.Provider + "/" + r.Model
}

// ParseModelRef splits a "provider/model" reference. Only the first slash
// separates the provider, so model names may contain further slashes.
func ParseModelRef(s string) (ModelRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ModelRef{}, fmt.Errorf("empty model reference")
	}
	provider, model, found := strings.Cut(s, "/")
	if !found {
		return ModelRef{Provider: DefaultProviderName, Model: s}, nil
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if provider == "" || model == "" {
		return ModelRef{}, fmt.Errorf("invalid model reference %q", s)
	}
	return ModelRef{Provider: provider, Model: model}, nil
}
