// Package openaicompat provides a shared base implementation for every
// OpenAI-compatible chat completions endpoint.
//
// OpenAI itself, self-hosted gateways and Ollama's /v1 surface share the same
// wire format. The ollama package embeds [Provider] and only overrides the
// health endpoint and content post-processing.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName:  "openai",
//	    APIKey:        cfg.APIKey,
//	    BaseURL:       "https://api.openai.com",
//	    DefaultModel:  "gpt-4o-mini",
//	}, logger)
package openaicompat
