package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/crewflow/llm"
	"go.uber.org/zap"
)

// WebSearchProvider defines the interface for web search backends.
type WebSearchProvider interface {
	// Search performs a web search and returns results.
	Search(ctx context.Context, query string, opts WebSearchOptions) ([]WebSearchResult, error)
	// Name returns the provider name.
	Name() string
}

// WebSearchOptions configures a web search request.
type WebSearchOptions struct {
	MaxResults int    `json:"max_results"`        // Maximum number of results (default: 10)
	Language   string `json:"language,omitempty"` // Language code (e.g., "en", "zh")
	Region     string `json:"region,omitempty"`   // Region code (e.g., "us", "cn")
}

// DefaultWebSearchOptions returns sensible defaults.
func DefaultWebSearchOptions() WebSearchOptions {
	return WebSearchOptions{
		MaxResults: 10,
		Language:   "en",
	}
}

// WebSearchResult represents a single search result.
type WebSearchResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position,omitempty"`
	Date     string `json:"date,omitempty"`
}

// WebSearchToolConfig configures the web search tool.
type WebSearchToolConfig struct {
	Provider    WebSearchProvider // Search backend provider
	DefaultOpts WebSearchOptions  // Default search options
	Timeout     time.Duration     // Per-search timeout
	CacheTTL    time.Duration     // Result cache TTL
	RateLimit   *RateLimitConfig  // Rate limiting
}

// DefaultWebSearchToolConfig returns sensible defaults.
func DefaultWebSearchToolConfig() WebSearchToolConfig {
	return WebSearchToolConfig{
		DefaultOpts: DefaultWebSearchOptions(),
		Timeout:     15 * time.Second,
		CacheTTL:    time.Hour,
		RateLimit: &RateLimitConfig{
			MaxCalls: 30,
			Window:   time.Minute,
		},
	}
}

type webSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	Language   string `json:"language,omitempty"`
	Region     string `json:"region,omitempty"`
}

// WebSearchResponse is the output of the web search tool.
type WebSearchResponse struct {
	Query      string            `json:"query"`
	Results    []WebSearchResult `json:"results"`
	TotalCount int               `json:"total_count"`
}

// NewWebSearchTool creates a ToolFunc for web searching (tool web_search, arg query).
func NewWebSearchTool(config WebSearchToolConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("tool", "web_search"))

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params webSearchArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid web_search arguments: %w", err)
		}
		if params.Query == "" {
			return nil, fmt.Errorf("query is required")
		}
		if config.Provider == nil {
			return nil, fmt.Errorf("web search provider not configured")
		}

		opts := config.DefaultOpts
		if params.MaxResults > 0 {
			opts.MaxResults = params.MaxResults
		}
		if params.Language != "" {
			opts.Language = params.Language
		}
		if params.Region != "" {
			opts.Region = params.Region
		}

		start := time.Now()
		results, err := config.Provider.Search(ctx, params.Query, opts)
		if err != nil {
			logger.Warn("web search failed", zap.String("query", params.Query), zap.Error(err))
			return nil, fmt.Errorf("web search failed: %w", err)
		}

		logger.Info("web search completed",
			zap.String("query", params.Query),
			zap.Int("results", len(results)),
			zap.Duration("duration", time.Since(start)))

		return json.Marshal(WebSearchResponse{
			Query:      params.Query,
			Results:    results,
			TotalCount: len(results),
		})
	}

	metadata := ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        "web_search",
			Description: "Search the web for information. Returns a list of relevant results with titles, URLs, and snippets.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "The search query"},
					"max_results": {"type": "integer", "description": "Maximum number of results to return (default: 10)"},
					"language": {"type": "string", "description": "Language code for results (e.g., 'en')"},
					"region": {"type": "string", "description": "Region code for results (e.g., 'us')"}
				},
				"required": ["query"]
			}`),
		},
		Timeout:     config.Timeout,
		CacheTTL:    config.CacheTTL,
		RateLimit:   config.RateLimit,
		Description: "Web search tool that queries a search engine and returns relevant results.",
	}

	return fn, metadata
}

// RegisterWebSearchTool creates and registers the web search tool.
func RegisterWebSearchTool(registry ToolRegistry, config WebSearchToolConfig, logger *zap.Logger) error {
	fn, metadata := NewWebSearchTool(config, logger)
	return registry.Register("web_search", fn, metadata)
}
