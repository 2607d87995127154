package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/crewflow/llm"
	"go.uber.org/zap"
)

// WebScrapeProvider 定义网页抓取后端接口。
type WebScrapeProvider interface {
	// Scrape 从 URL 获取并提取内容。
	Scrape(ctx context.Context, url string, opts WebScrapeOptions) (*WebScrapeResult, error)
	// Name 返回提供者名称。
	Name() string
}

// WebScrapeOptions 网页抓取选项。
type WebScrapeOptions struct {
	IncludeLinks bool `json:"include_links,omitempty"` // Include hyperlinks in output
	MaxLength    int  `json:"max_length,omitempty"`    // Maximum content length in characters
}

// DefaultWebScrapeOptions 返回默认抓取选项。
func DefaultWebScrapeOptions() WebScrapeOptions {
	return WebScrapeOptions{
		IncludeLinks: true,
		MaxLength:    32 * 1024,
	}
}

// WebScrapeResult 表示从 URL 抓取的内容。
type WebScrapeResult struct {
	URL       string        `json:"url"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	WordCount int           `json:"word_count"`
	Truncated bool          `json:"truncated,omitempty"`
	Links     []ScrapedLink `json:"links,omitempty"`
	ScrapedAt time.Time     `json:"scraped_at"`
}

// ScrapedLink 表示页面中的超链接。
type ScrapedLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// WebScrapeToolConfig 网页抓取工具配置。
type WebScrapeToolConfig struct {
	Provider    WebScrapeProvider // Scraping backend provider
	DefaultOpts WebScrapeOptions  // Default scrape options
	Timeout     time.Duration     // Per-scrape timeout
	CacheTTL    time.Duration     // Result cache TTL
	RateLimit   *RateLimitConfig  // Rate limiting
}

// DefaultWebScrapeToolConfig 返回合理的默认值。
func DefaultWebScrapeToolConfig() WebScrapeToolConfig {
	return WebScrapeToolConfig{
		DefaultOpts: DefaultWebScrapeOptions(),
		Timeout:     30 * time.Second,
		CacheTTL:    15 * time.Minute,
		RateLimit: &RateLimitConfig{
			MaxCalls: 20,
			Window:   time.Minute,
		},
	}
}

type webScrapeArgs struct {
	URL          string `json:"url"`
	IncludeLinks *bool  `json:"include_links,omitempty"`
	MaxLength    int    `json:"max_length,omitempty"`
}

// NewWebScrapeTool 创建网页抓取 ToolFunc（工具名 web_scrape，参数 url）。
func NewWebScrapeTool(config WebScrapeToolConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("tool", "web_scrape"))

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params webScrapeArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid web_scrape arguments: %w", err)
		}
		if params.URL == "" {
			return nil, fmt.Errorf("url is required")
		}
		if config.Provider == nil {
			return nil, fmt.Errorf("web scrape provider not configured")
		}

		opts := config.DefaultOpts
		if params.IncludeLinks != nil {
			opts.IncludeLinks = *params.IncludeLinks
		}
		if params.MaxLength > 0 {
			opts.MaxLength = params.MaxLength
		}

		start := time.Now()
		result, err := config.Provider.Scrape(ctx, params.URL, opts)
		if err != nil {
			logger.Warn("web scrape failed", zap.String("url", params.URL), zap.Error(err))
			return nil, fmt.Errorf("web scrape failed: %w", err)
		}

		logger.Info("web scrape completed",
			zap.String("url", params.URL),
			zap.Int("word_count", result.WordCount),
			zap.Duration("duration", time.Since(start)))

		return json.Marshal(result)
	}

	metadata := ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        "web_scrape",
			Description: "Scrape and extract the readable text of a web page URL.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"url": {"type": "string", "description": "The URL of the web page to scrape"},
					"include_links": {"type": "boolean", "description": "Whether to include hyperlinks in the output"},
					"max_length": {"type": "integer", "description": "Maximum content length in characters"}
				},
				"required": ["url"]
			}`),
		},
		Timeout:     config.Timeout,
		CacheTTL:    config.CacheTTL,
		RateLimit:   config.RateLimit,
		Description: "Web scraping tool that fetches and extracts content from web pages.",
	}

	return fn, metadata
}

// RegisterWebScrapeTool 创建并注册网页抓取工具。
func RegisterWebScrapeTool(registry ToolRegistry, config WebScrapeToolConfig, logger *zap.Logger) error {
	fn, metadata := NewWebScrapeTool(config, logger)
	return registry.Register("web_scrape", fn, metadata)
}
