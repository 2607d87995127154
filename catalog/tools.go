package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BaSui01/crewflow/agent/crews"
	"github.com/BaSui01/crewflow/llm/tools"
	"go.uber.org/zap"
)

const (
	scrapeToolName        = "Website Scraping Tool"
	scrapeToolDescription = "Scrape the given website."
	searchToolName        = "Search Tool"
	searchToolDescription = "Search the internet for relevant information."
)

// fixedScrapeTool 总是抓取同一个 URL，忽略模型给出的参数。
func fixedScrapeTool(d Deps, url string) crews.Tool {
	cfg := tools.DefaultWebScrapeToolConfig()
	cfg.Provider = d.Scraper
	if d.ScrapeOptions.MaxLength > 0 {
		cfg.DefaultOpts = d.ScrapeOptions
	}
	scrape, meta := tools.NewWebScrapeTool(cfg, d.logger())

	args, _ := json.Marshal(map[string]string{"url": url})
	fn, fixed := tools.NewFixedTool(scrapeToolName, scrapeToolDescription, scrape, args)
	fixed.Timeout = meta.Timeout
	fixed.CacheTTL = d.cacheTTL(meta.CacheTTL)
	fixed.RateLimit = meta.RateLimit
	return crews.NewTool(fn, fixed)
}

// fixedSearchTool 总是执行同一个查询。
func fixedSearchTool(d Deps, query string) crews.Tool {
	search, meta := searchFunc(d)
	args, _ := json.Marshal(map[string]string{"query": query})
	fn, fixed := tools.NewFixedTool(searchToolName, searchToolDescription, search, args)
	fixed.Timeout = meta.Timeout
	fixed.CacheTTL = d.cacheTTL(meta.CacheTTL)
	fixed.RateLimit = meta.RateLimit
	return crews.NewTool(fn, fixed)
}

func searchFunc(d Deps) (tools.ToolFunc, tools.ToolMetadata) {
	cfg := tools.DefaultWebSearchToolConfig()
	cfg.Provider = d.Search
	if d.SearchOptions.MaxResults > 0 {
		cfg.DefaultOpts = d.SearchOptions
	}
	return tools.NewWebSearchTool(cfg, d.logger())
}

// topResultScrapeTool 搜索 query 并抓取排名第一的结果页面。
func topResultScrapeTool(d Deps, query string) crews.Tool {
	search, searchMeta := searchFunc(d)
	cfg := tools.DefaultWebScrapeToolConfig()
	cfg.Provider = d.Scraper
	if d.ScrapeOptions.MaxLength > 0 {
		cfg.DefaultOpts = d.ScrapeOptions
	}
	scrape, meta := tools.NewWebScrapeTool(cfg, d.logger())
	logger := d.logger()

	fn := func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		args, _ := json.Marshal(map[string]string{"query": query})
		raw, err := search(ctx, args)
		if err != nil {
			return nil, err
		}
		var resp tools.WebSearchResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decode search response: %w", err)
		}
		for _, r := range resp.Results {
			if r.URL == "" {
				continue
			}
			logger.Debug("scraping top search result", zap.String("query", query), zap.String("url", r.URL))
			scrapeArgs, _ := json.Marshal(map[string]string{"url": r.URL})
			return scrape(ctx, scrapeArgs)
		}
		return nil, errors.New("no search results to scrape")
	}

	_, fixed := tools.NewFixedTool(scrapeToolName, scrapeToolDescription, fn, nil)
	fixed.Timeout = searchMeta.Timeout + meta.Timeout
	fixed.CacheTTL = d.cacheTTL(meta.CacheTTL)
	fixed.RateLimit = meta.RateLimit
	return crews.NewTool(fn, fixed)
}
