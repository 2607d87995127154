package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/crewflow/internal/tlsutil"
)

// DefaultSerperURL is the Serper Google search endpoint.
const DefaultSerperURL = "https://google.serper.dev/search"

// SerperSearch calls the Serper (serper.dev) Google search API.
type SerperSearch struct {
	APIKey   string
	Endpoint string
	client   *http.Client
	// MaxBackoff caps the 429 backoff; zero means 30s.
	MaxBackoff time.Duration
}

// NewSerperSearch constructs a Serper search provider.
func NewSerperSearch(apiKey, endpoint string, timeout time.Duration) *SerperSearch {
	if endpoint == "" {
		endpoint = DefaultSerperURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SerperSearch{APIKey: apiKey, Endpoint: endpoint, client: tlsutil.SecureHTTPClient(timeout)}
}

// NewSerperSearchWithClient uses the supplied HTTP client.
func NewSerperSearchWithClient(apiKey, endpoint string, client *http.Client) *SerperSearch {
	s := NewSerperSearch(apiKey, endpoint, 0)
	s.client = client
	return s
}

func (s *SerperSearch) Name() string { return "serper" }

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
	HL  string `json:"hl,omitempty"`
	GL  string `json:"gl,omitempty"`
}

type serperResponse struct {
	Organic []struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		Snippet  string `json:"snippet"`
		Position int    `json:"position"`
		Date     string `json:"date"`
	} `json:"organic"`
	AnswerBox *struct {
		Title   string `json:"title"`
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"answerBox"`
}

// Search posts the query to Serper, backing off and retrying on 429.
func (s *SerperSearch) Search(ctx context.Context, query string, opts WebSearchOptions) ([]WebSearchResult, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, errors.New("serper: API key is missing")
	}
	payload, err := json.Marshal(serperRequest{
		Q:   query,
		Num: opts.MaxResults,
		HL:  opts.Language,
		GL:  opts.Region,
	})
	if err != nil {
		return nil, err
	}

	maxBackoff := s.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 30 * time.Second
	}

	var resp *http.Response
	delay := time.Second
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-KEY", s.APIKey)

		resp, err = s.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		if delay > maxBackoff {
			return nil, fmt.Errorf("serper: rate limited")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("serper http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("serper: decode response: %w", err)
	}

	limit := opts.MaxResults
	if limit <= 0 {
		limit = 10
	}
	results := make([]WebSearchResult, 0, limit)
	if ab := decoded.AnswerBox; ab != nil && (ab.Answer != "" || ab.Snippet != "") {
		snippet := ab.Answer
		if snippet == "" {
			snippet = ab.Snippet
		}
		results = append(results, WebSearchResult{Title: ab.Title, URL: ab.Link, Snippet: snippet})
	}
	for _, r := range decoded.Organic {
		if len(results) >= limit {
			break
		}
		results = append(results, WebSearchResult{
			Title:    r.Title,
			URL:      r.Link,
			Snippet:  r.Snippet,
			Position: r.Position,
			Date:     r.Date,
		})
	}
	return results, nil
}
