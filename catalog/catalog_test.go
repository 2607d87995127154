package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/BaSui01/crewflow/agent/crews"
	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/providers"
	"github.com/BaSui01/crewflow/llm/providers/ollama"
	"github.com/BaSui01/crewflow/llm/tokenizer"
	"github.com/BaSui01/crewflow/llm/tools"
	"github.com/BaSui01/crewflow/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScraper struct {
	mu   sync.Mutex
	urls []string
}

func (s *stubScraper) Name() string { return "stub" }

func (s *stubScraper) Scrape(_ context.Context, url string, _ tools.WebScrapeOptions) (*tools.WebScrapeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, url)
	return &tools.WebScrapeResult{URL: url, Title: "Docs", Content: "how to kick off a crew", WordCount: 6}, nil
}

type stubSearch struct {
	mu      sync.Mutex
	queries []string
	results []tools.WebSearchResult
}

func (s *stubSearch) Name() string { return "stub" }

func (s *stubSearch) Search(_ context.Context, query string, _ tools.WebSearchOptions) ([]tools.WebSearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.results, nil
}

func testDeps(p llm.Provider) Deps {
	return Deps{
		LLM:       p,
		Model:     "deepseek-r1:8b",
		Tokenizer: tokenizer.NewEstimatorTokenizer("deepseek-r1:8b", 32768),
	}
}

func lastMessage(req *llm.ChatRequest) llm.Message {
	return req.Messages[len(req.Messages)-1]
}

func userPromptOf(req *llm.ChatRequest) string {
	for _, m := range req.Messages {
		if m.Role == llm.RoleUser {
			return m.Content
		}
	}
	return ""
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"customer-support", "event-planning", "research-write"}, Names())

	e, err := Lookup("research-write")
	require.NoError(t, err)
	assert.NotEmpty(t, e.Description)

	_, err = Lookup("nope")
	assert.True(t, errors.Is(err, ErrUnknownCrew))

	assert.Error(t, Register(Entry{Name: "research-write", Build: buildResearchWrite}))
	assert.Error(t, Register(Entry{Name: "no-build"}))
	assert.Error(t, Register(Entry{}))
}

func TestEntry_Inputs(t *testing.T) {
	e, err := Lookup("customer-support")
	require.NoError(t, err)

	inputs := e.Inputs(map[string]any{"customer": "ACME"})
	assert.Equal(t, "ACME", inputs["customer"])
	assert.Equal(t, "Subramaniam Jayanti", inputs["person"])

	// 默认值不应被上一次覆盖污染
	assert.Equal(t, "Shrewd Analytics LLC", e.Inputs(nil)["customer"])
}

func TestBuild_AllCrews(t *testing.T) {
	tests := []struct {
		name   string
		agents []string
		tasks  int
	}{
		{"customer-support", []string{"Senior Support Representative", "Support Quality Assurance Specialist"}, 2},
		{"event-planning", []string{"Venue Coordinator", "Logistics Manager", "Marketing and Communications Manager"}, 3},
		{"research-write", []string{"Content Planner", "Content Writer", "Content Editor"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Lookup(tt.name)
			require.NoError(t, err)
			d := testDeps(mocks.NewMockProvider())
			d.Inputs = e.Inputs(nil)
			crew, err := e.Build(d)
			require.NoError(t, err)

			var roles []string
			for _, a := range crew.Agents {
				roles = append(roles, a.Role)
				assert.Equal(t, "deepseek-r1:8b", a.Model)
			}
			assert.Equal(t, tt.agents, roles)
			require.Len(t, crew.Tasks, tt.tasks)
			for _, task := range crew.Tasks {
				assert.NotNil(t, task.Agent)
				assert.NotEmpty(t, task.ExpectedOutput)
				assert.Empty(t, missingPlaceholders(task.Description, d.Inputs), task.Name)
			}
		})
	}
}

func missingPlaceholders(text string, inputs map[string]any) []string {
	var missing []string
	for _, name := range crews.Placeholders(text) {
		if _, ok := inputs[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func TestCustomerSupport_ScrapesDocs(t *testing.T) {
	scraper := &stubScraper{}
	p := mocks.NewMockProvider().WithScript(
		mocks.CallTool("c1", "website_scraping_tool", map[string]any{"website_url": "https://evil.example"}),
		mocks.Reply("Dear Subramaniam Jayanti, here is how to kick off a crew."),
		mocks.Reply("Reviewed email"),
	)
	d := testDeps(p)
	d.Scraper = scraper

	e, err := Lookup("customer-support")
	require.NoError(t, err)
	crew, err := e.Build(d)
	require.NoError(t, err)

	qa := crew.Agents[1]
	assert.True(t, qa.AllowDelegation)
	assert.False(t, crew.Agents[0].AllowDelegation)

	out, err := crew.Kickoff(context.Background(), e.Inputs(nil))
	require.NoError(t, err)
	assert.Equal(t, "Reviewed email", out.Raw)
	assert.Equal(t, []string{CrewAIDocsURL}, scraper.urls)

	calls := p.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[0].Request.Messages[0].Content, "support to Shrewd Analytics LLC")
	assert.Contains(t, calls[1].Request.Messages[len(calls[1].Request.Messages)-1].Content, "how to kick off a crew")
	// QA 专家带有委派工具
	var names []string
	for _, s := range calls[2].Request.Tools {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "delegate_work_to_coworker")
}

func TestEventPlanning_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	scraper := &stubScraper{}
	search := &stubSearch{results: []tools.WebSearchResult{
		{Title: "no url"},
		{Title: "Moscone Center", URL: "https://moscone.example", Snippet: "Conference venue"},
	}}

	p := mocks.NewMockProvider().WithCompletionFunc(func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		reply := llm.Message{Role: llm.RoleAssistant}
		system := req.Messages[0].Content
		last := req.Messages[len(req.Messages)-1]
		switch {
		case strings.Contains(system, "You are Venue Coordinator.") && last.Role == llm.RoleUser:
			reply.ToolCalls = []llm.ToolCall{
				{ID: "s1", Name: "search_tool", Arguments: json.RawMessage(`{}`)},
				{ID: "w1", Name: "website_scraping_tool", Arguments: json.RawMessage(`{}`)},
			}
		case strings.Contains(system, "You are Venue Coordinator."):
			reply.Content = "<think>pick one</think>```json\n" +
				`{"name":"Moscone Center","address":"747 Howard St","capacity":2000,"price":15000,"booking_status":"available"}` +
				"\n```"
		case strings.Contains(system, "You are Logistics Manager."):
			reply.Content = "Catering confirmed"
		default:
			reply.Content = "# Marketing Report\n\nEngaged 500 attendees."
		}
		return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: reply}}}, nil
	})

	d := testDeps(p)
	d.Scraper = scraper
	d.Search = search
	e, err := Lookup("event-planning")
	require.NoError(t, err)
	inputs := e.Inputs(nil)
	d.Inputs = inputs

	crew, err := e.Build(d)
	require.NoError(t, err)
	crew.OutputDir = dir
	crew.HumanInput = crews.AutoApprove{}

	out, err := crew.Kickoff(context.Background(), inputs)
	require.NoError(t, err)
	assert.Equal(t, "# Marketing Report\n\nEngaged 500 attendees.", out.Raw)

	assert.Contains(t, search.queries, "Conference Hall venues in San Francisco for Tech Innovation Conference")
	assert.Equal(t, []string{"https://moscone.example"}, scraper.urls)

	venue := out.TasksOutput[0]
	require.NotNil(t, venue.JSON)
	assert.Equal(t, &VenueDetails{
		Name: "Moscone Center", Address: "747 Howard St", Capacity: 2000, Price: 15000, BookingStatus: "available",
	}, venue.Value)

	report, err := os.ReadFile(filepath.Join(dir, MarketingReportFile))
	require.NoError(t, err)
	assert.Contains(t, string(report), "# Marketing Report")

	var buf bytes.Buffer
	require.NoError(t, e.AfterRun(out, dir, &buf))
	assert.Contains(t, buf.String(), `"booking_status": "available"`)
	assert.Contains(t, buf.String(), `"capacity": 2000`)
}

func TestPrintVenueDetails_MissingFile(t *testing.T) {
	err := printVenueDetails(nil, t.TempDir(), &bytes.Buffer{})
	assert.ErrorContains(t, err, "read venue details")
}

func TestPrintVenueDetails_PrefersWrittenPath(t *testing.T) {
	shared, own := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(shared, VenueDetailsFile), []byte(`{"name":"Other Run Hall"}`), 0o644))
	ownPath := filepath.Join(own, VenueDetailsFile)
	require.NoError(t, os.WriteFile(ownPath, []byte(`{"name":"Moscone Center"}`), 0o644))

	out := &crews.CrewOutput{TasksOutput: []*crews.TaskOutput{{Name: "venue_task", OutputPath: ownPath}}}
	var buf bytes.Buffer
	require.NoError(t, printVenueDetails(out, shared, &buf))
	assert.Contains(t, buf.String(), "Moscone Center")
	assert.NotContains(t, buf.String(), "Other Run Hall")
}

func TestTopResultScrapeTool_NoResults(t *testing.T) {
	d := testDeps(mocks.NewMockProvider())
	d.Scraper = &stubScraper{}
	d.Search = &stubSearch{}

	tool := topResultScrapeTool(d, "anything")
	assert.Equal(t, scrapeToolName, tool.Name)
	_, err := tool.Func(context.Background(), json.RawMessage(`{}`))
	assert.ErrorContains(t, err, "no search results")
}

func TestResearchWrite_PassesPlanToWriter(t *testing.T) {
	p := mocks.NewMockProvider().WithScript(
		mocks.Reply("Outline: intro, body, conclusion"),
		mocks.Reply("Draft post"),
		mocks.Reply("Edited post"),
	)
	e, err := Lookup("research-write")
	require.NoError(t, err)
	crew, err := e.Build(testDeps(p))
	require.NoError(t, err)

	out, err := crew.Kickoff(context.Background(), map[string]any{"topic": "Go generics"})
	require.NoError(t, err)
	assert.Equal(t, "Edited post", out.Raw)
	require.Len(t, out.TasksOutput, 3)

	calls := p.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[0].Request.Messages[1].Content, "Plan a blog article on the topic: Go generics")
	assert.Contains(t, calls[1].Request.Messages[1].Content, "Outline: intro, body, conclusion")
	assert.Contains(t, calls[2].Request.Messages[1].Content, "Draft post")
	assert.Empty(t, calls[0].Request.Tools)
}

func TestCustomerSupport_TextToolsAndDelegation(t *testing.T) {
	scraper := &stubScraper{}
	p := mocks.NewMockProvider().WithNativeTools(false).WithScript(
		mocks.Reply("<think>check the docs first</think>\nThought: read the docs\n"+
			"Action: Website Scraping Tool\nAction Input: {}"),
		mocks.Reply("Thought: I now know the final answer\nFinal Answer: Dear Subramaniam Jayanti, call crew.kickoff()."),
		mocks.Reply("Thought: confirm with the representative\n"+
			"Action: Ask question to coworker\n"+
			`Action Input: {"question": "Did you cite the docs?", "context": "QA review", "coworker": "Senior Support Representative"}`),
		mocks.Reply("Final Answer: Yes, the docs page is cited."),
		mocks.Reply("Final Answer: Reviewed email"),
	)
	d := testDeps(p)
	d.Scraper = scraper

	e, err := Lookup("customer-support")
	require.NoError(t, err)
	crew, err := e.Build(d)
	require.NoError(t, err)

	out, err := crew.Kickoff(context.Background(), e.Inputs(nil))
	require.NoError(t, err)
	assert.Equal(t, "Reviewed email", out.Raw)
	assert.Equal(t, "Dear Subramaniam Jayanti, call crew.kickoff().", out.TasksOutput[0].Raw)
	assert.Equal(t, []string{CrewAIDocsURL}, scraper.urls)

	calls := p.Calls()
	require.Len(t, calls, 5)
	for _, c := range calls {
		assert.Empty(t, c.Request.Tools)
	}
	assert.Contains(t, calls[0].Request.Messages[0].Content, "Tool Name: Website Scraping Tool")
	assert.Equal(t, "Observation: how to kick off a crew", lastMessage(calls[1].Request).Content)

	qaSystem := calls[2].Request.Messages[0].Content
	assert.Contains(t, qaSystem, "Tool Name: Ask question to coworker")
	assert.Contains(t, qaSystem, "Tool Name: Delegate work to coworker")
	assert.Contains(t, userPromptOf(calls[3].Request), "Did you cite the docs?")
	assert.Equal(t, "Observation: Yes, the docs page is cited.", lastMessage(calls[4].Request).Content)
}

// 默认模型 deepseek-r1 走 Ollama 的 OpenAI 兼容接口，不支持原生工具调用
func TestCustomerSupport_DefaultOllamaModelRunsTools(t *testing.T) {
	replies := []string{
		"<think>docs</think>Action: Website Scraping Tool\nAction Input: {}",
		"Final Answer: Draft email",
		"Final Answer: Reviewed email",
	}
	var (
		mu       sync.Mutex
		requests []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		i := len(requests)
		requests = append(requests, body)
		mu.Unlock()

		content := "Final Answer: done"
		if i < len(replies) {
			content = replies[i]
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "chatcmpl-1",
			"model": "deepseek-r1:8b",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]int{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	defer srv.Close()

	provider := ollama.NewProvider(providers.OllamaConfig{BaseProviderConfig: providers.BaseProviderConfig{
		BaseURL: srv.URL,
		Model:   "deepseek-r1:8b",
	}}, nil)
	require.False(t, provider.SupportsNativeFunctionCalling())

	scraper := &stubScraper{}
	d := testDeps(provider)
	d.Scraper = scraper
	e, err := Lookup("customer-support")
	require.NoError(t, err)
	crew, err := e.Build(d)
	require.NoError(t, err)

	out, err := crew.Kickoff(context.Background(), e.Inputs(nil))
	require.NoError(t, err)
	assert.Equal(t, "Reviewed email", out.Raw)
	assert.Equal(t, []string{CrewAIDocsURL}, scraper.urls)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 3)
	for _, req := range requests {
		assert.Nil(t, req["tools"])
		assert.NotContains(t, fmt.Sprint(req["messages"]), "no tools are available")
	}
}
