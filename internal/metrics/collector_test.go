package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/crewflow/agent/crews"
	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/tools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	_ crews.Observer = (*Collector)(nil)
	_ tools.Observer = (*Collector)(nil)
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("crewflow", reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHTTPRequest("GET", "/api/v1/crews", 200, 100*time.Millisecond)
	c.RecordHTTPRequest("GET", "/api/v1/crews", 204, 50*time.Millisecond)
	c.RecordHTTPRequest("POST", "/api/v1/crews/{name}/kickoff", 404, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/api/v1/crews", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/crews/{name}/kickoff", "4xx")))
}

func TestCollector_CrewObserver(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveCrewRun("research-write", "success", 3*time.Second)
	c.ObserveCrewRun("research-write", "error", time.Second)
	c.ObserveTask("research-write", "plan", 2*time.Second, nil)
	c.ObserveTask("research-write", "write", time.Second, errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.crewRunsTotal.WithLabelValues("research-write", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.crewRunsTotal.WithLabelValues("research-write", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.taskDuration))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.taskFailures.WithLabelValues("research-write", "write")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.taskFailures.WithLabelValues("research-write", "plan")))
}

func TestCollector_ObserveLLMCall(t *testing.T) {
	c, _ := newTestCollector(t)

	usage := llm.ChatUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}
	c.ObserveLLMCall("ollama", "deepseek-r1:8b", "success", usage, 500*time.Millisecond)
	c.ObserveLLMCall("ollama", "deepseek-r1:8b", "success", usage, 300*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("ollama", "deepseek-r1:8b", "success")))
	assert.Equal(t, float64(200), testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("ollama", "deepseek-r1:8b", "prompt")))
	assert.Equal(t, float64(100), testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("ollama", "deepseek-r1:8b", "completion")))
}

func TestCollector_ToolObserver(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveToolCall("website_scraping_tool", "success", 200*time.Millisecond)
	c.ObserveToolCall("website_scraping_tool", "timeout", 30*time.Second)
	c.ObserveToolCache("website_scraping_tool", true)
	c.ObserveToolCache("website_scraping_tool", false)
	c.ObserveToolCache("website_scraping_tool", false)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("website_scraping_tool", "timeout")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.cacheHits.WithLabelValues("website_scraping_tool")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.cacheMisses.WithLabelValues("website_scraping_tool")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	c, reg := newTestCollector(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
			c.ObserveLLMCall("ollama", "llama3.2", "success", llm.ChatUsage{PromptTokens: 1}, time.Millisecond)
			c.ObserveToolCache("search_tool", true)
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, float64(10), testutil.ToFloat64(c.cacheHits.WithLabelValues("search_tool")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCollector_SeparateRegistries(t *testing.T) {
	// 同名指标注册到不同 registry 不冲突
	assert.NotPanics(t, func() {
		NewCollector("crewflow", prometheus.NewRegistry(), nil)
		NewCollector("crewflow", prometheus.NewRegistry(), nil)
	})
}

func TestStatusCode(t *testing.T) {
	tests := map[int]string{200: "2xx", 301: "3xx", 404: "4xx", 503: "5xx", 0: "unknown"}
	for code, want := range tests {
		assert.Equal(t, want, statusCode(code))
	}
}
