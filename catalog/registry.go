package catalog

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/agent/crews"
	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/tokenizer"
	"github.com/BaSui01/crewflow/llm/tools"
	"go.uber.org/zap"
)

// ErrUnknownCrew 表示目录中没有该名称的 crew
var ErrUnknownCrew = errors.New("unknown crew")

// Deps 是构建 crew 所需的外部依赖。
type Deps struct {
	LLM           llm.Provider
	Model         string
	Temperature   float32
	MaxIterations int
	Tokenizer     tokenizer.Tokenizer

	Scraper       tools.WebScrapeProvider
	ScrapeOptions tools.WebScrapeOptions
	Search        tools.WebSearchProvider
	SearchOptions tools.WebSearchOptions
	// CacheTTL 覆盖工具默认的结果缓存时间；为 0 时使用工具默认值
	CacheTTL time.Duration

	// Inputs 是本次运行的模板变量，固定参数的工具据此生成查询
	Inputs  map[string]any
	Verbose bool
	Logger  *zap.Logger
}

func (d Deps) cacheTTL(def time.Duration) time.Duration {
	if d.CacheTTL > 0 {
		return d.CacheTTL
	}
	return def
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// agent 按 Deps 填充 LLM 相关字段。
func (d Deps) agent(role, goal, backstory string) *crews.Agent {
	return &crews.Agent{
		Role:          role,
		Goal:          goal,
		Backstory:     backstory,
		Verbose:       d.Verbose,
		LLM:           d.LLM,
		Model:         d.Model,
		Temperature:   d.Temperature,
		MaxIterations: d.MaxIterations,
		Tokenizer:     d.Tokenizer,
	}
}

// Entry 描述一个可运行的 crew。
type Entry struct {
	Name        string
	Description string
	Build       func(Deps) (*crews.Crew, error)
	// DefaultInputs 返回新的默认输入映射，调用方可以修改
	DefaultInputs func() map[string]any
	// AfterRun 在 kickoff 成功后执行，可选
	AfterRun func(out *crews.CrewOutput, outputDir string, w io.Writer) error
}

var (
	mu      sync.RWMutex
	entries = map[string]Entry{}
)

// Register 注册 crew；重复名称返回错误。
func Register(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("catalog: entry name is required")
	}
	if e.Build == nil {
		return fmt.Errorf("catalog: entry %q has no Build function", e.Name)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := entries[e.Name]; ok {
		return fmt.Errorf("catalog: crew %q already registered", e.Name)
	}
	entries[e.Name] = e
	return nil
}

func mustRegister(e Entry) {
	if err := Register(e); err != nil {
		panic(err)
	}
}

// Lookup 按名称查找 crew。
func Lookup(name string) (Entry, error) {
	mu.RLock()
	defer mu.RUnlock()
	e, ok := entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownCrew, name)
	}
	return e, nil
}

// Names 返回已注册的 crew 名称（有序）。
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Inputs merges overrides onto the entry's defaults.
func (e Entry) Inputs(overrides map[string]any) map[string]any {
	out := map[string]any{}
	if e.DefaultInputs != nil {
		for k, v := range e.DefaultInputs() {
			out[k] = v
		}
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
