package main

import (
	"context"
	"testing"

	"github.com/BaSui01/crewflow/agent/crews"
	"github.com/BaSui01/crewflow/catalog"
	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/tokenizer"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const echoCrew = "cmd-echo"

func init() {
	if err := catalog.Register(catalog.Entry{
		Name:        echoCrew,
		Description: "Single agent that answers a question.",
		DefaultInputs: func() map[string]any {
			return map[string]any{"question": "what is Go?"}
		},
		Build: func(d catalog.Deps) (*crews.Crew, error) {
			a := &crews.Agent{
				Role:      "Answerer",
				Goal:      "Answer {question}",
				Backstory: "You answer in one line.",
				LLM:       d.LLM,
				Model:     d.Model,
				Tokenizer: tokenizer.NewEstimatorTokenizer(d.Model, 32768),
			}
			return &crews.Crew{
				Name:   echoCrew,
				Agents: []*crews.Agent{a},
				Tasks: []*crews.Task{{
					Name:           "answer",
					Description:    "Answer: {question}",
					ExpectedOutput: "One line.",
					Agent:          a,
				}},
			}, nil
		},
	}); err != nil {
		panic(err)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Crew.OutputDir = t.TempDir()
	cfg.Crew.HumanInput = false
	cfg.Tools.CacheBackend = "memory"
	return cfg
}

func newTestApp(t *testing.T, p llm.Provider, mutate func(*config.Config)) *app {
	t.Helper()
	cfg := testConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	a, err := newApp(context.Background(), cfg, zap.NewNop(), appOptions{provider: p, maxConcurrent: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}
