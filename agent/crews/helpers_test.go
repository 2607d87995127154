package crews

import (
	"sync"
	"time"

	"github.com/BaSui01/crewflow/llm"
	"github.com/BaSui01/crewflow/llm/tokenizer"
)

func newAgent(role string, p llm.Provider) *Agent {
	return &Agent{
		Role:      role,
		Goal:      role + " goal",
		Backstory: role + " backstory",
		LLM:       p,
		Model:     "test-model",
		Tokenizer: tokenizer.NewEstimatorTokenizer("test-model", 8192),
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	runs     []string
	tasks    []string
	taskErrs int
	llmCalls int
}

func (o *recordingObserver) ObserveCrewRun(_ string, status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, status)
}

func (o *recordingObserver) ObserveTask(_ string, task string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tasks = append(o.tasks, task)
	if err != nil {
		o.taskErrs++
	}
}

func (o *recordingObserver) ObserveLLMCall(string, string, string, llm.ChatUsage, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.llmCalls++
}

func lastMessage(req *llm.ChatRequest) llm.Message {
	return req.Messages[len(req.Messages)-1]
}

func userPrompt(req *llm.ChatRequest) string {
	for _, m := range req.Messages {
		if m.Role == llm.RoleUser {
			return m.Content
		}
	}
	return ""
}
