package crews

import (
	"time"

	"github.com/BaSui01/crewflow/llm"
)

// Observer receives runtime events. internal/metrics.Collector implements it.
type Observer interface {
	ObserveCrewRun(crew, status string, duration time.Duration)
	ObserveTask(crew, task string, duration time.Duration, err error)
	ObserveLLMCall(provider, model, status string, usage llm.ChatUsage, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveCrewRun(string, string, time.Duration)                      {}
func (nopObserver) ObserveTask(string, string, time.Duration, error)                  {}
func (nopObserver) ObserveLLMCall(string, string, string, llm.ChatUsage, time.Duration) {}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
