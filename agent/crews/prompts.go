package crews

import (
	"fmt"
	"strings"
)

const (
	contextSeparator = "\n\n----------\n\n"

	finalAnswerInstruction = "Begin! This is VERY important to you, use the tools available and give your best Final Answer, your job depends on it!"

	forceFinalAnswer = "You have used the maximum number of tool calls. Do not call any more tools. " +
		"Using the information gathered so far, give your best Final Answer now."

	coworkerExpectedOutput = "Your best answer to your coworker asking you this, accounting for the context shared."
)

func systemPrompt(a *Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. %s\n", a.Role, a.Backstory)
	fmt.Fprintf(&b, "Your personal goal is: %s", a.Goal)
	return b.String()
}

func taskPrompt(t *Task, taskContext string, withTools bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current Task: %s\n\n", t.Description)
	fmt.Fprintf(&b, "This is the expected criteria for your final answer: %s\n", t.ExpectedOutput)
	b.WriteString("You MUST return the actual complete content as the final answer, not a summary.")
	if taskContext != "" {
		fmt.Fprintf(&b, "\n\nThis is the context you're working with:\n%s", taskContext)
	}
	if !withTools {
		b.WriteString("\n\nAnswer directly; no tools are available for this task.")
	}
	b.WriteString("\n\n")
	b.WriteString(finalAnswerInstruction)
	return b.String()
}

func jsonOnlyPrompt(schemaJSON string, cause error) string {
	return fmt.Sprintf("Your previous answer could not be parsed (%v).\n"+
		"Return ONLY a valid JSON value matching this JSON Schema, with no other text:\n%s",
		cause, schemaJSON)
}

func schemaInstruction(schemaJSON string) string {
	return "\n\nYour final answer MUST be a valid JSON object matching this JSON Schema:\n" + schemaJSON
}

func feedbackPrompt(previous, feedback string) string {
	return fmt.Sprintf("Your previous final answer was:\n%s\n\nHuman feedback on it:\n%s\n\n"+
		"Revise your final answer to address the feedback.", previous, feedback)
}

func summarize(description string) string {
	words := strings.Fields(description)
	if len(words) <= 10 {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:10], " ") + "..."
}
