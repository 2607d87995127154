package tokenizer

// EstimatorTokenizer is a character-count-based token estimator.
// CJK runes count ~1.5 per token and everything else ~4 per token.
type EstimatorTokenizer struct {
	model     string
	maxTokens int
}

// NewEstimatorTokenizer creates a generic estimator.
func NewEstimatorTokenizer(model string, maxTokens int) *EstimatorTokenizer {
	if maxTokens <= 0 {
		maxTokens = ContextWindow(model)
	}
	return &EstimatorTokenizer{model: model, maxTokens: maxTokens}
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	cjk, other := 0, 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	estimated := int(float64(cjk)/1.5 + float64(other)/4.0)
	if estimated == 0 {
		estimated = 1
	}
	return estimated, nil
}

func (e *EstimatorTokenizer) CountMessages(messages []Message) (int, error) {
	total := 0
	for _, msg := range messages {
		tokens, err := e.CountTokens(msg.Content)
		if err != nil {
			return 0, err
		}
		total += tokens + perMessageOverhead
	}
	return total + conversationEnd, nil
}

// Truncate keeps the longest rune prefix whose estimate fits maxTokens.
func (e *EstimatorTokenizer) Truncate(text string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		return "", nil
	}
	if n, _ := e.CountTokens(text); n <= maxTokens {
		return text, nil
	}
	var weight float64
	limit := float64(maxTokens)
	for i, r := range text {
		w := 0.25
		if isCJK(r) {
			w = 1 / 1.5
		}
		if weight+w > limit {
			return text[:i], nil
		}
		weight += w
	}
	return text, nil
}

func (e *EstimatorTokenizer) MaxTokens() int {
	return e.maxTokens
}

func (e *EstimatorTokenizer) Name() string {
	return "estimator"
}

// isCJK returns true if the rune is a CJK character.
func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified Ideographs
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x20000 && r <= 0x2A6DF) || // CJK Extension B
		(r >= 0xF900 && r <= 0xFAFF) || // CJK Compatibility Ideographs
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols and Punctuation
		(r >= 0xFF00 && r <= 0xFFEF) // Halfwidth and Fullwidth Forms
}
