package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer 基于 tiktoken 的精确分词器.
// 非 OpenAI 模型使用 cl100k_base 近似计数。
type TiktokenTokenizer struct {
	model     string
	encoding  string
	maxTokens int
	enc       *tiktoken.Tiktoken
	once      sync.Once
	initErr   error
}

// NewTiktokenTokenizer 为给定模型创建 tiktoken 分词器；maxTokens <= 0 时按模型推断.
func NewTiktokenTokenizer(model string, maxTokens int) *TiktokenTokenizer {
	if maxTokens <= 0 {
		maxTokens = ContextWindow(model)
	}
	encoding := "cl100k_base"
	if strings.HasPrefix(normalizeModel(model), "gpt-4o") {
		encoding = "o200k_base"
	}
	return &TiktokenTokenizer{
		model:     model,
		encoding:  encoding,
		maxTokens: maxTokens,
	}
}

// init 延迟加载编码（首次使用可能需要下载 BPE 数据）.
func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) CountMessages(messages []Message) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	total := 0
	for _, msg := range messages {
		total += perMessageOverhead
		total += len(t.enc.Encode(msg.Content, nil, nil))
		total += len(t.enc.Encode(msg.Role, nil, nil))
	}
	return total + conversationEnd, nil
}

func (t *TiktokenTokenizer) Truncate(text string, maxTokens int) (string, error) {
	if err := t.init(); err != nil {
		return "", err
	}
	if maxTokens <= 0 {
		return "", nil
	}
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, nil
	}
	return t.enc.Decode(tokens[:maxTokens]), nil
}

func (t *TiktokenTokenizer) MaxTokens() int {
	return t.maxTokens
}

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
