// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 ollama 提供本地 Ollama 服务的 Provider。

请求走 Ollama 的 OpenAI 兼容接口 /v1/chat/completions，健康检查与模型列表
使用原生接口 /api/tags。deepseek-r1 等推理模型输出的 <think> 块默认从
最终内容中移除，流式输出同样过滤。

	p := ollama.NewProvider(providers.OllamaConfig{
		BaseProviderConfig: providers.BaseProviderConfig{Model: "deepseek-r1:8b"},
	}, logger)
*/
package ollama
