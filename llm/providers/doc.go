// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供 OpenAI 兼容协议的通用适配与辅助能力，是 openaicompat 与
ollama 两个具体 Provider 的公共基础层。

# 核心类型

  - BaseProviderConfig / OpenAIConfig / OllamaConfig: Provider 配置
  - OpenAICompat* 系列: OpenAI 兼容 API 的请求/响应/工具调用结构体
  - RetryableProvider: 带指数退避重试的 Provider 包装器

# 核心函数

  - MapHTTPError: 将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - ConvertMessagesToOpenAI / ConvertToolsToOpenAI: 统一消息与工具格式转换
  - ToLLMChatResponse / ConvertToolCallsFromOpenAI: 响应转换，兼容字符串与对象两种参数编码
  - ChooseModel: 按优先级选择模型（请求 > 默认 > 兜底）
*/
package providers
