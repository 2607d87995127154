// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 middleware 提供 LLM 请求的改写器链。

Provider 在序列化请求之前依次执行 [RewriterChain] 中的改写器：

  - [EmptyToolsCleaner]：无工具时清除 tool_choice
  - [ToolsDropper]：Provider 不支持原生工具调用时移除 tools
*/
package middleware
