// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 crewflow serve 命令的 HTTP 请求处理器。

# 核心类型

  - CrewHandler  : 列出目录中的 crew，同步执行 kickoff
  - RunHandler   : 查询持久化的运行记录
  - HealthHandler: /health 与 /healthz，可注册 LLM、数据库、Redis 检查
  - Response     : 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo    : 结构化错误信息，含 code、message、retryable 标记

# 错误映射

未知 crew 与不存在的运行返回 404，并发运行已满返回 429，
LLM 服务错误按其 HTTP 状态映射为 502/503/504，其余 crew 失败返回 500。
失败的 kickoff 仍在错误详情中带上 run_id，便于通过 /api/v1/runs/{id} 查询。
*/
package handlers
