// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 crewflow 命令行程序。

# 子命令

  - run：运行目录中的一个 crew，打印最终结果并执行 crew 的后处理
    （event-planning 会打印场地详情）。human_input 任务在控制台请求反馈。
  - list：列出可运行的 crew。
  - serve：启动 HTTP API（kickoff、websocket 流、运行记录、/health、/metrics），
    kickoff 同步执行且不请求人工反馈。
  - health：检查 LLM 端点、运行记录数据库与 Redis；Ollama 还会确认模型已拉取。
  - migrate：用 golang-migrate 管理运行记录表结构（up、down、status 等）。
  - version：打印构建时注入的版本信息。

# 中间件链

Recovery、RequestID、OTelTracing、SecurityHeaders、RequestLogger、MetricsMiddleware；
配置 server.auth 后追加 JWTAuth（/health、/healthz、/metrics 免认证）。
任何失败都以非零状态码退出，错误通过 zap 记录。
*/
package main
