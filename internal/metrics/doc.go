// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的运行指标采集。

# 概述

Collector 通过 promauto.With(registerer) 注册全部指标，按 namespace
隔离。它同时实现 crews.Observer 与 tools.Observer，挂到 Crew 上即可
记录一次运行中的全部事件。

# 主要能力

  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - Crew 指标：kickoff 次数与耗时（crew/status），任务耗时与失败数。
  - LLM 指标：请求总数、耗时、Token 用量（prompt/completion）。
  - 工具指标：调用次数与耗时（tool/status），结果缓存命中与未命中。
*/
package metrics
